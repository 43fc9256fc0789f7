package rule

import "testing"

func validRule() SecurityRule {
	return SecurityRule{
		ID:         "deny-rm-rf",
		Priority:   10,
		Enabled:    true,
		Conditions: map[string]any{"tool_name": "Bash"},
		Action:     ActionDeny,
	}
}

func TestSecurityRule_Validate_OK(t *testing.T) {
	if err := validRule().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSecurityRule_Validate_MissingID(t *testing.T) {
	r := validRule()
	r.ID = ""
	if err := r.Validate(); err == nil {
		t.Error("expected error for missing id")
	}
}

func TestSecurityRule_Validate_PriorityOutOfRange(t *testing.T) {
	for _, p := range []int{-1, 1000, 5000} {
		r := validRule()
		r.Priority = p
		if err := r.Validate(); err == nil {
			t.Errorf("priority %d: expected error", p)
		}
	}
}

func TestSecurityRule_Validate_UnrecognizedAction(t *testing.T) {
	r := validRule()
	r.Action = "reject"
	if err := r.Validate(); err == nil {
		t.Error("expected error for unrecognized action")
	}
}

func TestSecurityRule_Validate_NoConditions(t *testing.T) {
	r := validRule()
	r.Conditions = nil
	if err := r.Validate(); err == nil {
		t.Error("expected error for empty conditions")
	}
}

func TestSecurityRule_Validate_UnrecognizedConditionKey(t *testing.T) {
	r := validRule()
	r.Conditions = map[string]any{"unknown_predicate": "x"}
	if err := r.Validate(); err == nil {
		t.Error("expected error for unrecognized condition key")
	}
}

func TestSecurityRule_Validate_RecognizedConditionKeys(t *testing.T) {
	for _, key := range []string{"tool_name", "parameters", "cwd", "cwd_pattern", "time_range", "AND", "OR"} {
		r := validRule()
		r.Conditions = map[string]any{key: "x"}
		if err := r.Validate(); err != nil {
			t.Errorf("condition key %q: unexpected error: %v", key, err)
		}
	}
}

func TestSecurityRule_Validate_SampleAction(t *testing.T) {
	r := validRule()
	r.Action = ActionSample
	if err := r.Validate(); err != nil {
		t.Errorf("unexpected error for sample action: %v", err)
	}
}

func TestNewSet_SortsByPriority(t *testing.T) {
	set := NewSet([]SecurityRule{
		{ID: "low-priority", Priority: 50, Enabled: true},
		{ID: "high-priority", Priority: 1, Enabled: true},
		{ID: "mid-priority", Priority: 25, Enabled: false},
	})

	all := set.All()
	if len(all) != 3 {
		t.Fatalf("Len = %d, want 3", len(all))
	}
	wantOrder := []string{"high-priority", "mid-priority", "low-priority"}
	for i, id := range wantOrder {
		if all[i].ID != id {
			t.Errorf("All()[%d].ID = %q, want %q", i, all[i].ID, id)
		}
	}
	if set.Len() != 3 {
		t.Errorf("Len() = %d, want 3", set.Len())
	}
}

func TestSet_Active_FiltersDisabled(t *testing.T) {
	set := NewSet([]SecurityRule{
		{ID: "a", Priority: 1, Enabled: true},
		{ID: "b", Priority: 2, Enabled: false},
		{ID: "c", Priority: 3, Enabled: true},
	})

	active := set.Active()
	if len(active) != 2 {
		t.Fatalf("Active() returned %d rules, want 2", len(active))
	}
	for _, r := range active {
		if r.ID == "b" {
			t.Error("disabled rule b should not appear in Active()")
		}
	}
}

func TestSet_ByID(t *testing.T) {
	set := NewSet([]SecurityRule{
		{ID: "a", Priority: 1},
		{ID: "b", Priority: 2},
	})

	if r, ok := set.ByID("b"); !ok || r.ID != "b" {
		t.Errorf("ByID(b) = %+v, %v, want b, true", r, ok)
	}
	if _, ok := set.ByID("missing"); ok {
		t.Error("ByID(missing) should report not found")
	}
}

func TestNewSet_CopiesInput(t *testing.T) {
	input := []SecurityRule{{ID: "a", Priority: 1}}
	set := NewSet(input)
	input[0].ID = "mutated"

	if r, _ := set.ByID("a"); r.ID != "a" {
		t.Error("NewSet should copy its input, not alias it")
	}
}
