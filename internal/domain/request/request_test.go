package request

import "testing"

func TestValidToolName(t *testing.T) {
	cases := map[string]bool{
		"Bash":        true,
		"_private":    true,
		"read_file2":  true,
		"":            false,
		"2Bash":       false,
		"bash-tool":   false,
		"bash tool":   false,
		"../etc/pass": false,
	}
	for name, want := range cases {
		if got := ValidToolName(name); got != want {
			t.Errorf("ValidToolName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestSanitizeKey(t *testing.T) {
	cases := map[string]string{
		"../../etc/passwd": "etcpasswd",
		"normal_key":       "normal_key",
		"a\\b":             "ab",
		"key\x01name":      "keyname",
	}
	for input, want := range cases {
		if got := SanitizeKey(input); got != want {
			t.Errorf("SanitizeKey(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	cases := map[string]string{
		"hello\x00world":    "helloworld",
		"line1\r\nline2":    "line1\nline2",
		"line1\rline2":      "line1\nline2",
		"tab\tand\nnewline": "tab\tand\nnewline",
		"bell\x07here":      "bellhere",
	}
	for input, want := range cases {
		if got := SanitizeString(input); got != want {
			t.Errorf("SanitizeString(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestSanitizeTree_NestedMapsAndSlices(t *testing.T) {
	tree := map[string]any{
		"../key": "va\x00lue",
		"nested": map[string]any{
			"inner/key": "cr\r\nlf",
		},
		"list": []any{"a\x00b", map[string]any{"../x": "y"}},
		"num":  42,
	}

	out := SanitizeTree(tree)

	if _, ok := out["key"]; !ok {
		t.Fatalf("expected sanitized top-level key %q in %+v", "key", out)
	}
	if out["key"] != "value" {
		t.Errorf("key value = %v, want %q", out["key"], "value")
	}

	nested, ok := out["nested"].(map[string]any)
	if !ok {
		t.Fatalf("nested value not a map: %+v", out["nested"])
	}
	if nested["innerkey"] != "cr\nlf" {
		t.Errorf("nested.innerkey = %v, want %q", nested["innerkey"], "cr\nlf")
	}

	list, ok := out["list"].([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("list = %+v, want 2-element slice", out["list"])
	}
	if list[0] != "ab" {
		t.Errorf("list[0] = %v, want %q", list[0], "ab")
	}
	inner, ok := list[1].(map[string]any)
	if !ok || inner["x"] != "y" {
		t.Errorf("list[1] = %+v, want {x: y}", list[1])
	}

	if out["num"] != 42 {
		t.Errorf("num = %v, want 42 (non-string values pass through unchanged)", out["num"])
	}
}

func TestSanitizeTree_Nil(t *testing.T) {
	if got := SanitizeTree(nil); got != nil {
		t.Errorf("SanitizeTree(nil) = %+v, want nil", got)
	}
}

func TestNew_StampsTimestampAndSanitizes(t *testing.T) {
	req := New("Bash", map[string]any{"../cmd": "ls\x00"}, "sess-1", "agent-1", "/tmp")

	if req.ToolName != "Bash" {
		t.Errorf("ToolName = %q, want Bash", req.ToolName)
	}
	if req.Timestamp.IsZero() {
		t.Error("Timestamp should be stamped, got zero value")
	}
	if req.Parameters["cmd"] != "ls" {
		t.Errorf("Parameters[cmd] = %v, want %q", req.Parameters["cmd"], "ls")
	}
}
