package rulestore

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/toolsentry/toolsentry/internal/domain/rule"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func writeRulesFile(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadSortsByPriority(t *testing.T) {
	dir := t.TempDir()
	path := writeRulesFile(t, dir, `
rules:
  - id: low-priority
    priority: 100
    action: allow
    conditions: {tool_name: "Bash"}
  - id: high-priority
    priority: 1
    action: deny
    conditions: {tool_name: "Bash"}
`)
	store, err := New(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	all := store.GetAll()
	if len(all) != 2 || all[0].ID != "high-priority" || all[1].ID != "low-priority" {
		t.Fatalf("expected priority-sorted rules, got %+v", all)
	}
}

func TestEnabledDefaultsTrue(t *testing.T) {
	dir := t.TempDir()
	path := writeRulesFile(t, dir, `
rules:
  - id: r1
    priority: 1
    action: allow
    conditions: {tool_name: "Bash"}
  - id: r2
    priority: 2
    enabled: false
    action: deny
    conditions: {tool_name: "Write"}
`)
	store, err := New(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	active := store.GetActive()
	if len(active) != 1 || active[0].ID != "r1" {
		t.Fatalf("expected only r1 active, got %+v", active)
	}
}

func TestInvalidRuleRejectsEntireFile(t *testing.T) {
	dir := t.TempDir()
	path := writeRulesFile(t, dir, `
rules:
  - id: bad
    priority: 1
    action: not-a-real-action
    conditions: {tool_name: "Bash"}
`)
	if _, err := New(path, testLogger()); err == nil {
		t.Fatal("expected invalid rule to reject the whole file")
	}
}

func TestMissingFileIsInvalidConfiguration(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "missing.yaml"), testLogger()); err == nil {
		t.Fatal("expected error for missing rules file")
	}
}

func TestReloadPreservesSnapshotOnParseFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeRulesFile(t, dir, `
rules:
  - id: r1
    priority: 1
    action: allow
    conditions: {tool_name: "Bash"}
`)
	store, err := New(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("not: valid: yaml: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := store.Reload(); err == nil {
		t.Fatal("expected reload to fail on invalid YAML")
	}
	all := store.GetAll()
	if len(all) != 1 || all[0].ID != "r1" {
		t.Fatalf("expected previous snapshot to remain active, got %+v", all)
	}
}

func TestAddPersistsAndUpdatesSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := writeRulesFile(t, dir, `
rules:
  - id: r1
    priority: 1
    action: allow
    conditions: {tool_name: "Bash"}
`)
	store, err := New(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	newRule := rule.SecurityRule{ID: "r2", Priority: 2, Enabled: true, Action: rule.ActionDeny, Conditions: map[string]any{"tool_name": "Write"}}
	if err := store.Add(newRule); err != nil {
		t.Fatal(err)
	}
	if store.Snapshot().Len() != 2 {
		t.Fatalf("expected 2 rules after add, got %d", store.Snapshot().Len())
	}

	reloaded, err := New(path, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Snapshot().Len() != 2 {
		t.Fatalf("expected persisted rules to survive reload, got %d", reloaded.Snapshot().Len())
	}
}
