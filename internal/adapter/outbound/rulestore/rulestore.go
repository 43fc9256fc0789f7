// Package rulestore implements the Rule Store: a YAML file-backed source
// of SecurityRules that loads, validates, sorts, and atomically publishes
// snapshots, and persists mutations back to the file via write-to-temp-
// then-rename.
package rulestore

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/toolsentry/toolsentry/internal/domain/decision"
	"github.com/toolsentry/toolsentry/internal/domain/rule"
)

// document is the on-disk shape: {rules: [SecurityRule...]}. ruleDoc mirrors
// SecurityRule but with Enabled as *bool so an absent key (default true, per
// §4.2) can be told apart from an explicit `enabled: false`.
type document struct {
	Rules []ruleDoc `yaml:"rules"`
}

type ruleDoc struct {
	ID                string         `yaml:"id"`
	Priority          int            `yaml:"priority"`
	Enabled           *bool          `yaml:"enabled"`
	Conditions        map[string]any `yaml:"conditions"`
	Action            rule.Action    `yaml:"action"`
	Reason            string         `yaml:"reason"`
	SamplingGuidance  string         `yaml:"sampling_guidance"`
	InferenceProvider string         `yaml:"inference_provider"`
}

func (d ruleDoc) toRule() rule.SecurityRule {
	enabled := true
	if d.Enabled != nil {
		enabled = *d.Enabled
	}
	return rule.SecurityRule{
		ID:                d.ID,
		Priority:          d.Priority,
		Enabled:           enabled,
		Conditions:        d.Conditions,
		Action:            d.Action,
		Reason:            d.Reason,
		SamplingGuidance:  d.SamplingGuidance,
		InferenceProvider: d.InferenceProvider,
	}
}

func fromRule(r rule.SecurityRule) ruleDoc {
	enabled := r.Enabled
	return ruleDoc{
		ID:                r.ID,
		Priority:          r.Priority,
		Enabled:           &enabled,
		Conditions:        r.Conditions,
		Action:            r.Action,
		Reason:            r.Reason,
		SamplingGuidance:  r.SamplingGuidance,
		InferenceProvider: r.InferenceProvider,
	}
}

// Store is the YAML file-backed Rule Store. The active snapshot is held in
// an atomic.Pointer so readers never observe a torn update, even across a
// concurrent reload.
type Store struct {
	path     string
	logger   *slog.Logger
	snapshot atomic.Pointer[rule.Set]
	loadedAt atomic.Pointer[time.Time]
}

// New constructs a Store and performs the initial load. A missing or
// invalid rule file is an InvalidConfiguration error and aborts
// construction; the caller decides whether that is fatal at startup.
func New(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{path: path, logger: logger}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Snapshot returns the currently active, priority-sorted rule set. Safe for
// concurrent use; the returned Set remains valid even if Reload swaps in a
// new one concurrently.
func (s *Store) Snapshot() rule.Set {
	p := s.snapshot.Load()
	if p == nil {
		return rule.Set{}
	}
	return *p
}

// Reload re-reads the rule file from disk, parses, validates every rule,
// sorts by priority, and atomically publishes the result. On any failure
// the previous snapshot (if any) remains active — a partial reload is
// never observable.
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return decision.Wrapf(decision.KindInvalidConfiguration, "rules file not found: %v", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return decision.Wrapf(decision.KindInvalidConfiguration, "failed to parse YAML rules file: %v", err)
	}

	rules := make([]rule.SecurityRule, len(doc.Rules))
	for i, d := range doc.Rules {
		r := d.toRule()
		if err := r.Validate(); err != nil {
			return decision.Wrap(decision.KindInvalidConfiguration, fmt.Errorf("invalid rule configuration: %w", err))
		}
		rules[i] = r
	}

	newSet := rule.NewSet(rules)
	s.snapshot.Store(&newSet)
	now := time.Now().UTC()
	s.loadedAt.Store(&now)
	s.logger.Info("rule store reloaded", "path", s.path, "rule_count", newSet.Len())
	return nil
}

// LoadedAt reports when the active snapshot was last (re)loaded, for health
// reporting. Zero if Reload has never succeeded.
func (s *Store) LoadedAt() time.Time {
	p := s.loadedAt.Load()
	if p == nil {
		return time.Time{}
	}
	return *p
}

// GetAll returns every loaded rule, priority-ordered, enabled or not.
func (s *Store) GetAll() []rule.SecurityRule {
	return s.Snapshot().All()
}

// GetActive returns only enabled rules, priority-ordered.
func (s *Store) GetActive() []rule.SecurityRule {
	return s.Snapshot().Active()
}

// GetByID returns a single rule by id.
func (s *Store) GetByID(id string) (rule.SecurityRule, bool) {
	return s.Snapshot().ByID(id)
}

// Add appends a new rule and persists the updated rule set to disk.
func (s *Store) Add(r rule.SecurityRule) error {
	if err := r.Validate(); err != nil {
		return decision.Wrap(decision.KindInvalidConfiguration, err)
	}
	rules := append(s.GetAll(), r)
	return s.persist(rules)
}

// Update replaces the rule with the given id and persists the change.
func (s *Store) Update(id string, updated rule.SecurityRule) error {
	if err := updated.Validate(); err != nil {
		return decision.Wrap(decision.KindInvalidConfiguration, err)
	}
	rules := s.GetAll()
	found := false
	for i, r := range rules {
		if r.ID == id {
			rules[i] = updated
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("rulestore: no rule with id %q", id)
	}
	return s.persist(rules)
}

// Delete removes the rule with the given id and persists the change.
func (s *Store) Delete(id string) error {
	rules := s.GetAll()
	out := rules[:0]
	for _, r := range rules {
		if r.ID != id {
			out = append(out, r)
		}
	}
	if len(out) == len(rules) {
		return fmt.Errorf("rulestore: no rule with id %q", id)
	}
	return s.persist(out)
}

// persist writes rules back to the rule file via write-to-temp-then-rename,
// then republishes the in-memory snapshot.
func (s *Store) persist(rules []rule.SecurityRule) error {
	docRules := make([]ruleDoc, len(rules))
	for i, r := range rules {
		docRules[i] = fromRule(r)
	}
	doc := document{Rules: docRules}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("rulestore: marshal rules: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".rules-*.tmp")
	if err != nil {
		return fmt.Errorf("rulestore: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("rulestore: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("rulestore: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rulestore: rename temp file: %w", err)
	}

	newSet := rule.NewSet(rules)
	s.snapshot.Store(&newSet)
	return nil
}
