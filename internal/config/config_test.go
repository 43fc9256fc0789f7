package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfig_SetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "127.0.0.1:8080")
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.Server.LogLevel, "info")
	}
	if cfg.Resilience.CacheSize != 1000 {
		t.Errorf("CacheSize = %d, want 1000", cfg.Resilience.CacheSize)
	}
	if cfg.Resilience.FailureThreshold != 5 {
		t.Errorf("FailureThreshold = %d, want 5", cfg.Resilience.FailureThreshold)
	}
	if cfg.Resilience.RecoveryTimeout != "30s" {
		t.Errorf("RecoveryTimeout = %q, want %q", cfg.Resilience.RecoveryTimeout, "30s")
	}
	if cfg.Resilience.QueueDepth != 100 {
		t.Errorf("QueueDepth = %d, want 100", cfg.Resilience.QueueDepth)
	}
	if cfg.Resilience.QueueWorkers != 4 {
		t.Errorf("QueueWorkers = %d, want 4", cfg.Resilience.QueueWorkers)
	}
	if cfg.Audit.BufferSize != 1000 {
		t.Errorf("Audit.BufferSize = %d, want 1000", cfg.Audit.BufferSize)
	}
	if cfg.Evaluation.TotalDeadline != "30s" {
		t.Errorf("Evaluation.TotalDeadline = %q, want %q", cfg.Evaluation.TotalDeadline, "30s")
	}
	if cfg.Evaluation.DebounceInterval != "1s" {
		t.Errorf("Evaluation.DebounceInterval = %q, want %q", cfg.Evaluation.DebounceInterval, "1s")
	}
}

func TestConfig_SetDefaults_PreservesExistingValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server: ServerConfig{HTTPAddr: ":9090"},
		Resilience: ResilienceConfig{
			CacheSize:        50,
			FailureThreshold: 3,
		},
	}
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr was overwritten: got %q, want %q", cfg.Server.HTTPAddr, ":9090")
	}
	if cfg.Resilience.CacheSize != 50 {
		t.Errorf("CacheSize was overwritten: got %d, want 50", cfg.Resilience.CacheSize)
	}
	if cfg.Resilience.FailureThreshold != 3 {
		t.Errorf("FailureThreshold was overwritten: got %d, want 3", cfg.Resilience.FailureThreshold)
	}
}

func TestConfig_ParseDurations(t *testing.T) {
	t.Parallel()

	cfg := Config{RulesFile: "rules.yaml"}
	cfg.SetDefaults()

	d, err := cfg.ParseDurations()
	if err != nil {
		t.Fatalf("ParseDurations() unexpected error: %v", err)
	}
	if d.CacheTTL.String() != "5m0s" {
		t.Errorf("CacheTTL = %v, want 5m0s", d.CacheTTL)
	}
	if d.RecoveryTimeout.String() != "30s" {
		t.Errorf("RecoveryTimeout = %v, want 30s", d.RecoveryTimeout)
	}
}

func TestConfig_ParseDurations_InvalidValue(t *testing.T) {
	t.Parallel()

	cfg := Config{RulesFile: "rules.yaml"}
	cfg.SetDefaults()
	cfg.Resilience.CacheTTL = "not-a-duration"

	if _, err := cfg.ParseDurations(); err == nil {
		t.Fatal("ParseDurations() expected error for malformed duration, got nil")
	}
}

func TestFindConfigFileInPaths_EmptyDir(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths(empty dir) = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_MatchesYAML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "toolsentry.yaml")
	_ = os.WriteFile(cfgPath, []byte("rules_file: rules.yaml\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_MatchesYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "toolsentry.yml")
	_ = os.WriteFile(cfgPath, []byte("rules_file: rules.yaml\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != cfgPath {
		t.Errorf("findConfigFileInPaths = %q, want %q", got, cfgPath)
	}
}

func TestFindConfigFileInPaths_IgnoresNoExtension(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// Simulate the binary: a file named "toolsentry" with no extension.
	_ = os.WriteFile(filepath.Join(dir, "toolsentry"), []byte("\x7fELF binary"), 0755)

	got := findConfigFileInPaths([]string{dir})
	if got != "" {
		t.Errorf("findConfigFileInPaths matched binary = %q, want empty", got)
	}
}

func TestFindConfigFileInPaths_PrefersYAMLOverYML(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "toolsentry.yaml")
	ymlPath := filepath.Join(dir, "toolsentry.yml")
	_ = os.WriteFile(yamlPath, []byte("rules_file: rules-a.yaml\n"), 0644)
	_ = os.WriteFile(ymlPath, []byte("rules_file: rules-b.yaml\n"), 0644)

	got := findConfigFileInPaths([]string{dir})
	if got != yamlPath {
		t.Errorf("findConfigFileInPaths = %q, want %q (.yaml preferred)", got, yamlPath)
	}
}
