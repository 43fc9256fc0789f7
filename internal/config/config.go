// Package config provides the toolsentry gateway's configuration schema:
// listener addresses, rule file location, inference provider settings,
// resilience layer tuning, and ambient server knobs.
package config

import "time"

// Config is the top-level configuration for the toolsentry policy gateway.
type Config struct {
	// Server configures the stdio/HTTP listener surface.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// RulesFile is the path to the YAML rule file watched by the Rule Store.
	RulesFile string `yaml:"rules_file" mapstructure:"rules_file" validate:"required"`

	// Inference configures the provider chain the Inference Strategy Manager
	// dispatches "sample" rule decisions to.
	Inference InferenceConfig `yaml:"inference" mapstructure:"inference"`

	// Resilience tunes the Response Cache, Circuit Breaker, and Request Queue.
	Resilience ResilienceConfig `yaml:"resilience" mapstructure:"resilience"`

	// Audit configures the in-memory audit ring buffer.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// Evaluation bounds total per-request evaluation time.
	Evaluation EvaluationConfig `yaml:"evaluation" mapstructure:"evaluation"`

	// DevMode enables verbose (debug-level) logging.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the inbound transports.
type ServerConfig struct {
	// HTTPAddr is the address the REST/hook HTTP server listens on.
	// Defaults to "127.0.0.1:8080" (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// StdioEnabled starts the MCP stdio transport alongside the HTTP server.
	StdioEnabled bool `yaml:"stdio_enabled" mapstructure:"stdio_enabled"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// TracingEnabled starts the stdouttrace span exporter around Policy
	// Engine evaluation and Inference Manager dispatch.
	TracingEnabled bool `yaml:"tracing_enabled" mapstructure:"tracing_enabled"`
}

// InferenceConfig configures the provider chain.
type InferenceConfig struct {
	// Preference lists provider names in default dispatch order.
	Preference []string `yaml:"preference" mapstructure:"preference"`

	// CLI configures the CLI subprocess provider. Omit to disable.
	CLI *CLIProviderConfig `yaml:"cli" mapstructure:"cli"`

	// Claude configures the Claude HTTP API provider. Omit to disable.
	// The API key is read only from ANTHROPIC_API_KEY, never from YAML.
	Claude *HTTPProviderConfig `yaml:"claude" mapstructure:"claude"`

	// OpenAI configures the OpenAI HTTP API provider. Omit to disable.
	// The API key is read only from OPENAI_API_KEY, never from YAML.
	OpenAI *HTTPProviderConfig `yaml:"openai" mapstructure:"openai"`

	// FallbackEnabled registers the offline rule-based fallback provider.
	// Defaults to true: at least one provider must always be reachable.
	FallbackEnabled bool `yaml:"fallback_enabled" mapstructure:"fallback_enabled"`
}

// CLIProviderConfig configures the CLI subprocess provider.
type CLIProviderConfig struct {
	// Name registers this provider for rule-level InferenceProvider overrides.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`
	// Command is parsed with shell-like word-splitting.
	Command string `yaml:"command" mapstructure:"command" validate:"required"`
	// Timeout bounds a single subprocess invocation (e.g. "10s").
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty"`
	// MaxAttempts bounds retries after a failed command run (non-zero exit
	// or timeout).
	MaxAttempts uint64 `yaml:"max_attempts" mapstructure:"max_attempts" validate:"omitempty,min=1"`
}

// HTTPProviderConfig configures a vendor HTTP API provider.
type HTTPProviderConfig struct {
	// Name registers this provider for rule-level InferenceProvider overrides.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`
	// Model is the vendor model identifier (e.g. "claude-sonnet-4-20250514").
	Model string `yaml:"model" mapstructure:"model" validate:"required"`
	// Timeout bounds a single HTTP call (e.g. "10s").
	Timeout string `yaml:"timeout" mapstructure:"timeout" validate:"omitempty"`
	// MaxAttempts bounds retries on 5xx responses.
	MaxAttempts uint64 `yaml:"max_attempts" mapstructure:"max_attempts" validate:"omitempty,min=1"`
}

// ResilienceConfig tunes the Response Cache, Circuit Breaker, and Request
// Queue.
type ResilienceConfig struct {
	// CacheSize bounds the Response Cache's entry count. Defaults to 1000.
	CacheSize int `yaml:"cache_size" mapstructure:"cache_size" validate:"omitempty,min=1"`
	// CacheTTL is the Response Cache entry lifetime (e.g. "5m").
	CacheTTL string `yaml:"cache_ttl" mapstructure:"cache_ttl" validate:"omitempty"`

	// FailureThreshold is consecutive inference failures before the Circuit
	// Breaker opens. Defaults to 5.
	FailureThreshold uint32 `yaml:"failure_threshold" mapstructure:"failure_threshold" validate:"omitempty,min=1"`
	// RecoveryTimeout is how long the breaker stays open before a half-open
	// probe (e.g. "30s").
	RecoveryTimeout string `yaml:"recovery_timeout" mapstructure:"recovery_timeout" validate:"omitempty"`

	// QueueEnabled serializes inference dispatch through the Request Queue.
	QueueEnabled bool `yaml:"queue_enabled" mapstructure:"queue_enabled"`
	// QueueDepth bounds queued-but-not-yet-running jobs. Defaults to 100.
	QueueDepth int `yaml:"queue_depth" mapstructure:"queue_depth" validate:"omitempty,min=1"`
	// QueueWorkers is the fixed worker pool size. Defaults to 4.
	QueueWorkers int `yaml:"queue_workers" mapstructure:"queue_workers" validate:"omitempty,min=1"`
	// QueueAdmitTimeout bounds how long Submit waits for a result (e.g. "30s").
	QueueAdmitTimeout string `yaml:"queue_admit_timeout" mapstructure:"queue_admit_timeout" validate:"omitempty"`
}

// AuditConfig configures the in-memory audit ring buffer.
type AuditConfig struct {
	// BufferSize is the number of recent entries retained. Defaults to 1000.
	BufferSize int `yaml:"buffer_size" mapstructure:"buffer_size" validate:"omitempty,min=1"`
	// SinkFile optionally mirrors every entry as a JSON line to this path.
	SinkFile string `yaml:"sink_file" mapstructure:"sink_file"`
}

// EvaluationConfig bounds one request's total evaluation time.
type EvaluationConfig struct {
	// TotalDeadline bounds cache-check through audit-write. Defaults to "30s".
	TotalDeadline string `yaml:"total_deadline" mapstructure:"total_deadline" validate:"omitempty"`
	// DebounceInterval is the File Watcher's reload debounce window.
	// Defaults to "1s".
	DebounceInterval string `yaml:"debounce_interval" mapstructure:"debounce_interval" validate:"omitempty"`
}

// SetDefaults applies sensible default values to the configuration: only
// fields left unset by the user are filled.
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}

	if c.Inference.Preference == nil {
		c.Inference.Preference = []string{}
	}

	if c.Resilience.CacheSize == 0 {
		c.Resilience.CacheSize = 1000
	}
	if c.Resilience.CacheTTL == "" {
		c.Resilience.CacheTTL = "5m"
	}
	if c.Resilience.FailureThreshold == 0 {
		c.Resilience.FailureThreshold = 5
	}
	if c.Resilience.RecoveryTimeout == "" {
		c.Resilience.RecoveryTimeout = "30s"
	}
	if c.Resilience.QueueDepth == 0 {
		c.Resilience.QueueDepth = 100
	}
	if c.Resilience.QueueWorkers == 0 {
		c.Resilience.QueueWorkers = 4
	}
	if c.Resilience.QueueAdmitTimeout == "" {
		c.Resilience.QueueAdmitTimeout = "30s"
	}

	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = 1000
	}

	if c.Evaluation.TotalDeadline == "" {
		c.Evaluation.TotalDeadline = "30s"
	}
	if c.Evaluation.DebounceInterval == "" {
		c.Evaluation.DebounceInterval = "1s"
	}
}

// ParseDurations resolves every string duration field into time.Duration,
// returning the resolved Durations bundle. Called after SetDefaults and
// validation so malformed durations are caught once, in one place.
func (c *Config) ParseDurations() (Durations, error) {
	var d Durations
	var err error
	if d.CacheTTL, err = time.ParseDuration(c.Resilience.CacheTTL); err != nil {
		return d, invalidDuration("resilience.cache_ttl", c.Resilience.CacheTTL, err)
	}
	if d.RecoveryTimeout, err = time.ParseDuration(c.Resilience.RecoveryTimeout); err != nil {
		return d, invalidDuration("resilience.recovery_timeout", c.Resilience.RecoveryTimeout, err)
	}
	if d.QueueAdmitTimeout, err = time.ParseDuration(c.Resilience.QueueAdmitTimeout); err != nil {
		return d, invalidDuration("resilience.queue_admit_timeout", c.Resilience.QueueAdmitTimeout, err)
	}
	if d.TotalDeadline, err = time.ParseDuration(c.Evaluation.TotalDeadline); err != nil {
		return d, invalidDuration("evaluation.total_deadline", c.Evaluation.TotalDeadline, err)
	}
	if d.DebounceInterval, err = time.ParseDuration(c.Evaluation.DebounceInterval); err != nil {
		return d, invalidDuration("evaluation.debounce_interval", c.Evaluation.DebounceInterval, err)
	}
	if c.Inference.CLI != nil && c.Inference.CLI.Timeout != "" {
		if d.CLITimeout, err = time.ParseDuration(c.Inference.CLI.Timeout); err != nil {
			return d, invalidDuration("inference.cli.timeout", c.Inference.CLI.Timeout, err)
		}
	}
	if c.Inference.Claude != nil && c.Inference.Claude.Timeout != "" {
		if d.ClaudeTimeout, err = time.ParseDuration(c.Inference.Claude.Timeout); err != nil {
			return d, invalidDuration("inference.claude.timeout", c.Inference.Claude.Timeout, err)
		}
	}
	if c.Inference.OpenAI != nil && c.Inference.OpenAI.Timeout != "" {
		if d.OpenAITimeout, err = time.ParseDuration(c.Inference.OpenAI.Timeout); err != nil {
			return d, invalidDuration("inference.openai.timeout", c.Inference.OpenAI.Timeout, err)
		}
	}
	return d, nil
}

// Durations holds every configuration duration resolved from its string
// form once, at startup.
type Durations struct {
	CacheTTL          time.Duration
	RecoveryTimeout   time.Duration
	QueueAdmitTimeout time.Duration
	TotalDeadline     time.Duration
	DebounceInterval  time.Duration
	CLITimeout        time.Duration
	ClaudeTimeout     time.Duration
	OpenAITimeout     time.Duration
}
