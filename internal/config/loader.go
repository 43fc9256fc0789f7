// Package config provides configuration loading for toolsentry.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches for toolsentry.yaml/.yml in
// standard locations. The search requires an explicit YAML extension to
// avoid matching the binary itself, which Viper's built-in SetConfigName
// would match (same base name, no extension).
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		// No config file found in any standard location.
		// Set name/type without search paths so ReadInConfig returns
		// ConfigFileNotFoundError (handled gracefully by callers).
		viper.SetConfigName("toolsentry")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: TOOLSENTRY_SERVER_HTTP_ADDR, etc.
	// Provider API keys are intentionally read outside this prefix (see
	// LoadProviderSecrets) so they can never be sourced from YAML.
	viper.SetEnvPrefix("TOOLSENTRY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a toolsentry config file
// with an explicit YAML extension (.yaml or .yml). This prevents Viper from
// matching the binary "toolsentry" (no extension) in the current directory.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".toolsentry"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "toolsentry"))
		}
	} else {
		paths = append(paths, "/etc/toolsentry")
	}
	return findConfigFileInPaths(paths)
}

// findConfigFileInPaths searches the given directories for toolsentry.yaml
// or .yml. Returns the full path of the first match, or empty string if
// none found.
func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "toolsentry"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds config keys for environment variable support.
// Example: TOOLSENTRY_SERVER_HTTP_ADDR overrides server.http_addr.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.stdio_enabled")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.tracing_enabled")

	_ = viper.BindEnv("rules_file")

	_ = viper.BindEnv("inference.preference")
	_ = viper.BindEnv("inference.fallback_enabled")
	_ = viper.BindEnv("inference.cli.name")
	_ = viper.BindEnv("inference.cli.command")
	_ = viper.BindEnv("inference.cli.timeout")
	_ = viper.BindEnv("inference.cli.max_attempts")
	_ = viper.BindEnv("inference.claude.name")
	_ = viper.BindEnv("inference.claude.model")
	_ = viper.BindEnv("inference.claude.timeout")
	_ = viper.BindEnv("inference.claude.max_attempts")
	_ = viper.BindEnv("inference.openai.name")
	_ = viper.BindEnv("inference.openai.model")
	_ = viper.BindEnv("inference.openai.timeout")
	_ = viper.BindEnv("inference.openai.max_attempts")

	_ = viper.BindEnv("resilience.cache_size")
	_ = viper.BindEnv("resilience.cache_ttl")
	_ = viper.BindEnv("resilience.failure_threshold")
	_ = viper.BindEnv("resilience.recovery_timeout")
	_ = viper.BindEnv("resilience.queue_enabled")
	_ = viper.BindEnv("resilience.queue_depth")
	_ = viper.BindEnv("resilience.queue_workers")
	_ = viper.BindEnv("resilience.queue_admit_timeout")

	_ = viper.BindEnv("audit.buffer_size")
	_ = viper.BindEnv("audit.sink_file")

	_ = viper.BindEnv("evaluation.total_deadline")
	_ = viper.BindEnv("evaluation.debounce_interval")

	_ = viper.BindEnv("dev_mode")
}

// ProviderSecrets holds inference provider API keys sourced exclusively from
// the process environment, never from YAML or viper's generic key space.
type ProviderSecrets struct {
	AnthropicAPIKey string
	OpenAIAPIKey    string
}

// LoadProviderSecrets reads provider API keys directly from the well-known
// environment variables. These never flow through viper's config-file
// unmarshalling path, so a YAML file can never leak or override them.
func LoadProviderSecrets() ProviderSecrets {
	return ProviderSecrets{
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
	}
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, validates the result with cfg.Validate(), and returns the
// Config. CLI flag overrides the caller applies afterwards are not
// re-validated.
func LoadConfig() (*Config, error) {
	fallbackWasSet := viper.IsSet("inference.fallback_enabled")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - continue with env vars only.
	}
	fallbackWasSet = fallbackWasSet || viper.IsSet("inference.fallback_enabled")

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	// At least one provider must always be reachable. Unlike fields with a
	// distinguishable zero value, a bare false can't tell "never set" from
	// "explicitly disabled" -- so this one default is applied here, guarded
	// by viper.IsSet, rather than inside SetDefaults.
	if !fallbackWasSet {
		cfg.Inference.FallbackEnabled = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded. Returns an empty string if no config file was found (env vars
// only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
