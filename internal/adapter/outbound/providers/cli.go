package providers

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/sethvargo/go-retry"

	"github.com/toolsentry/toolsentry/internal/domain/decision"
	"github.com/toolsentry/toolsentry/internal/domain/inference"
)

// envBlacklist names environment variables stripped from the subprocess's
// environment before exec, preventing credential/secret leakage into a
// locally configured CLI tool.
var envBlacklist = map[string]struct{}{
	"ANTHROPIC_API_KEY": {},
	"OPENAI_API_KEY":    {},
	"AWS_SECRET_ACCESS_KEY": {},
	"AWS_ACCESS_KEY_ID":     {},
}

// CLIProvider evaluates prompts by invoking a local command-line tool,
// passing the prompt on stdin and parsing a JSON decision from stdout.
type CLIProvider struct {
	name        string
	commandLine string
	timeout     time.Duration
	maxAttempts uint64
}

// NewCLIProvider constructs a provider that runs commandLine (parsed with
// shell-like word-splitting) for each evaluation.
func NewCLIProvider(name, commandLine string, timeout time.Duration, maxAttempts uint64) *CLIProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxAttempts == 0 {
		maxAttempts = 2
	}
	return &CLIProvider{name: name, commandLine: commandLine, timeout: timeout, maxAttempts: maxAttempts}
}

func (p *CLIProvider) Name() string { return p.name }

// Evaluate runs the configured command once per attempt, retrying when the
// command run fails (non-zero exit, start failure, or the per-attempt
// timeout). Output of a successful run is always parsed and not retried.
func (p *CLIProvider) Evaluate(ctx context.Context, req decision.InferenceRequest) (decision.InferenceDecision, error) {
	argv, err := shlex.Split(p.commandLine)
	if err != nil || len(argv) == 0 {
		return decision.InferenceDecision{}, decision.Wrapf(decision.KindInvalidConfiguration, "cli provider %q: invalid command line: %v", p.name, err)
	}

	base, err := retry.NewExponential(200 * time.Millisecond)
	if err != nil {
		return decision.InferenceDecision{}, decision.Wrap(decision.KindInternalError, err)
	}
	backoff := retry.WithMaxRetries(p.maxAttempts, base)

	start := time.Now()
	var result decision.InferenceDecision
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		runCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		out, runErr := p.run(runCtx, argv, req.Prompt)
		if runErr != nil {
			return retry.RetryableError(runErr)
		}
		result = parseDecision(out, p.name, argv[0], time.Since(start).Milliseconds())
		return nil
	})
	if err != nil {
		return decision.InferenceDecision{}, decision.Wrapf(decision.KindAIServiceUnavailable, "cli provider %q: %w", p.name, err)
	}
	return result, nil
}

func (p *CLIProvider) run(ctx context.Context, argv []string, prompt string) (string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = filteredEnv()
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("command failed: %w (stderr: %s)", err, stderr.String())
	}
	return stdout.String(), nil
}

func filteredEnv() []string {
	env := os.Environ()
	filtered := make([]string, 0, len(env))
	for _, kv := range env {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if _, blocked := envBlacklist[name]; blocked {
			continue
		}
		filtered = append(filtered, kv)
	}
	return filtered
}

// HealthCheck reports healthy whenever the command line is non-empty; a
// real invocation is not spent on every health poll.
func (p *CLIProvider) HealthCheck(ctx context.Context) inference.ProviderHealth {
	healthy := p.commandLine != ""
	detail := ""
	if !healthy {
		detail = "no command configured"
	}
	return inference.ProviderHealth{Name: p.name, Healthy: healthy, Detail: detail}
}

var _ inference.Provider = (*CLIProvider)(nil)
