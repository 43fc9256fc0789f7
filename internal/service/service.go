// Package service wires the Rule Store, Pattern Engine, Response Cache,
// Circuit Breaker, Request Queue, Inference Strategy Manager, Audit Trail,
// and File Watcher into one running Policy Engine, the way cmd/toolsentry
// starts it.
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/toolsentry/toolsentry/internal/adapter/outbound/auditstore"
	"github.com/toolsentry/toolsentry/internal/adapter/outbound/providers"
	"github.com/toolsentry/toolsentry/internal/adapter/outbound/resilience"
	"github.com/toolsentry/toolsentry/internal/adapter/outbound/rulestore"
	"github.com/toolsentry/toolsentry/internal/adapter/outbound/watcher"
	"github.com/toolsentry/toolsentry/internal/config"
	"github.com/toolsentry/toolsentry/internal/domain/inference"
	"github.com/toolsentry/toolsentry/internal/domain/pattern"
	"github.com/toolsentry/toolsentry/internal/domain/policyengine"
)

// Service bundles the running Policy Engine together with the adapters it
// owns the lifecycle of (the Rule Store's File Watcher and the Request
// Queue's worker pool), so cmd/toolsentry has a single handle to start and
// stop.
type Service struct {
	Engine  *policyengine.Engine
	Rules   *rulestore.Store
	Watcher *watcher.Watcher
	Manager *inference.Manager
	Auditor *auditstore.Store
	Cache   *resilience.ResponseCache
	Breaker *resilience.CircuitBreaker
	queue   *resilience.Queue
	cancel  context.CancelFunc
	logger  *slog.Logger
}

// New builds every component from cfg and wires them into a Service. The
// returned context.CancelFunc-bearing background goroutines (the File
// Watcher's loop and the Request Queue's workers, if enabled) run until
// Stop is called.
func New(ctx context.Context, cfg *config.Config, secrets config.ProviderSecrets, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	durations, err := cfg.ParseDurations()
	if err != nil {
		return nil, fmt.Errorf("resolving configured durations: %w", err)
	}

	rules, err := rulestore.New(cfg.RulesFile, logger)
	if err != nil {
		return nil, fmt.Errorf("loading rule store: %w", err)
	}

	fileWatcher, err := watcher.New(cfg.RulesFile, rules, logger, durations.DebounceInterval)
	if err != nil {
		return nil, fmt.Errorf("starting rule file watcher: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := fileWatcher.Start(runCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("starting rule file watcher: %w", err)
	}

	providerList, preference := buildProviders(cfg, secrets, durations)
	if len(providerList) == 0 {
		cancel()
		return nil, fmt.Errorf("no inference providers configured")
	}
	manager := inference.NewManager(logger, providerList, preference)

	cache := resilience.NewResponseCache(cfg.Resilience.CacheSize, durations.CacheTTL)
	breaker := resilience.NewCircuitBreaker("inference", cfg.Resilience.FailureThreshold, durations.RecoveryTimeout, logger)

	var queue *resilience.Queue
	var queuePort policyengine.Queue
	var dispatcher policyengine.InferenceDispatcher = manager
	if cfg.Resilience.QueueEnabled {
		queue = resilience.NewQueue(runCtx, cfg.Resilience.QueueDepth, cfg.Resilience.QueueWorkers, durations.QueueAdmitTimeout, logger)
		queuePort = queue
	}

	sink, err := openAuditSink(cfg.Audit.SinkFile)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening audit sink: %w", err)
	}
	auditor := auditstore.New(cfg.Audit.BufferSize, logger, sink)

	patternEngine := pattern.NewEngine(logger)

	engine := policyengine.New(
		logger,
		rules,
		patternEngine,
		cache,
		breaker,
		queuePort,
		dispatcher,
		auditor,
		policyengine.Config{
			TotalDeadline: durations.TotalDeadline,
			CacheTTL:      durations.CacheTTL,
		},
	)

	return &Service{
		Engine:  engine,
		Rules:   rules,
		Watcher: fileWatcher,
		Manager: manager,
		Auditor: auditor,
		Cache:   cache,
		Breaker: breaker,
		queue:   queue,
		cancel:  cancel,
		logger:  logger,
	}, nil
}

// Stop tears down the File Watcher loop and the Request Queue's worker
// pool, if running.
func (s *Service) Stop() {
	if s.queue != nil {
		s.queue.Stop()
	}
	_ = s.Watcher.Stop()
	s.cancel()
}

// QueueStats reports the Request Queue's counters, if queuing is enabled.
// The second return value is false when no queue was configured.
func (s *Service) QueueStats() (resilience.Stats, bool) {
	if s.queue == nil {
		return resilience.Stats{}, false
	}
	return s.queue.Stats(), true
}

func buildProviders(cfg *config.Config, secrets config.ProviderSecrets, d config.Durations) ([]inference.Provider, []string) {
	var list []inference.Provider
	var preference []string

	if cfg.Inference.CLI != nil {
		list = append(list, providers.NewCLIProvider(cfg.Inference.CLI.Name, cfg.Inference.CLI.Command, d.CLITimeout, cfg.Inference.CLI.MaxAttempts))
		preference = append(preference, cfg.Inference.CLI.Name)
	}
	if cfg.Inference.Claude != nil {
		list = append(list, providers.NewHTTPAPIProvider(cfg.Inference.Claude.Name, providers.VendorClaude, cfg.Inference.Claude.Model, secrets.AnthropicAPIKey, d.ClaudeTimeout, cfg.Inference.Claude.MaxAttempts))
		preference = append(preference, cfg.Inference.Claude.Name)
	}
	if cfg.Inference.OpenAI != nil {
		list = append(list, providers.NewHTTPAPIProvider(cfg.Inference.OpenAI.Name, providers.VendorOpenAI, cfg.Inference.OpenAI.Model, secrets.OpenAIAPIKey, d.OpenAITimeout, cfg.Inference.OpenAI.MaxAttempts))
		preference = append(preference, cfg.Inference.OpenAI.Name)
	}
	if cfg.Inference.FallbackEnabled {
		fb := providers.NewFallbackProvider("mock_inference", nil, nil)
		list = append(list, fb)
		preference = append(preference, fb.Name())
	}

	if len(cfg.Inference.Preference) > 0 {
		preference = cfg.Inference.Preference
	}
	return list, preference
}

// openAuditSink opens the optional audit JSON-line sink file. Returns a nil
// io.Writer (not a typed-nil *os.File wrapped in a non-nil interface) when
// no sink is configured, so auditstore.New's "sink != nil" check behaves.
func openAuditSink(path string) (io.Writer, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return f, nil
}
