// Package providers implements the Inference Manager's concrete providers:
// an HTTP API provider (Claude/OpenAI-shaped), a CLI subprocess provider, and
// a rule-based fallback that never leaves the process.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sethvargo/go-retry"

	"github.com/toolsentry/toolsentry/internal/domain/decision"
	"github.com/toolsentry/toolsentry/internal/domain/inference"
)

// Vendor selects the wire shape an HTTPAPIProvider speaks.
type Vendor string

const (
	VendorClaude Vendor = "claude"
	VendorOpenAI Vendor = "openai"
)

// HTTPAPIProvider evaluates prompts against a hosted LLM API, matching the
// wire shape of Anthropic's Messages API or OpenAI's Chat Completions API.
type HTTPAPIProvider struct {
	name        string
	vendor      Vendor
	model       string
	apiKey      string
	client      *resty.Client
	maxAttempts uint64
}

// NewHTTPAPIProvider constructs a provider speaking the given vendor's wire
// shape, registered under name for rule-level InferenceProvider overrides.
func NewHTTPAPIProvider(name string, vendor Vendor, model, apiKey string, timeout time.Duration, maxAttempts uint64) *HTTPAPIProvider {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	client := resty.New().SetTimeout(timeout)
	switch vendor {
	case VendorClaude:
		client.SetBaseURL("https://api.anthropic.com")
		client.SetHeader("x-api-key", apiKey)
		client.SetHeader("anthropic-version", "2023-06-01")
	case VendorOpenAI:
		client.SetBaseURL("https://api.openai.com")
		client.SetHeader("Authorization", "Bearer "+apiKey)
	}
	client.SetHeader("Content-Type", "application/json")

	return &HTTPAPIProvider{
		name:        name,
		vendor:      vendor,
		model:       model,
		apiKey:      apiKey,
		client:      client,
		maxAttempts: maxAttempts,
	}
}

func (p *HTTPAPIProvider) Name() string { return p.name }

type claudeRequest struct {
	Model       string          `json:"model"`
	Messages    []claudeMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

type openAIRequest struct {
	Model          string          `json:"model"`
	Messages       []claudeMessage `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type openAIResponse struct {
	Choices []struct {
		Message claudeMessage `json:"message"`
	} `json:"choices"`
}

// Evaluate posts the prompt to the configured vendor API and parses the
// resulting decision, retrying transient failures via an exponential
// backoff policy.
func (p *HTTPAPIProvider) Evaluate(ctx context.Context, req decision.InferenceRequest) (decision.InferenceDecision, error) {
	base, err := retry.NewExponential(100 * time.Millisecond)
	if err != nil {
		return decision.InferenceDecision{}, decision.Wrap(decision.KindInternalError, err)
	}
	backoff := retry.WithMaxRetries(p.maxAttempts, base)

	var result decision.InferenceDecision
	start := time.Now()
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		body, statusCode, err := p.send(ctx, req.Prompt)
		if err != nil {
			return retry.RetryableError(err)
		}
		if statusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("%s API returned status %d", p.vendor, statusCode))
		}
		if statusCode >= 400 {
			return fmt.Errorf("%s API returned status %d", p.vendor, statusCode)
		}
		result = parseDecision(body, p.name, p.model, time.Since(start).Milliseconds())
		return nil
	})
	if err != nil {
		return decision.InferenceDecision{}, decision.Wrapf(decision.KindAIServiceUnavailable, "%s provider: %w", p.vendor, err)
	}
	return result, nil
}

func (p *HTTPAPIProvider) send(ctx context.Context, prompt string) (text string, statusCode int, err error) {
	switch p.vendor {
	case VendorClaude:
		payload := claudeRequest{
			Model:       p.model,
			Messages:    []claudeMessage{{Role: "user", Content: prompt}},
			Temperature: 0.0,
			MaxTokens:   500,
		}
		var out claudeResponse
		resp, err := p.client.R().SetContext(ctx).SetBody(payload).SetResult(&out).Post("/v1/messages")
		if err != nil {
			return "", 0, err
		}
		if len(out.Content) == 0 {
			return "", resp.StatusCode(), nil
		}
		return out.Content[0].Text, resp.StatusCode(), nil

	case VendorOpenAI:
		payload := openAIRequest{
			Model: p.model,
			Messages: []claudeMessage{
				{Role: "system", Content: "You are a security evaluation system. Respond with JSON containing: decision (allow/deny), confidence (0.0-1.0), reasoning, and risk_factors array."},
				{Role: "user", Content: prompt},
			},
			Temperature: 0.0,
			MaxTokens:   500,
		}
		payload.ResponseFormat.Type = "json_object"
		var out openAIResponse
		resp, err := p.client.R().SetContext(ctx).SetBody(payload).SetResult(&out).Post("/v1/chat/completions")
		if err != nil {
			return "", 0, err
		}
		if len(out.Choices) == 0 {
			return "", resp.StatusCode(), nil
		}
		return out.Choices[0].Message.Content, resp.StatusCode(), nil

	default:
		return "", 0, fmt.Errorf("unknown vendor %q", p.vendor)
	}
}

// parsedDecision is the loose JSON shape the model is asked to return.
type parsedDecision struct {
	Decision    string   `json:"decision"`
	Confidence  float64  `json:"confidence"`
	Reasoning   string   `json:"reasoning"`
	Reason      string   `json:"reason"`
	RiskFactors []string `json:"risk_factors"`
}

// parseDecision extracts a JSON object from the model's free-form response
// text, falling back to a DECISION:/REASON:/CONFIDENCE: line scan, and
// finally to a safe deny if nothing parses.
func parseDecision(text, provider, model string, responseTimeMS int64) decision.InferenceDecision {
	if start := strings.Index(text, "{"); start != -1 {
		if end := strings.LastIndex(text, "}"); end > start {
			var parsed parsedDecision
			if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err == nil && parsed.Decision != "" {
				reason := parsed.Reasoning
				if reason == "" {
					reason = parsed.Reason
				}
				return toInferenceDecision(parsed.Decision, parsed.Confidence, reason, parsed.RiskFactors, provider, model, responseTimeMS)
			}
		}
	}

	if parsed, ok := parseLineFormat(text); ok {
		return toInferenceDecision(parsed.Decision, parsed.Confidence, parsed.Reasoning, parsed.RiskFactors, provider, model, responseTimeMS)
	}

	return decision.InferenceDecision{
		Action:         decision.Deny,
		Confidence:     0.3,
		Reason:         "failed to parse AI response - defaulting to deny",
		RiskFactors:    []string{"parse_error"},
		Provider:       provider,
		Model:          model,
		ResponseTimeMS: responseTimeMS,
	}
}

func parseLineFormat(text string) (parsedDecision, bool) {
	var parsed parsedDecision
	found := false
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		switch {
		case strings.HasPrefix(line, "DECISION:"):
			v := strings.ToLower(strings.TrimSpace(strings.SplitN(line, ":", 2)[1]))
			if v == "allow" {
				parsed.Decision = "allow"
			} else {
				parsed.Decision = "deny"
			}
			found = true
		case strings.HasPrefix(line, "REASON:"):
			parsed.Reasoning = strings.TrimSpace(strings.SplitN(line, ":", 2)[1])
			found = true
		case strings.HasPrefix(line, "CONFIDENCE:"):
			if v, err := strconv.ParseFloat(strings.TrimSpace(strings.SplitN(line, ":", 2)[1]), 64); err == nil {
				parsed.Confidence = v
			} else {
				parsed.Confidence = 0.7
			}
			found = true
		}
	}
	return parsed, found
}

func toInferenceDecision(rawDecision string, confidence float64, reason string, riskFactors []string, provider, model string, responseTimeMS int64) decision.InferenceDecision {
	action := decision.Deny
	if rawDecision == "allow" {
		action = decision.Allow
	}
	if confidence == 0 {
		confidence = 0.5
	}
	if reason == "" {
		reason = "failed to parse AI response"
	}
	return decision.InferenceDecision{
		Action:         action,
		Confidence:     confidence,
		Reason:         reason,
		RiskFactors:    riskFactors,
		Provider:       provider,
		Model:          model,
		ResponseTimeMS: responseTimeMS,
	}
}

// HealthCheck reports healthy whenever an API key is configured, matching the
// original's shallow "services_initialized" health signal; it sends no
// request to the vendor API, so no request budget is spent on health polls.
func (p *HTTPAPIProvider) HealthCheck(ctx context.Context) inference.ProviderHealth {
	healthy := p.apiKey != ""
	detail := ""
	if !healthy {
		detail = "no API key configured"
	}
	return inference.ProviderHealth{Name: p.name, Healthy: healthy, Detail: detail}
}

var _ inference.Provider = (*HTTPAPIProvider)(nil)
