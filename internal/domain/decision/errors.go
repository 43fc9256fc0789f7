package decision

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories in the engine's error
// taxonomy. Kinds are compared with errors.Is/errors.As, never by string
// matching.
type Kind string

const (
	KindInvalidConfiguration Kind = "invalid_configuration"
	KindParameterValidation  Kind = "parameter_validation"
	KindRuleEvaluationFailed Kind = "rule_evaluation_failed"
	KindAIServiceUnavailable Kind = "ai_service_unavailable"
	KindAIServiceTimeout     Kind = "ai_service_timeout"
	KindCircuitOpen          Kind = "circuit_open"
	KindQueueFull            Kind = "queue_full"
	KindEnqueueTimeout       Kind = "enqueue_timeout"
	KindInternalError        Kind = "internal_error"
)

// Sentinel errors for each kind, usable directly with errors.Is.
var (
	ErrInvalidConfiguration = &EngineError{Kind: KindInvalidConfiguration}
	ErrParameterValidation  = &EngineError{Kind: KindParameterValidation}
	ErrRuleEvaluationFailed = &EngineError{Kind: KindRuleEvaluationFailed}
	ErrAIServiceUnavailable = &EngineError{Kind: KindAIServiceUnavailable}
	ErrAIServiceTimeout     = &EngineError{Kind: KindAIServiceTimeout}
	ErrCircuitOpen          = &EngineError{Kind: KindCircuitOpen}
	ErrQueueFull            = &EngineError{Kind: KindQueueFull}
	ErrEnqueueTimeout       = &EngineError{Kind: KindEnqueueTimeout}
	ErrInternalError        = &EngineError{Kind: KindInternalError}
)

// EngineError is the one typed error in the taxonomy; every other error
// surfaced across a component boundary is either one of the sentinels above
// or wrapped in one via Wrap.
type EngineError struct {
	Kind Kind
	Err  error
}

func (e *EngineError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *EngineError) Unwrap() error { return e.Err }

// Is matches on Kind alone so errors.Is(err, ErrCircuitOpen) succeeds
// regardless of the wrapped cause.
func (e *EngineError) Is(target error) bool {
	var t *EngineError
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Wrap produces a new *EngineError of the given kind wrapping err.
func Wrap(kind Kind, err error) *EngineError {
	return &EngineError{Kind: kind, Err: err}
}

// Wrapf is Wrap with a formatted cause message.
func Wrapf(kind Kind, format string, args ...any) *EngineError {
	return &EngineError{Kind: kind, Err: fmt.Errorf(format, args...)}
}
