package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate validates the Config using struct tags and custom cross-field
// rules. Returns an error if validation fails, with actionable error
// messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateAtLeastOneProvider(); err != nil {
		return err
	}

	if _, err := c.ParseDurations(); err != nil {
		return err
	}

	return nil
}

// validateAtLeastOneProvider ensures at least one inference provider is
// configured. Without one, every "sample" rule evaluation would have
// nothing to dispatch to.
func (c *Config) validateAtLeastOneProvider() error {
	if c.Inference.CLI != nil || c.Inference.Claude != nil || c.Inference.OpenAI != nil || c.Inference.FallbackEnabled {
		return nil
	}
	return errors.New("inference: at least one provider (cli, claude, openai, or fallback_enabled) must be configured")
}

// invalidDuration formats a malformed duration field's error consistently
// across every config.*.Timeout-style field.
func invalidDuration(field, value string, err error) error {
	return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			msg := formatSingleValidationError(e)
			messages = append(messages, msg)
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
