package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a single validation failure.
type ValidationError struct {
	Field   string // the config field path, e.g. "ai.max_iterations"
	Value   any    // the invalid value
	Message string // human-readable error description
}

// Error implements the error interface for ValidationError.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Validate checks the Config for invalid values and returns all
// validation errors found.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors
	errs = append(errs, c.validateAI()...)
	return errs
}

func (c *Config) validateAI() []ValidationError {
	var errs []ValidationError
	ai := c.AI

	if !IsValidBackend(ai.Reviewer) {
		errs = append(errs, ValidationError{
			Field: "ai.reviewer", Value: ai.Reviewer,
			Message: fmt.Sprintf("must be one of %v", ValidBackends()),
		})
	}
	if !IsValidBackend(ai.Reviewee) {
		errs = append(errs, ValidationError{
			Field: "ai.reviewee", Value: ai.Reviewee,
			Message: fmt.Sprintf("must be one of %v", ValidBackends()),
		})
	}
	if ai.MaxIterations <= 0 {
		errs = append(errs, ValidationError{
			Field: "ai.max_iterations", Value: ai.MaxIterations,
			Message: "must be positive",
		})
	}
	if ai.TimeoutSecs <= 0 {
		errs = append(errs, ValidationError{
			Field: "ai.timeout_secs", Value: ai.TimeoutSecs,
			Message: "must be positive",
		})
	}

	return errs
}
