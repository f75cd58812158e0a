package config

import (
	"fmt"
	"strings"

	"github.com/QetzylTech/ZLUDA/internal/arch"
	"github.com/QetzylTech/ZLUDA/internal/logging"
)

// ValidationError represents a single validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MultiValidationError represents multiple validation errors.
type MultiValidationError struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (e *MultiValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}

	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "validation failed with %d errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&builder, "  %d. %s\n", i+1, err.Error())
	}
	return builder.String()
}

// Validate checks that every setting names something zluda-dump knows.
func (c *Config) Validate() error {
	var errs []ValidationError

	if _, ok := logging.ParseLevel(c.Log.Level); !ok {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("unknown level %q (use trace, debug, info, warn, error or off)", c.Log.Level),
		})
	}

	// auto is resolved against the host when used.
	if a := strings.ToLower(strings.TrimSpace(c.Arch)); a != "" && a != "auto" {
		if _, err := arch.Parse(a); err != nil {
			errs = append(errs, ValidationError{Field: "arch", Message: err.Error()})
		}
	}

	if strings.TrimSpace(c.Trace) == "" {
		errs = append(errs, ValidationError{Field: "trace", Message: "destination cannot be empty"})
	}

	for _, name := range c.Skip {
		if strings.TrimSpace(name) == "" || strings.ContainsAny(name, " \t(") {
			errs = append(errs, ValidationError{
				Field:   "skip",
				Message: fmt.Sprintf("%q is not a function name", name),
			})
		}
	}

	if len(errs) > 0 {
		return &MultiValidationError{Errors: errs}
	}
	return nil
}

// Architecture resolves the configured calling convention.
func (c *Config) Architecture() (arch.Arch, error) {
	return arch.Parse(c.Arch)
}

// LoggingConfig converts the log settings for the logging package.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Pretty = c.Log.Pretty
	return cfg
}
