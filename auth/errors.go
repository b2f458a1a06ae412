package auth

import (
	"errors"
	"fmt"
)

// ConfigurationError means the operator has to fix something; it is never
// retryable automatically. Remediation tells them what to check.
type ConfigurationError struct {
	Problem     string
	Remediation string
}

func (e *ConfigurationError) Error() string {
	if e.Remediation == "" {
		return e.Problem
	}
	return e.Problem + ": " + e.Remediation
}

// ExchangeError is a provider or network failure during code exchange or
// the user-info fetch. Safe to retry by re-invoking sign-in.
type ExchangeError struct {
	Code        string // provider error code, when one was returned
	Description string
	Err         error
}

func (e *ExchangeError) Error() string {
	msg := e.Description
	if msg == "" {
		msg = "authentication failed"
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Code)
	}
	return msg
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err chains to a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
