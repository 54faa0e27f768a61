package auth

import "fmt"

// ConfigurationError reports a required credential field missing from the
// secret store. It is fatal and never retried.
type ConfigurationError struct {
	Secret string
	Field  string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s not found in secret %q", e.Field, e.Secret)
}

// AuthenticationError reports a failure to obtain a bearer token.
type AuthenticationError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Err)
	}
	return "authentication failed: " + e.Reason
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *AuthenticationError) Unwrap() error {
	return e.Err
}
