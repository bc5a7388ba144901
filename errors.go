package junction

import (
	"errors"
	"fmt"
)

// ErrorCode represents specific error conditions in the controller
type ErrorCode int

const (
	// No error occurred
	ErrCodeNone ErrorCode = iota
	// Thresholds or options are invalid
	ErrCodeInvalidConfiguration
	// A transition guard panicked
	ErrCodeGuardPanic
	// An observer panicked
	ErrCodeObserverPanic
)

// ConfigurationError represents controller configuration issues
type ConfigurationError struct {
	Component string
	Issue     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Issue)
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(component, issue string) *ConfigurationError {
	return &ConfigurationError{
		Component: component,
		Issue:     issue,
	}
}

// GuardError reports a guard that panicked while being evaluated
type GuardError struct {
	Transition string
	Phase      Phase
	Cause      error
}

func (e *GuardError) Error() string {
	return fmt.Sprintf("guard '%s' failed in phase %s: %v", e.Transition, e.Phase, e.Cause)
}

func (e *GuardError) Unwrap() error {
	return e.Cause
}

// NewGuardError creates a new guard error
func NewGuardError(transition string, phase Phase, cause error) *GuardError {
	return &GuardError{
		Transition: transition,
		Phase:      phase,
		Cause:      cause,
	}
}

// ObserverError reports an observer callback that panicked
type ObserverError struct {
	Callback string
	Cause    error
}

func (e *ObserverError) Error() string {
	return fmt.Sprintf("observer panic in %s: %v", e.Callback, e.Cause)
}

func (e *ObserverError) Unwrap() error {
	return e.Cause
}

// IsConfigurationError checks if an error is a ConfigurationError
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsGuardError checks if an error is a GuardError
func IsGuardError(err error) bool {
	var target *GuardError
	return errors.As(err, &target)
}

// GetErrorCode returns the error code for known error types
func GetErrorCode(err error) ErrorCode {
	var cfgErr *ConfigurationError
	var guardErr *GuardError
	var obsErr *ObserverError
	switch {
	case err == nil:
		return ErrCodeNone
	case errors.As(err, &cfgErr):
		return ErrCodeInvalidConfiguration
	case errors.As(err, &guardErr):
		return ErrCodeGuardPanic
	case errors.As(err, &obsErr):
		return ErrCodeObserverPanic
	default:
		return ErrCodeNone
	}
}
