package core

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a missing required external credential or
// setting. It is fatal and never retried.
type ConfigurationError struct {
	Setting string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Setting, e.Err)
	}
	return fmt.Sprintf("configuration error: %s is not set", e.Setting)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError creates a ConfigurationError for setting.
func NewConfigurationError(setting string) error {
	return &ConfigurationError{Setting: setting}
}

// ClassificationError reports that the router produced no structured decision.
type ClassificationError struct {
	Reason string
	Err    error
}

func (e *ClassificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classification failed: %s: %v", e.Reason, e.Err)
	}
	return "classification failed: " + e.Reason
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// ExternalFetchError reports a non-success response (or transport failure)
// from an external data API. Transient marks failures worth retrying.
type ExternalFetchError struct {
	URL       string
	Status    int
	Body      string
	Transient bool
	Err       error
}

func (e *ExternalFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("external fetch %s failed with status %d: %s", e.URL, e.Status, e.Body)
	}
	return fmt.Sprintf("external fetch %s failed: %v", e.URL, e.Err)
}

func (e *ExternalFetchError) Unwrap() error { return e.Err }

// MissingToolCallError reports that a node required at least one tool
// selection and the completion step returned none it recognised.
type MissingToolCallError struct {
	Node  string
	Tools []string
}

func (e *MissingToolCallError) Error() string {
	return fmt.Sprintf("no tool call found in %s (expected one of %v)", e.Node, e.Tools)
}

// IsTransient reports whether err wraps a failure that may succeed on retry.
func IsTransient(err error) bool {
	var fe *ExternalFetchError
	return errors.As(err, &fe) && fe.Transient
}

// IsClassificationError reports whether err wraps a ClassificationError.
func IsClassificationError(err error) bool {
	var ce *ClassificationError
	return errors.As(err, &ce)
}

// IsMissingToolCall reports whether err wraps a MissingToolCallError.
func IsMissingToolCall(err error) bool {
	var me *MissingToolCallError
	return errors.As(err, &me)
}
