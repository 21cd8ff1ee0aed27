// Package lifecycle holds the error reported when an application-scoped
// component is used outside the lifetime it was created for.
package lifecycle

import (
	"errors"
	"fmt"
)

var (
	// ErrNotActive means no instance was installed in the context.
	ErrNotActive = errors.New("component is not active")
	// ErrClosed means the instance already reached the end of its lifetime.
	ErrClosed = errors.New("component is closed")
)

// ConfigurationError reports a component used outside its valid scope.
type ConfigurationError struct {
	Component string
	Err       error
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return "configuration error"
	}
	return fmt.Sprintf("%s: %v", e.Component, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NotActive builds the error for a missing component.
func NotActive(component string) error {
	return &ConfigurationError{Component: component, Err: ErrNotActive}
}

// Closed builds the error for a component used after Close.
func Closed(component string) error {
	return &ConfigurationError{Component: component, Err: ErrClosed}
}
