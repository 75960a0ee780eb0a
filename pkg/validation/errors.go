package validation

import (
	"fmt"
	"strings"
)

const nonFieldKey = "non_field_errors"

// Error carries per-field validation failures for guard and invariant checks.
// The HTTP error handler renders Fields into the response meta as
// {field: [messages]}.
type Error struct {
	Message string
	Fields  map[string][]string
}

func New(message string) *Error {
	return &Error{
		Message: message,
		Fields:  map[string][]string{},
	}
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	parts := make([]string, 0, len(e.Fields))
	for field, msgs := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(msgs, "; ")))
	}
	return fmt.Sprintf("%s (%s)", e.Message, strings.Join(parts, ", "))
}

// Add records a failure against a field.
func (e *Error) Add(field, message string) *Error {
	e.Fields[field] = append(e.Fields[field], message)
	return e
}

// Addf records a formatted failure against a field.
func (e *Error) Addf(field, format string, args ...any) *Error {
	return e.Add(field, fmt.Sprintf(format, args...))
}

// AddNonField records a failure not tied to a single field.
func (e *Error) AddNonField(message string) *Error {
	return e.Add(nonFieldKey, message)
}

// HasErrors reports whether any failure was recorded.
func (e *Error) HasErrors() bool {
	return len(e.Fields) > 0
}

// OrNil returns the error when failures were recorded, otherwise nil.
func (e *Error) OrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// Meta returns the field map for the error response.
func (e *Error) Meta() map[string]any {
	meta := make(map[string]any, len(e.Fields))
	for field, msgs := range e.Fields {
		meta[field] = msgs
	}
	return meta
}

// NonField builds an error with a single non-field message.
func NonField(message string) *Error {
	return New(message).AddNonField(message)
}
