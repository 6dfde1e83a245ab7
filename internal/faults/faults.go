// Package faults defines the error taxonomy shared by the analysis pipeline.
//
// Recoverable conditions (parse, schema violation, provider) are logged and
// recorded as Warnings on the pipeline state. Fatal conditions (missing
// upstream artifact, cancellation) end the run.
package faults

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an error for reporting.
type Kind string

const (
	KindParse           Kind = "parse"
	KindSchemaViolation Kind = "schema_violation"
	KindProvider        Kind = "provider"
	KindUpstreamMissing Kind = "upstream_missing"
	KindCanceled        Kind = "canceled"
	KindInternal        Kind = "internal"
)

// Severity separates degraded output from run-ending failures.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityFatal   Severity = "fatal"
)

// ErrCanceled is returned when the run is aborted by the user at a question boundary.
var ErrCanceled = errors.New("run canceled by user")

// Warning is a non-fatal error entry kept on the pipeline state.
type Warning struct {
	ID      string    `json:"id"`
	Phase   string    `json:"phase"`
	Source  string    `json:"source"`
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// NewWarning builds a Warning from an error, deriving its Kind.
func NewWarning(phase, source string, err error) Warning {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Warning{
		ID:      uuid.NewString(),
		Phase:   phase,
		Source:  source,
		Kind:    KindOf(err),
		Message: msg,
		At:      time.Now().UTC(),
	}
}

func (w Warning) String() string {
	return fmt.Sprintf("[%s] %s/%s: %s", w.Kind, w.Phase, w.Source, w.Message)
}

// ParseError means raw generated text held no well-formed structured value.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse generated output: %v", e.Err)
	}
	return "parse generated output: no structured value found"
}

func (e *ParseError) Unwrap() error { return e.Err }

// SchemaViolation reports fields that had to be coerced or defaulted.
type SchemaViolation struct {
	Schema    string
	Coerced   []string
	Defaulted []string
}

func (e *SchemaViolation) Error() string {
	var parts []string
	if len(e.Coerced) > 0 {
		parts = append(parts, "coerced "+strings.Join(e.Coerced, ","))
	}
	if len(e.Defaulted) > 0 {
		parts = append(parts, "defaulted "+strings.Join(e.Defaulted, ","))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("schema %s: output repaired", e.Schema)
	}
	return fmt.Sprintf("schema %s: %s", e.Schema, strings.Join(parts, "; "))
}

// ProviderError wraps an external provider failure after the retry budget ran out.
type ProviderError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("provider %s failed after %d attempt(s): %v", e.Provider, e.Attempts, e.Err)
	}
	return fmt.Sprintf("provider %s failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// UpstreamMissingError is fatal: a phase's required input was never produced.
type UpstreamMissingError struct {
	Phase string
	Field string
}

func (e *UpstreamMissingError) Error() string {
	return fmt.Sprintf("phase %s: required upstream artifact %q is missing", e.Phase, e.Field)
}

// KindOf maps an error onto the taxonomy.
func KindOf(err error) Kind {
	var (
		parseErr    *ParseError
		schemaErr   *SchemaViolation
		providerErr *ProviderError
		upstreamErr *UpstreamMissingError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.As(err, &upstreamErr):
		return KindUpstreamMissing
	case errors.As(err, &providerErr):
		return KindProvider
	case errors.As(err, &schemaErr):
		return KindSchemaViolation
	case errors.As(err, &parseErr):
		return KindParse
	}
	// Repair failures from the schema package implement Kind() to avoid an import cycle.
	var kinded interface{ Kind() Kind }
	if errors.As(err, &kinded) {
		return kinded.Kind()
	}
	return KindInternal
}

// SeverityOf reports whether an error ends the run.
func SeverityOf(err error) Severity {
	switch KindOf(err) {
	case KindUpstreamMissing, KindCanceled, KindInternal:
		return SeverityFatal
	default:
		return SeverityWarning
	}
}

// IsFatal is shorthand for SeverityOf(err) == SeverityFatal.
func IsFatal(err error) bool {
	return err != nil && SeverityOf(err) == SeverityFatal
}
