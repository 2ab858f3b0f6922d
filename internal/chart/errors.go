package chart

import (
	"errors"
	"fmt"
	"strings"

	"github.com/KaramelBytes/chartloom-cli/internal/analysis"
)

// ColumnNotFoundError indicates a request names a column the dataset lacks.
type ColumnNotFoundError struct {
	Field  string
	Column string
}

func (e *ColumnNotFoundError) Error() string {
	return fmt.Sprintf("column %q (%s) not found in dataset", e.Column, e.Field)
}

// MissingRequiredColumnError indicates a role the chart kind needs is unset.
type MissingRequiredColumnError struct {
	Kind   Kind
	Field  string
	Reason string
}

func (e *MissingRequiredColumnError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s chart requires %s: %s", e.Kind, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s chart requires %s", e.Kind, e.Field)
}

// InvalidEnumValueError indicates a value outside a fixed set, such as an
// unknown chart type, resample frequency or aggregate function.
type InvalidEnumValueError struct {
	Field   string
	Value   string
	Allowed []string
}

func (e *InvalidEnumValueError) Error() string {
	return fmt.Sprintf("invalid %s %q (allowed: %s)", e.Field, e.Value, strings.Join(e.Allowed, ", "))
}

// InsufficientColumnsError indicates too few numeric columns for a multi-column chart.
type InsufficientColumnsError struct {
	Kind Kind
	Need int
	Got  int
}

func (e *InsufficientColumnsError) Error() string {
	return fmt.Sprintf("%s chart needs at least %d numeric columns, got %d", e.Kind, e.Need, e.Got)
}

// ColumnKindError indicates a column exists but has the wrong inferred kind for its role.
type ColumnKindError struct {
	Field  string
	Column string
	Want   analysis.Kind
	Got    analysis.Kind
}

func (e *ColumnKindError) Error() string {
	return fmt.Sprintf("column %q (%s) must be %s, is %s", e.Column, e.Field, e.Want, e.Got)
}

// ColumnConflictError indicates a column would appear twice in a derived
// table, such as coloring a resampled series by its own date column.
type ColumnConflictError struct {
	Field  string
	Column string
	With   string
}

func (e *ColumnConflictError) Error() string {
	return fmt.Sprintf("column %q (%s) conflicts with %s", e.Column, e.Field, e.With)
}

// IsValidation reports whether err is one of the request validation errors,
// all of which are recoverable by correcting the request.
func IsValidation(err error) bool {
	var (
		notFound *ColumnNotFoundError
		missing  *MissingRequiredColumnError
		enum     *InvalidEnumValueError
		few      *InsufficientColumnsError
		kind     *ColumnKindError
		conflict *ColumnConflictError
	)
	return errors.As(err, &notFound) ||
		errors.As(err, &missing) ||
		errors.As(err, &enum) ||
		errors.As(err, &few) ||
		errors.As(err, &kind) ||
		errors.As(err, &conflict)
}
