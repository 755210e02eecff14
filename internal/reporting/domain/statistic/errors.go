package statistic

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a stored report row does not exist.
	ErrNotFound = errors.New("statistic: not found")
	// ErrEmptySource is returned when an aggregate has no source id.
	ErrEmptySource = errors.New("statistic: empty source id")
)

// DataSourceError wraps a telemetry fetch failure. Callers log it and treat
// the scope as having no readings.
type DataSourceError struct {
	SourceID string
	Scope    string
	Err      error
}

func (e *DataSourceError) Error() string {
	return fmt.Sprintf("telemetry %s %s: %v", e.SourceID, e.Scope, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

// PersistenceError wraps a report store failure for one source and date.
type PersistenceError struct {
	SourceID string
	Key      string
	Err      error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s %s: %v", e.SourceID, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
