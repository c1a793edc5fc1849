package common

import (
	"errors"
	"fmt"
)

// ErrInvalidRange is returned by historical queries whose start is after their end.
var ErrInvalidRange = errors.New("invalid range: start date is after end date")

// FetchErrorKind classifies upstream network failures.
type FetchErrorKind string

const (
	FetchTransient   FetchErrorKind = "transient"   // timeouts, 5xx, resets; retries exhausted
	FetchUnreachable FetchErrorKind = "unreachable" // DNS or connection failure
	FetchRejected    FetchErrorKind = "rejected"    // non-retryable HTTP status
)

// FetchError is returned by the upstream client.
type FetchError struct {
	Kind       FetchErrorKind
	View       string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s (%s) after %d attempt(s)", e.View, e.Kind, e.Attempts)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseErrorKind classifies structural parse failures.
type ParseErrorKind string

const (
	NoRecognizableData ParseErrorKind = "no_recognizable_data"
)

// ParseError means a page held no row that could be turned into a record.
type ParseError struct {
	Kind       ParseErrorKind
	View       string
	TableFound bool // a table with the expected header was present
	Rows       int  // data rows seen in that table
	Skipped    int  // rows rejected for missing or malformed required fields
}

func (e *ParseError) Error() string {
	if !e.TableFound {
		return fmt.Sprintf("parse %s: %s: no table with the expected columns", e.View, e.Kind)
	}
	return fmt.Sprintf("parse %s: %s: %d row(s), %d skipped", e.View, e.Kind, e.Rows, e.Skipped)
}

// EmptyTable reports whether the page had the expected table but no data rows at all.
func (e *ParseError) EmptyTable() bool {
	return e.TableFound && e.Rows == 0
}

// UnavailableReason says why no data could be served.
type UnavailableReason string

const (
	ColdStart UnavailableReason = "cold_start" // nothing cached and the fetch failed
	Timeout   UnavailableReason = "timeout"    // nothing cached and the caller gave up waiting
)

// DataUnavailableError is terminal for the request that receives it.
type DataUnavailableError struct {
	Reason UnavailableReason
	View   string
	Err    error
}

func (e *DataUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s data unavailable (%s): %v", e.View, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s data unavailable (%s)", e.View, e.Reason)
}

func (e *DataUnavailableError) Unwrap() error { return e.Err }
