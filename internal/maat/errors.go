package maat

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by queries issued after Service.Close.
var ErrClosed = errors.New("maat: service closed")

// ScanError reports that a namespace could not be scanned (bad pattern,
// inaccessible root, unreadable users file). The namespace keeps serving its
// previous snapshot and is rebuilt on the next access.
type ScanError struct {
	Namespace Namespace
	Root      string
	Pattern   string
	Err       error
}

func (e *ScanError) Error() string {
	msg := "scan failed"
	if e.Namespace != "" {
		msg = fmt.Sprintf("scan of %s failed", e.Namespace)
	}
	if e.Pattern != "" {
		msg += fmt.Sprintf(" (pattern %q in %s)", e.Pattern, e.Root)
	} else if e.Root != "" {
		msg += fmt.Sprintf(" (%s)", e.Root)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ScanError) Unwrap() error { return e.Err }

// IsScanError reports whether err carries a *ScanError.
func IsScanError(err error) bool {
	var se *ScanError
	return errors.As(err, &se)
}

// MalformedEntryError reports a single manifest that could not be parsed.
// The entry is skipped; the rest of the rebuild proceeds.
type MalformedEntryError struct {
	Path string
	Err  error
}

func (e *MalformedEntryError) Error() string {
	return fmt.Sprintf("malformed entry %s: %v", e.Path, e.Err)
}

func (e *MalformedEntryError) Unwrap() error { return e.Err }

// asScanError makes sure a rebuild failure is reported as a *ScanError
// tagged with its namespace.
func asScanError(ns Namespace, err error) *ScanError {
	var se *ScanError
	if errors.As(err, &se) {
		tagged := *se
		if tagged.Namespace == "" {
			tagged.Namespace = ns
		}
		return &tagged
	}
	return &ScanError{Namespace: ns, Err: err}
}
