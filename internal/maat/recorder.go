package maat

import (
	"context"
	"io"
	"time"
)

// RebuildRecord describes one finished rebuild attempt of a namespace.
type RebuildRecord struct {
	ID         string
	Namespace  Namespace
	StartedAt  time.Time
	FinishedAt time.Time
	Entries    int
	Error      string // empty on success
}

// Succeeded reports whether the rebuild published a new snapshot.
func (r RebuildRecord) Succeeded() bool { return r.Error == "" }

// Duration returns how long the rebuild took.
func (r RebuildRecord) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// RebuildRecorder persists rebuild history. Failures to record are logged
// and never affect the rebuild itself.
type RebuildRecorder interface {
	RecordRebuild(ctx context.Context, rec RebuildRecord) error
	RecentRebuilds(ctx context.Context, limit int) ([]RebuildRecord, error)
}

// Metrics receives rebuild and query observations.
type Metrics interface {
	// ObserveRebuild is called once per finished rebuild attempt.
	ObserveRebuild(kind string, d time.Duration, entries int, err error)
	// ObserveQuery is called once per query; coalesced is true when the
	// query attached to a rebuild already in flight.
	ObserveQuery(kind string, coalesced bool)
}

// Publisher stores named catalog documents (scenes.json, stats.json, ...)
// for consumption by static front-ends.
type Publisher interface {
	// Put stores a document. size is the number of bytes that will be read from r.
	Put(ctx context.Context, name string, r io.Reader, size int64) error

	// Get retrieves a document and writes it to w.
	Get(ctx context.Context, name string, w io.Writer) error

	// ValidateSetup verifies that the target is accessible.
	ValidateSetup(ctx context.Context) error
}

type nopRecorder struct{}

func (nopRecorder) RecordRebuild(context.Context, RebuildRecord) error { return nil }
func (nopRecorder) RecentRebuilds(context.Context, int) ([]RebuildRecord, error) {
	return nil, nil
}

type nopMetrics struct{}

func (nopMetrics) ObserveRebuild(string, time.Duration, int, error) {}
func (nopMetrics) ObserveQuery(string, bool)                        {}
