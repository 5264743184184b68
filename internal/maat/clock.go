package maat

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Clock abstracts time retrieval so staleness windows are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts unique ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// ULIDGenerator produces lexically time-ordered ULIDs.
type ULIDGenerator struct{}

func (ULIDGenerator) New() string { return ulid.Make().String() }
