package prov

import (
	"time"

	"prov-go/internal/model"
)

// Clock abstracts time retrieval so derivation dates are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the current UTC time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator produces identifiers for new activities and operations.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs in the dashless form used in ids.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return model.NewIdentifier() }
