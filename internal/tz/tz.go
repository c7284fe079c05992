// Package tz provides the zone-resolution capability consumed by the
// calendar core. The parser itself never touches the timezone database;
// it only asks a Resolver for the UTC offset of a named zone at a given
// instant.
package tz

import (
	"fmt"
	"sync"
	"time"
)

// Resolver resolves a timezone identifier to its UTC offset at an instant.
type Resolver interface {
	// OffsetAt returns the UTC offset of zoneID at the given wall-clock
	// instant. The instant matters because of DST transitions.
	OffsetAt(zoneID string, at time.Time) (time.Duration, error)
}

// System is the default Resolver backed by the Go timezone database.
var System Resolver = NewSystemResolver()

// SystemResolver resolves zone IDs via time.LoadLocation with a small
// cache so repeated lookups of the same zone stay cheap.
type SystemResolver struct {
	mu    sync.Mutex
	cache map[string]*time.Location
}

func NewSystemResolver() *SystemResolver {
	return &SystemResolver{cache: make(map[string]*time.Location)}
}

func (r *SystemResolver) OffsetAt(zoneID string, at time.Time) (time.Duration, error) {
	loc, err := r.location(zoneID)
	if err != nil {
		return 0, err
	}
	_, off := at.In(loc).Zone()
	return time.Duration(off) * time.Second, nil
}

func (r *SystemResolver) location(zoneID string) (*time.Location, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if loc, ok := r.cache[zoneID]; ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(zoneID)
	if err != nil {
		return nil, fmt.Errorf("tz: unknown zone %q: %w", zoneID, err)
	}
	r.cache[zoneID] = loc
	return loc, nil
}

// FixedLocation builds a fixed-offset location for a zone at an instant.
// Datetime values carrying a TZID are represented in such a location so
// that both the wall-clock fields and the absolute instant stay correct.
func FixedLocation(res Resolver, zoneID string, wall time.Time) (*time.Location, error) {
	if res == nil {
		res = System
	}
	off, err := res.OffsetAt(zoneID, wall)
	if err != nil {
		return nil, err
	}
	return time.FixedZone(zoneID, int(off/time.Second)), nil
}
