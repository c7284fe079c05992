package recur

import (
	"sort"
	"time"
)

// defaultMaxOccurrences caps per-set expansion when the caller gives no
// explicit limit, so unbounded windows over unbounded rules stay finite.
const defaultMaxOccurrences = 5000

// Override records one replaced instance of a recurring series: the
// original instant being overridden (RECURRENCE-ID) and the replacement
// start instant.
type Override struct {
	RecurrenceID time.Time
	Start        time.Time
}

// Instant is one resolved element of a recurrence set.
type Instant struct {
	Time       time.Time
	Overridden bool
}

// Set is the full recurrence definition of one component: recurrence
// rules, explicit additions, exclusion rules, explicit exclusions and
// per-instance overrides, all anchored at DTStart.
type Set struct {
	DTStart   time.Time
	Rules     []Rule
	RDates    []time.Time
	ExRules   []Rule
	ExDates   []time.Time
	Overrides []Override

	// MaxOccurrences bounds expansion; 0 means defaultMaxOccurrences.
	MaxOccurrences int
}

// Resolve returns the ascending, deduplicated instants of the set within
// [from, to). A zero bound is unbounded on that side. Semantics:
//
//   - union every rule expansion with every RDate
//   - DTStart itself is always included unless excluded
//   - subtract every ExRule expansion and every ExDate
//   - an instant matching an override's RECURRENCE-ID is replaced by the
//     override's start and flagged; an excluded instant consumes its
//     override entirely
//   - overrides matching no generated instant are still emitted at their
//     own start (a detached override is not an error)
func (s *Set) Resolve(from, to time.Time) []Instant {
	limit := s.MaxOccurrences
	if limit <= 0 {
		limit = defaultMaxOccurrences
	}

	ovByKey := make(map[int64]Override, len(s.Overrides))
	for _, ov := range s.Overrides {
		ovByKey[ov.RecurrenceID.UnixNano()] = ov
	}

	// Union of rule expansions, additions and the anchor itself. Only
	// instants at or past the window's start count against the cap, so a
	// window far beyond the anchor still fills up; earlier instants are
	// dropped unless an override references them.
	var gen []time.Time
	if !s.DTStart.IsZero() {
		gen = append(gen, s.DTStart)
	}
	gen = append(gen, s.RDates...)
	if !s.DTStart.IsZero() {
		for _, rule := range s.Rules {
			it := NewIterator(rule, s.DTStart)
			for kept := 0; kept < limit; {
				t, ok := it.Next()
				if !ok {
					break
				}
				if !to.IsZero() && !t.Before(to) {
					break
				}
				if !from.IsZero() && t.Before(from) {
					if _, ok := ovByKey[t.UnixNano()]; ok {
						gen = append(gen, t)
					}
					continue
				}
				gen = append(gen, t)
				kept++
			}
		}
	}

	sort.Slice(gen, func(i, j int) bool { return gen[i].Before(gen[j]) })
	gen = dedupeTimes(gen)

	excluded := make(map[int64]bool)
	for _, t := range s.ExDates {
		excluded[t.UnixNano()] = true
	}
	if len(gen) > 0 && !s.DTStart.IsZero() {
		last := gen[len(gen)-1]
		for _, rule := range s.ExRules {
			it := NewIterator(rule, s.DTStart)
			for n := 0; n < limit; n++ {
				t, ok := it.Next()
				if !ok || t.After(last) {
					break
				}
				excluded[t.UnixNano()] = true
			}
		}
	}

	consumed := make(map[int64]bool)

	var out []Instant
	for _, t := range gen {
		key := t.UnixNano()
		if excluded[key] {
			// Exclusion wins; it also consumes any override for this
			// instant so it does not resurface as detached.
			consumed[key] = true
			continue
		}
		if ov, ok := ovByKey[key]; ok {
			consumed[key] = true
			out = append(out, Instant{Time: ov.Start, Overridden: true})
			continue
		}
		out = append(out, Instant{Time: t})
	}

	// Detached overrides: preserved by policy.
	for key, ov := range ovByKey {
		if !consumed[key] {
			out = append(out, Instant{Time: ov.Start, Overridden: true})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })

	// Collapse ties; an override flag survives the collapse.
	merged := out[:0]
	for _, in := range out {
		if n := len(merged); n > 0 && in.Time.Equal(merged[n-1].Time) {
			merged[n-1].Overridden = merged[n-1].Overridden || in.Overridden
			continue
		}
		merged = append(merged, in)
	}
	out = merged

	// Window clip, inclusive start, exclusive end.
	filtered := out[:0]
	for _, in := range out {
		if !from.IsZero() && in.Time.Before(from) {
			continue
		}
		if !to.IsZero() && !in.Time.Before(to) {
			continue
		}
		filtered = append(filtered, in)
	}
	return filtered
}

func dedupeTimes(ts []time.Time) []time.Time {
	out := ts[:0]
	for i, t := range ts {
		if i == 0 || !t.Equal(out[len(out)-1]) {
			out = append(out, t)
		}
	}
	return out
}
