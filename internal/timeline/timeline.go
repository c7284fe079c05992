// Package timeline materializes concrete, dated occurrences of calendar
// components over a query window. It combines the lazy property layer
// with the recurrence engine: recurring components expand through their
// recurrence set, non-recurring ones yield themselves, and every result
// carries a resolved start and end.
package timeline

import (
	"fmt"
	"sort"
	"time"

	"icalq/internal/ical"
	applog "icalq/internal/log"
	"icalq/internal/recur"
	"icalq/internal/tz"
)

// Window bounds a query. A zero Start or End means unbounded on that
// side. The window is inclusive-start, exclusive-end unless IncludeEnd
// is set.
type Window struct {
	Start      time.Time
	End        time.Time
	IncludeEnd bool
}

func (w Window) validate() error {
	if !w.Start.IsZero() && !w.End.IsZero() && w.Start.After(w.End) {
		return fmt.Errorf("timeline: window start %s after end %s", w.Start, w.End)
	}
	return nil
}

// Occurrence is one materialized instance of a component. Occurrences
// are ephemeral query results; they reference the component tree but are
// never stored back into it. For an overridden instance Component points
// at the overriding component, not the series definition.
type Occurrence struct {
	Component  *ical.Component
	Start      time.Time
	End        time.Time
	Overridden bool
}

// Duration returns the resolved length of the occurrence.
func (o Occurrence) Duration() time.Duration {
	return o.End.Sub(o.Start)
}

// Config tunes a query.
type Config struct {
	// Resolver supplies zone offsets for TZID-qualified datetimes;
	// tz.System when nil.
	Resolver tz.Resolver
	// MaxPerComponent caps expansion of unbounded rules per component.
	MaxPerComponent int
}

// Query materializes all occurrences of the given components within the
// window, ascending by start with stable input order breaking ties.
// Calendars may be passed directly; their event, to-do, journal and
// free/busy children are queried.
func Query(components []*ical.Component, win Window) ([]Occurrence, error) {
	return QueryConfig(components, win, Config{})
}

func QueryConfig(components []*ical.Component, win Window, cfg Config) ([]Occurrence, error) {
	if err := win.validate(); err != nil {
		return nil, err
	}

	var out []Occurrence
	for _, grp := range groupComponents(components) {
		out = append(out, expandGroup(grp, win, cfg)...)
	}

	stableSortByStart(out)
	return out, nil
}

// group is one UID's worth of components: the series definitions plus
// any RECURRENCE-ID overrides.
type group struct {
	bases     []*ical.Component
	overrides []*ical.Component
}

func queryable(k ical.Kind) bool {
	switch k {
	case ical.KindEvent, ical.KindTodo, ical.KindJournal, ical.KindFreeBusy:
		return true
	}
	return false
}

// groupComponents flattens calendars and groups components by UID,
// splitting base definitions from overrides. Components without a UID
// each form their own group. Input order is preserved.
func groupComponents(components []*ical.Component) []*group {
	var flat []*ical.Component
	for _, c := range components {
		if c == nil {
			continue
		}
		if c.Kind == ical.KindCalendar {
			for _, ch := range c.Children {
				if queryable(ch.Kind) {
					flat = append(flat, ch)
				}
			}
			continue
		}
		if queryable(c.Kind) {
			flat = append(flat, c)
		}
	}

	byUID := make(map[string]*group)
	var ordered []*group
	for i, c := range flat {
		uid := ""
		if p := c.PropertyNamed("UID"); p != nil {
			uid = p.Value
		}
		if uid == "" {
			uid = fmt.Sprintf("\x00anon-%d", i)
		}
		grp, ok := byUID[uid]
		if !ok {
			grp = &group{}
			byUID[uid] = grp
			ordered = append(ordered, grp)
		}
		if c.PropertyNamed("RECURRENCE-ID") != nil {
			grp.overrides = append(grp.overrides, c)
		} else {
			grp.bases = append(grp.bases, c)
		}
	}
	return ordered
}

func expandGroup(grp *group, win Window, cfg Config) []Occurrence {
	// Override-only groups: each override stands alone, detached from
	// any series supplied in this query.
	if len(grp.bases) == 0 {
		var out []Occurrence
		for _, ov := range grp.overrides {
			start, ok := startOf(ov, cfg.Resolver)
			if !ok || !inWindow(start, win) {
				continue
			}
			end := endForStart(ov, start, 0, cfg.Resolver)
			out = append(out, Occurrence{Component: ov, Start: start, End: end, Overridden: true})
		}
		return out
	}

	var out []Occurrence
	for _, base := range grp.bases {
		out = append(out, expandBase(base, grp.overrides, win, cfg)...)
	}
	return out
}

func expandBase(base *ical.Component, overrides []*ical.Component, win Window, cfg Config) []Occurrence {
	res := cfg.Resolver

	start, ok := startOf(base, res)
	if !ok {
		applog.Warn("timeline: component has no usable DTSTART, skipping",
			"kind", base.Kind.String(), "uid", uidOf(base))
		return nil
	}
	baseEnd := endForStart(base, start, 0, res)
	baseDur := baseEnd.Sub(start)

	set := recur.Set{
		DTStart:        start,
		MaxOccurrences: cfg.MaxPerComponent,
	}
	for _, p := range base.PropertiesNamed("RRULE") {
		rule, err := p.Rule()
		if err != nil {
			// Definition errors degrade to an empty sequence for this
			// rule only.
			applog.Warn("timeline: unusable RRULE", "uid", uidOf(base), "detail", err.Error())
			continue
		}
		set.Rules = append(set.Rules, rule)
	}
	for _, p := range base.PropertiesNamed("EXRULE") {
		rule, err := p.Rule()
		if err != nil {
			applog.Warn("timeline: unusable EXRULE", "uid", uidOf(base), "detail", err.Error())
			continue
		}
		set.ExRules = append(set.ExRules, rule)
	}
	for _, p := range base.PropertiesNamed("RDATE") {
		ts, err := p.DateTimes(res)
		if err != nil {
			applog.Warn("timeline: unusable RDATE", "uid", uidOf(base), "detail", err.Error())
			continue
		}
		set.RDates = append(set.RDates, ts...)
	}
	for _, p := range base.PropertiesNamed("EXDATE") {
		ts, err := p.DateTimes(res)
		if err != nil {
			applog.Warn("timeline: unusable EXDATE", "uid", uidOf(base), "detail", err.Error())
			continue
		}
		set.ExDates = append(set.ExDates, ts...)
	}

	ovByStart := make(map[int64]*ical.Component)
	for _, ov := range overrides {
		rid := ov.PropertyNamed("RECURRENCE-ID")
		orig, err := rid.DateTime(res)
		if err != nil {
			applog.Warn("timeline: unusable RECURRENCE-ID", "uid", uidOf(ov), "detail", err.Error())
			continue
		}
		ovStart, ok := startOf(ov, res)
		if !ok {
			ovStart = orig
		}
		set.Overrides = append(set.Overrides, recur.Override{RecurrenceID: orig, Start: ovStart})
		ovByStart[ovStart.UnixNano()] = ov
	}

	resolveEnd := win.End
	if win.IncludeEnd && !win.End.IsZero() {
		resolveEnd = win.End.Add(time.Nanosecond)
	}

	var out []Occurrence
	for _, in := range set.Resolve(win.Start, resolveEnd) {
		comp := base
		if in.Overridden {
			if ov, ok := ovByStart[in.Time.UnixNano()]; ok {
				comp = ov
			}
		}
		out = append(out, Occurrence{
			Component:  comp,
			Start:      in.Time,
			End:        endForStart(comp, in.Time, baseDur, res),
			Overridden: in.Overridden,
		})
	}
	return out
}

func startOf(c *ical.Component, res tz.Resolver) (time.Time, bool) {
	p := c.PropertyNamed("DTSTART")
	if p == nil {
		return time.Time{}, false
	}
	t, err := p.DateTime(res)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// endForStart resolves the end of an occurrence starting at start:
// explicit DTEND (DUE for to-dos), else DTSTART+DURATION, else start
// shifted by the series' base duration. Journals are zero-duration by
// definition; date-valued starts without any end span a full day.
func endForStart(c *ical.Component, start time.Time, baseDur time.Duration, res tz.Resolver) time.Time {
	endName := "DTEND"
	if c.Kind == ical.KindTodo {
		endName = "DUE"
	}
	if c.Kind == ical.KindJournal {
		return start
	}

	if p := c.PropertyNamed(endName); p != nil {
		if end, err := p.DateTime(res); err == nil {
			// For expanded instances the explicit end belongs to the
			// first instance; carry its distance from DTSTART forward.
			if s, ok := startOf(c, res); ok && !s.Equal(start) {
				return start.Add(end.Sub(s))
			}
			return end
		}
	}
	if p := c.PropertyNamed("DURATION"); p != nil {
		if d, err := p.Duration(); err == nil {
			return start.Add(d)
		}
	}
	if baseDur > 0 {
		return start.Add(baseDur)
	}
	if p := c.PropertyNamed("DTSTART"); p != nil && p.ParamValue("VALUE") == "DATE" {
		return start.Add(24 * time.Hour)
	}
	return start
}

func inWindow(t time.Time, win Window) bool {
	if !win.Start.IsZero() && t.Before(win.Start) {
		return false
	}
	if win.End.IsZero() {
		return true
	}
	if win.IncludeEnd {
		return !t.After(win.End)
	}
	return t.Before(win.End)
}

func uidOf(c *ical.Component) string {
	if p := c.PropertyNamed("UID"); p != nil {
		return p.Value
	}
	return ""
}

// stableSortByStart sorts ascending by start, keeping input order for
// equal starts so repeated queries are deterministic.
func stableSortByStart(occs []Occurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		return occs[i].Start.Before(occs[j].Start)
	})
}
