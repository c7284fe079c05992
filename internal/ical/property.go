package ical

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"icalq/internal/recur"
	"icalq/internal/tz"
)

// ConvError reports a failed typed-value conversion. It is scoped to one
// property: the raw value stays available and sibling properties are
// unaffected.
type ConvError struct {
	Name   string
	Raw    string
	Reason string
}

func (e *ConvError) Error() string {
	return fmt.Sprintf("ical: cannot convert %s value %q: %s", e.Name, e.Raw, e.Reason)
}

// valueKind identifies one typed view of a property value for memoization.
type valueKind int

const (
	vkDate valueKind = iota
	vkDateTime
	vkDateTimeList
	vkDuration
	vkInts
	vkFloats
	vkText
	vkTextList
	vkRule
)

type memoEntry struct {
	val any
	err error
}

// Property is one content line attached to a component: a name, a
// parameter map and a raw value. Typed views are computed on first
// access and memoized per view; recomputation never happens for the same
// property instance. The memo is guarded by a mutex so concurrent
// readers at worst race to an identical result.
type Property struct {
	Name   string
	Params []Param
	Value  string

	mu   sync.Mutex
	memo map[valueKind]memoEntry
	// conversions counts actual conversion runs, exercised by tests to
	// prove cache hits.
	conversions int
}

func newProperty(cl ContentLine) *Property {
	return &Property{Name: cl.Name, Params: cl.Params, Value: cl.Value}
}

// Param returns the first parameter with the given name.
func (p *Property) Param(name string) (Param, bool) {
	for _, pr := range p.Params {
		if strings.EqualFold(pr.Name, name) {
			return pr, true
		}
	}
	return Param{}, false
}

// ParamValue returns the first value of the named parameter, or "".
func (p *Property) ParamValue(name string) string {
	if pr, ok := p.Param(name); ok && len(pr.Values) > 0 {
		return pr.Values[0]
	}
	return ""
}

func (p *Property) typed(k valueKind, conv func() (any, error)) (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.memo[k]; ok {
		return e.val, e.err
	}
	if p.memo == nil {
		p.memo = make(map[valueKind]memoEntry)
	}
	p.conversions++
	val, err := conv()
	p.memo[k] = memoEntry{val: val, err: err}
	return val, err
}

func (p *Property) convErr(reason string) *ConvError {
	return &ConvError{Name: p.Name, Raw: p.Value, Reason: reason}
}

// Date returns the value as a calendar date (YYYYMMDD).
func (p *Property) Date() (time.Time, error) {
	v, err := p.typed(vkDate, func() (any, error) {
		t, err := parseDate(p.Value)
		if err != nil {
			return time.Time{}, p.convErr(err.Error())
		}
		return t, nil
	})
	return v.(time.Time), err
}

// DateTime returns the value as an instant. Date-only values resolve to
// midnight. A TZID parameter is resolved through res (tz.System when res
// is nil); the resolver seen by the first call wins for this instance.
func (p *Property) DateTime(res tz.Resolver) (time.Time, error) {
	v, err := p.typed(vkDateTime, func() (any, error) {
		t, err := parseDateTime(p.Value, p.ParamValue("TZID"), res)
		if err != nil {
			return time.Time{}, p.convErr(err.Error())
		}
		return t, nil
	})
	return v.(time.Time), err
}

// DateTimes returns the value as a comma-separated list of instants, the
// shape RDATE and EXDATE use. PERIOD values contribute their start.
func (p *Property) DateTimes(res tz.Resolver) ([]time.Time, error) {
	v, err := p.typed(vkDateTimeList, func() (any, error) {
		var out []time.Time
		tzid := p.ParamValue("TZID")
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			// PERIOD form: start/end or start/duration.
			if i := strings.IndexByte(part, '/'); i >= 0 {
				part = part[:i]
			}
			t, err := parseDateTime(part, tzid, res)
			if err != nil {
				return []time.Time(nil), p.convErr(err.Error())
			}
			out = append(out, t)
		}
		return out, nil
	})
	return v.([]time.Time), err
}

// Duration returns the value parsed with the signed ISO-8601-like
// iCalendar duration grammar ([+|-]PnW or [+|-]PnDTnHnMnS).
func (p *Property) Duration() (time.Duration, error) {
	v, err := p.typed(vkDuration, func() (any, error) {
		d, err := parseDuration(p.Value)
		if err != nil {
			return time.Duration(0), p.convErr(err.Error())
		}
		return d, nil
	})
	return v.(time.Duration), err
}

// Ints returns the value as a comma-separated integer list.
func (p *Property) Ints() ([]int, error) {
	v, err := p.typed(vkInts, func() (any, error) {
		out, err := parseInts(p.Value)
		if err != nil {
			return []int(nil), p.convErr(err.Error())
		}
		return out, nil
	})
	return v.([]int), err
}

// Floats returns the value as a comma-separated float list.
func (p *Property) Floats() ([]float64, error) {
	v, err := p.typed(vkFloats, func() (any, error) {
		out, err := parseFloats(p.Value)
		if err != nil {
			return []float64(nil), p.convErr(err.Error())
		}
		return out, nil
	})
	return v.([]float64), err
}

// Text returns the value with backslash escapes decoded.
func (p *Property) Text() (string, error) {
	v, err := p.typed(vkText, func() (any, error) {
		return unescapeText(p.Value), nil
	})
	return v.(string), err
}

// TextList returns the value split on unescaped commas, each element
// unescaped.
func (p *Property) TextList() ([]string, error) {
	v, err := p.typed(vkTextList, func() (any, error) {
		return splitTextList(p.Value), nil
	})
	return v.([]string), err
}

// Rule returns the value parsed as a recurrence rule.
func (p *Property) Rule() (recur.Rule, error) {
	v, err := p.typed(vkRule, func() (any, error) {
		r, err := recur.ParseRule(p.Value)
		if err != nil {
			return recur.Rule{}, p.convErr(err.Error())
		}
		return r, nil
	})
	return v.(recur.Rule), err
}
