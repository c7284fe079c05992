// Package recur implements recurrence-rule parsing and expansion plus
// the instant-set resolution that combines rules, explicit additions and
// exclusions, and per-instance overrides. Expansion is demand-driven and
// timezone-naive: all arithmetic happens on the wall clock of the anchor
// instant, and zone conversion is the caller's concern.
package recur

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Freq is the base cadence of a rule.
type Freq int

const (
	Secondly Freq = iota
	Minutely
	Hourly
	Daily
	Weekly
	Monthly
	Yearly
)

func (f Freq) String() string {
	switch f {
	case Secondly:
		return "SECONDLY"
	case Minutely:
		return "MINUTELY"
	case Hourly:
		return "HOURLY"
	case Daily:
		return "DAILY"
	case Weekly:
		return "WEEKLY"
	case Monthly:
		return "MONTHLY"
	case Yearly:
		return "YEARLY"
	default:
		return fmt.Sprintf("Freq(%d)", int(f))
	}
}

// WeekdayNum is a BYDAY entry: a weekday with an optional ordinal
// (1MO = first Monday, -1SU = last Sunday, 0 = every matching weekday).
type WeekdayNum struct {
	Ord int
	Day time.Weekday
}

// Rule is one parsed recurrence rule.
type Rule struct {
	Freq     Freq
	Interval int // >= 1

	// End condition: at most one of Count / Until is set.
	Count int       // 0 means unset
	Until time.Time // zero means unset; inclusive bound

	BySecond   []int
	ByMinute   []int
	ByHour     []int
	ByDay      []WeekdayNum
	ByMonthDay []int
	ByYearDay  []int
	ByWeekNo   []int
	ByMonth    []int
	BySetPos   []int

	WeekStart time.Weekday // defaults to Monday
}

// RuleError reports an invalid rule definition. A rule carrying a
// definition error expands to an empty sequence instead of crashing a
// whole-calendar expansion.
type RuleError struct {
	Field  string
	Value  string
	Reason string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("recur: bad %s=%s: %s", e.Field, e.Value, e.Reason)
}

var weekdayNames = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

// ParseRule parses a semicolon-separated KEY=VALUE rule definition such
// as "FREQ=MONTHLY;INTERVAL=2;BYDAY=1MO;COUNT=10".
func ParseRule(s string) (Rule, error) {
	r := Rule{Interval: 1, WeekStart: time.Monday}
	sawFreq := false

	for _, part := range strings.Split(strings.TrimSpace(s), ";") {
		if part == "" {
			continue
		}
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			return r, &RuleError{Field: part, Reason: "missing '='"}
		}
		key := strings.ToUpper(strings.TrimSpace(part[:eq]))
		val := strings.TrimSpace(part[eq+1:])
		bad := func(reason string) error {
			return &RuleError{Field: key, Value: val, Reason: reason}
		}

		switch key {
		case "FREQ":
			f, ok := parseFreq(val)
			if !ok {
				return r, bad("unknown frequency")
			}
			r.Freq = f
			sawFreq = true
		case "INTERVAL":
			n, err := strconv.Atoi(val)
			if err != nil || n <= 0 {
				return r, bad("must be a positive integer")
			}
			r.Interval = n
		case "COUNT":
			n, err := strconv.Atoi(val)
			if err != nil || n <= 0 {
				return r, bad("must be a positive integer")
			}
			r.Count = n
		case "UNTIL":
			t, err := parseUntil(val)
			if err != nil {
				return r, bad("not a date or date-time")
			}
			r.Until = t
		case "WKST":
			wd, ok := weekdayNames[strings.ToUpper(val)]
			if !ok {
				return r, bad("unknown weekday")
			}
			r.WeekStart = wd
		case "BYSECOND":
			var err error
			if r.BySecond, err = parseIntList(val, 0, 60, false); err != nil {
				return r, bad(err.Error())
			}
		case "BYMINUTE":
			var err error
			if r.ByMinute, err = parseIntList(val, 0, 59, false); err != nil {
				return r, bad(err.Error())
			}
		case "BYHOUR":
			var err error
			if r.ByHour, err = parseIntList(val, 0, 23, false); err != nil {
				return r, bad(err.Error())
			}
		case "BYDAY":
			for _, d := range strings.Split(val, ",") {
				wd, err := parseWeekdayNum(d)
				if err != nil {
					return r, bad(err.Error())
				}
				r.ByDay = append(r.ByDay, wd)
			}
		case "BYMONTHDAY":
			var err error
			if r.ByMonthDay, err = parseIntList(val, 1, 31, true); err != nil {
				return r, bad(err.Error())
			}
		case "BYYEARDAY":
			var err error
			if r.ByYearDay, err = parseIntList(val, 1, 366, true); err != nil {
				return r, bad(err.Error())
			}
		case "BYWEEKNO":
			var err error
			if r.ByWeekNo, err = parseIntList(val, 1, 53, true); err != nil {
				return r, bad(err.Error())
			}
		case "BYMONTH":
			var err error
			if r.ByMonth, err = parseIntList(val, 1, 12, false); err != nil {
				return r, bad(err.Error())
			}
		case "BYSETPOS":
			var err error
			if r.BySetPos, err = parseIntList(val, 1, 366, true); err != nil {
				return r, bad(err.Error())
			}
		default:
			// Unknown keys are tolerated, matching the permissive stance
			// of the rest of the parser.
		}
	}

	if !sawFreq {
		return r, &RuleError{Field: "FREQ", Reason: "required"}
	}
	if r.Count > 0 && !r.Until.IsZero() {
		return r, &RuleError{Field: "COUNT", Value: strconv.Itoa(r.Count), Reason: "COUNT and UNTIL are mutually exclusive"}
	}
	return r, nil
}

func parseFreq(v string) (Freq, bool) {
	switch strings.ToUpper(v) {
	case "SECONDLY":
		return Secondly, true
	case "MINUTELY":
		return Minutely, true
	case "HOURLY":
		return Hourly, true
	case "DAILY":
		return Daily, true
	case "WEEKLY":
		return Weekly, true
	case "MONTHLY":
		return Monthly, true
	case "YEARLY":
		return Yearly, true
	}
	return 0, false
}

func parseUntil(v string) (time.Time, error) {
	for _, layout := range []string{"20060102T150405Z", "20060102T150405"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	if t, err := time.Parse("20060102", v); err == nil {
		// A date-only bound covers the whole final day, so a series
		// anchored mid-day still includes its last occurrence.
		return t.AddDate(0, 0, 1).Add(-time.Second), nil
	}
	return time.Time{}, fmt.Errorf("bad UNTIL value %q", v)
}

// parseIntList parses a comma-separated integer list where each absolute
// value must lie in [min, max]. negOK permits negative (from-the-end)
// values; zero is never valid when min >= 1.
func parseIntList(v string, min, max int, negOK bool) ([]int, error) {
	var out []int
	for _, part := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", part)
		}
		abs := n
		if abs < 0 {
			if !negOK {
				return nil, fmt.Errorf("%d out of range [%d,%d]", n, min, max)
			}
			abs = -abs
		}
		if abs < min || abs > max {
			return nil, fmt.Errorf("%d out of range [%d,%d]", n, min, max)
		}
		out = append(out, n)
	}
	return out, nil
}

func parseWeekdayNum(v string) (WeekdayNum, error) {
	s := strings.ToUpper(strings.TrimSpace(v))
	if len(s) < 2 {
		return WeekdayNum{}, fmt.Errorf("bad weekday %q", v)
	}
	name := s[len(s)-2:]
	wd, ok := weekdayNames[name]
	if !ok {
		return WeekdayNum{}, fmt.Errorf("bad weekday %q", v)
	}
	ord := 0
	if prefix := s[:len(s)-2]; prefix != "" {
		n, err := strconv.Atoi(prefix)
		if err != nil || n == 0 || n > 53 || n < -53 {
			return WeekdayNum{}, fmt.Errorf("bad weekday ordinal %q", v)
		}
		ord = n
	}
	return WeekdayNum{Ord: ord, Day: wd}, nil
}
