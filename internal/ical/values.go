package ical

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"icalq/internal/tz"
)

const (
	layoutDate        = "20060102"
	layoutDateTime    = "20060102T150405"
	layoutDateTimeUTC = "20060102T150405Z"
)

func parseDate(v string) (time.Time, error) {
	t, err := time.ParseInLocation(layoutDate, strings.TrimSpace(v), time.UTC)
	if err != nil {
		return time.Time{}, errors.New("not a YYYYMMDD date")
	}
	return t, nil
}

// parseDateTime parses DATE or DATE-TIME values. Resolution order:
//   - trailing 'Z' marks UTC
//   - a TZID is resolved to a fixed-offset location via res, preserving
//     both the wall-clock fields and the absolute instant
//   - otherwise the value floats and is interpreted in time.Local
func parseDateTime(v, tzid string, res tz.Resolver) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty date-time value")
	}

	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse(layoutDateTimeUTC, v)
		if err != nil {
			return time.Time{}, errors.New("not a YYYYMMDD'T'HHMMSS'Z' date-time")
		}
		return t, nil
	}

	layout := layoutDateTime
	if !strings.Contains(v, "T") {
		layout = layoutDate
	}

	if tzid == "" {
		t, err := time.ParseInLocation(layout, v, time.Local)
		if err != nil {
			return time.Time{}, errors.New("not a date or date-time")
		}
		return t, nil
	}

	wall, err := time.ParseInLocation(layout, v, time.UTC)
	if err != nil {
		return time.Time{}, errors.New("not a date or date-time")
	}
	loc, err := tz.FixedLocation(res, tzid, wall)
	if err != nil {
		return time.Time{}, err
	}
	return time.ParseInLocation(layout, v, loc)
}

// parseDuration implements the iCalendar duration grammar:
//
//	dur-value = ["+" / "-"] "P" (dur-week / dur-date / dur-time)
//
// e.g. "P15DT5H0M20S", "-P1W", "PT30M".
func parseDuration(v string) (time.Duration, error) {
	s := strings.TrimSpace(v)
	if s == "" {
		return 0, errors.New("empty duration")
	}

	sign := time.Duration(1)
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if len(s) == 0 || s[0] != 'P' {
		return 0, errors.New("duration must start with 'P'")
	}
	s = s[1:]

	var total time.Duration
	inTime := false
	num := ""
	sawPart := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			num += string(c)
		case c == 'T':
			if inTime || num != "" {
				return 0, errors.New("misplaced 'T' in duration")
			}
			inTime = true
		default:
			if num == "" {
				return 0, fmt.Errorf("designator %q without a number", string(c))
			}
			n, err := strconv.Atoi(num)
			if err != nil {
				return 0, errors.New("bad number in duration")
			}
			num = ""
			sawPart = true

			var unit time.Duration
			switch {
			case c == 'W' && !inTime:
				unit = 7 * 24 * time.Hour
			case c == 'D' && !inTime:
				unit = 24 * time.Hour
			case c == 'H' && inTime:
				unit = time.Hour
			case c == 'M' && inTime:
				unit = time.Minute
			case c == 'S' && inTime:
				unit = time.Second
			default:
				return 0, fmt.Errorf("unexpected designator %q", string(c))
			}
			total += time.Duration(n) * unit
		}
	}
	if num != "" {
		return 0, errors.New("trailing number without designator")
	}
	if !sawPart {
		return 0, errors.New("duration has no components")
	}
	return sign * total, nil
}

func parseInts(v string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(v, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", part)
		}
		out = append(out, n)
	}
	return out, nil
}

func parseFloats(v string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(v, ",") {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", part)
		}
		out = append(out, f)
	}
	return out, nil
}

// unescapeText decodes the TEXT escapes: \\ \; \, \n \N.
func unescapeText(v string) string {
	if !strings.ContainsRune(v, '\\') {
		return v
	}
	var b strings.Builder
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c != '\\' || i+1 == len(v) {
			b.WriteByte(c)
			continue
		}
		i++
		switch v[i] {
		case 'n', 'N':
			b.WriteByte('\n')
		default:
			b.WriteByte(v[i])
		}
	}
	return b.String()
}

// splitTextList splits on commas not preceded by a backslash and
// unescapes each element.
func splitTextList(v string) []string {
	var out []string
	var cur strings.Builder
	escaped := false

	for i := 0; i < len(v); i++ {
		c := v[i]
		switch {
		case escaped:
			cur.WriteByte('\\')
			cur.WriteByte(c)
			escaped = false
		case c == '\\':
			escaped = true
		case c == ',':
			out = append(out, unescapeText(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if escaped {
		cur.WriteByte('\\')
	}
	out = append(out, unescapeText(cur.String()))
	return out
}
