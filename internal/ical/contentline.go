package ical

import (
	"errors"
	"strings"
)

// Param is one property parameter: a case-insensitive name and one or
// more values. Multi-valued parameters come from comma-separated lists;
// values may be double-quoted to protect ',' ';' and ':'.
type Param struct {
	Name   string
	Values []string
}

// ContentLine is one tokenized logical line of the form
//
//	NAME;PARAM=VALUE[,VALUE...];...:VALUE
//
// Value is kept raw; typed conversion happens lazily in Property.
type ContentLine struct {
	Name   string
	Params []Param
	Value  string
}

// Param returns the first parameter with the given name, matched
// case-insensitively.
func (cl *ContentLine) Param(name string) (Param, bool) {
	for _, p := range cl.Params {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Param{}, false
}

var errNoColon = errors.New("missing ':' separator")

// parseContentLine tokenizes one logical line. Lines without a value
// separator are rejected with errNoColon; the caller records a
// diagnostic and skips the line rather than aborting the document.
func parseContentLine(line string) (ContentLine, error) {
	var cl ContentLine

	nameEnd := scanTo(line, 0, ";:")
	if nameEnd == len(line) {
		return cl, errNoColon
	}
	cl.Name = strings.ToUpper(strings.TrimSpace(line[:nameEnd]))

	pos := nameEnd
	for line[pos] == ';' {
		segEnd := scanTo(line, pos+1, ";:")
		cl.Params = append(cl.Params, parseParam(line[pos+1:segEnd]))
		if segEnd == len(line) {
			// Parameters but no value separator.
			return cl, errNoColon
		}
		pos = segEnd
	}

	// line[pos] == ':'
	cl.Value = line[pos+1:]
	return cl, nil
}

// parseParam splits one PARAM=VALUE[,VALUE...] segment. A segment with
// no '=' is accepted as a bare name for compatibility with sloppy
// producers.
func parseParam(seg string) Param {
	eq := strings.IndexByte(seg, '=')
	if eq < 0 {
		return Param{Name: strings.ToUpper(strings.TrimSpace(seg))}
	}
	return Param{
		Name:   strings.ToUpper(strings.TrimSpace(seg[:eq])),
		Values: splitParamValues(seg[eq+1:]),
	}
}

// splitParamValues splits a parameter value on commas, honoring double
// quotes. Quotes are stripped from the resulting values.
func splitParamValues(s string) []string {
	var out []string
	var cur strings.Builder
	inQuotes := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	out = append(out, cur.String())
	return out
}

// scanTo returns the index of the first byte from set at or after start
// that is outside double quotes, or len(s) if none occurs.
func scanTo(s string, start int, set string) int {
	inQuotes := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if c == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes && strings.IndexByte(set, c) >= 0 {
			return i
		}
	}
	return len(s)
}
