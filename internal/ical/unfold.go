package ical

import "bytes"

// LineReader yields logical content lines from raw calendar bytes on
// demand, merging folded continuation lines. A physical line that begins
// with a single space or horizontal tab continues the previous logical
// line; the one leading whitespace byte is stripped. Both LF and CRLF
// terminate physical lines.
//
// LineReader never fails: any byte sequence yields some sequence of
// logical lines. Malformed content is detected by later stages.
type LineReader struct {
	rest []byte
	num  int // physical line number of the next unread line, 1-based
}

func NewLineReader(data []byte) *LineReader {
	return &LineReader{rest: data, num: 1}
}

// Next returns the next logical line together with the physical line
// number it started on. ok is false once the input is exhausted.
func (r *LineReader) Next() (line string, lineNum int, ok bool) {
	phys, pnum, ok := r.physical()
	if !ok {
		return "", 0, false
	}

	logical := phys
	for len(r.rest) > 0 && (r.rest[0] == ' ' || r.rest[0] == '\t') {
		cont, _, _ := r.physical()
		logical = append(logical[:len(logical):len(logical)], cont[1:]...)
	}
	return string(logical), pnum, true
}

func (r *LineReader) physical() ([]byte, int, bool) {
	if len(r.rest) == 0 {
		return nil, 0, false
	}
	num := r.num
	r.num++

	i := bytes.IndexByte(r.rest, '\n')
	if i < 0 {
		// Final line without a terminator.
		line := r.rest
		r.rest = nil
		return line, num, true
	}

	line := r.rest[:i]
	r.rest = r.rest[i+1:]
	line = bytes.TrimSuffix(line, []byte{'\r'})
	return line, num, true
}
