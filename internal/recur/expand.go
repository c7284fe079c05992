package recur

import (
	"sort"
	"time"
)

const (
	// maxEmptySpan bounds how much time a run of consecutive empty
	// cadence periods may cover before the iterator declares the rule
	// exhausted. It guards against impossible rules (e.g. BYMONTHDAY=30
	// with BYMONTH=2) spinning forever on an unbounded pull, while still
	// letting valid rules cross multi-year gaps: a leap-day daily rule
	// waits close to four years between hits, and sub-daily cadences
	// cross their gaps in day- or hour-sized skips.
	maxEmptySpan = 100 * 366 * 24 * time.Hour

	// maxEmptyPeriods is a backstop for empty runs that cannot be
	// skipped at a coarser granularity (e.g. a BYSECOND value that never
	// occurs); any valid rule crosses its gaps in far fewer steps.
	maxEmptyPeriods = 500000
)

// Iterator produces the strictly ascending, duplicate-free sequence of
// candidate start instants for one rule anchored at a start instant.
// Iteration is demand-driven: each Next call computes at most one new
// cadence period, so unbounded rules cost only what the consumer pulls.
// Iterators are cheap to construct and single-use; repeated or parallel
// queries each build their own.
type Iterator struct {
	rule   Rule
	anchor time.Time
	loc    *time.Location

	// By-sets with anchor-derived defaults applied. A plain YEARLY rule
	// locks the anchor's month and day, MONTHLY locks the day, WEEKLY
	// locks the weekday; this is what makes coarse-frequency by-lists
	// expand while finer ones restrict.
	months    []int
	monthdays []int
	yeardays  []int
	weeknos   []int
	weekdays  []WeekdayNum
	hours     []int
	minutes   []int
	seconds   []int

	period      int
	buf         []time.Time
	yielded     int
	last        time.Time
	haveLast    bool
	emptyStart  time.Time
	emptyCount  int
	emptyActive bool
	done        bool
}

// NewIterator builds an iterator for rule anchored at anchor. A rule
// whose definition is invalid (per Validate) yields an empty sequence.
func NewIterator(rule Rule, anchor time.Time) *Iterator {
	it := &Iterator{rule: rule, anchor: anchor, loc: anchor.Location()}

	if rule.Interval < 1 {
		it.rule.Interval = 1
	}
	if err := rule.Validate(); err != nil {
		it.done = true
		return it
	}

	it.months = rule.ByMonth
	it.monthdays = rule.ByMonthDay
	it.yeardays = rule.ByYearDay
	it.weeknos = rule.ByWeekNo
	it.weekdays = rule.ByDay

	if len(rule.ByWeekNo)+len(rule.ByYearDay)+len(rule.ByMonthDay)+len(rule.ByDay) == 0 {
		switch rule.Freq {
		case Yearly:
			if len(it.months) == 0 {
				it.months = []int{int(anchor.Month())}
			}
			it.monthdays = []int{anchor.Day()}
		case Monthly:
			it.monthdays = []int{anchor.Day()}
		case Weekly:
			it.weekdays = []WeekdayNum{{Day: anchor.Weekday()}}
		}
	}

	it.hours = rule.ByHour
	if rule.Freq >= Daily && len(it.hours) == 0 {
		it.hours = []int{anchor.Hour()}
	}
	it.minutes = rule.ByMinute
	if rule.Freq >= Hourly && len(it.minutes) == 0 {
		it.minutes = []int{anchor.Minute()}
	}
	it.seconds = rule.BySecond
	if rule.Freq >= Minutely && len(it.seconds) == 0 {
		it.seconds = []int{anchor.Second()}
	}
	sort.Ints(it.hours)
	sort.Ints(it.minutes)
	sort.Ints(it.seconds)

	return it
}

// Validate checks a rule definition for field-level sanity. ParseRule
// already enforces this for parsed rules; directly constructed rules get
// the same checks on first expansion.
func (r Rule) Validate() error {
	if r.Freq < Secondly || r.Freq > Yearly {
		return &RuleError{Field: "FREQ", Reason: "unknown frequency"}
	}
	if r.Count > 0 && !r.Until.IsZero() {
		return &RuleError{Field: "COUNT", Reason: "COUNT and UNTIL are mutually exclusive"}
	}
	if r.Count < 0 {
		return &RuleError{Field: "COUNT", Reason: "must be positive"}
	}
	checks := []struct {
		field    string
		vals     []int
		min, max int
		negOK    bool
	}{
		{"BYSECOND", r.BySecond, 0, 60, false},
		{"BYMINUTE", r.ByMinute, 0, 59, false},
		{"BYHOUR", r.ByHour, 0, 23, false},
		{"BYMONTHDAY", r.ByMonthDay, 1, 31, true},
		{"BYYEARDAY", r.ByYearDay, 1, 366, true},
		{"BYWEEKNO", r.ByWeekNo, 1, 53, true},
		{"BYMONTH", r.ByMonth, 1, 12, false},
		{"BYSETPOS", r.BySetPos, 1, 366, true},
	}
	for _, c := range checks {
		for _, n := range c.vals {
			abs := n
			if abs < 0 {
				if !c.negOK {
					return &RuleError{Field: c.field, Reason: "negative value not allowed"}
				}
				abs = -abs
			}
			if abs < c.min || abs > c.max {
				return &RuleError{Field: c.field, Reason: "value out of range"}
			}
		}
	}
	return nil
}

// Next returns the next instant of the sequence, or ok=false once the
// rule's end condition (COUNT, UNTIL or exhaustion) is reached.
func (it *Iterator) Next() (time.Time, bool) {
	for {
		if it.done {
			return time.Time{}, false
		}
		if len(it.buf) == 0 {
			start := it.periodStart(it.period)
			if it.emptyActive &&
				(start.Sub(it.emptyStart) > maxEmptySpan || it.emptyCount >= maxEmptyPeriods) {
				it.done = true
				return time.Time{}, false
			}
			cands := it.periodCandidates(it.period)
			it.period++
			if len(cands) == 0 {
				if !it.emptyActive {
					it.emptyActive = true
					it.emptyStart = start
				}
				it.emptyCount++
				it.skipAhead()
				continue
			}
			it.emptyActive = false
			it.emptyCount = 0
			it.buf = cands
		}

		t := it.buf[0]
		it.buf = it.buf[1:]

		if t.Before(it.anchor) {
			continue
		}
		if it.haveLast && !t.After(it.last) {
			continue
		}
		if !it.rule.Until.IsZero() && t.After(it.rule.Until) {
			it.done = true
			return time.Time{}, false
		}

		it.yielded++
		it.last = t
		it.haveLast = true
		if it.rule.Count > 0 && it.yielded >= it.rule.Count {
			it.done = true
		}
		return t, true
	}
}

// periodCandidates computes the fully filtered, BYSETPOS-selected
// candidate list for cadence period k, sorted ascending.
func (it *Iterator) periodCandidates(k int) []time.Time {
	var cands []time.Time

	switch it.rule.Freq {
	case Yearly:
		d := it.periodStart(k)
		year := d.Year()
		for d.Year() == year {
			if it.dayMatches(d) {
				cands = it.crossTimes(cands, d)
			}
			d = d.AddDate(0, 0, 1)
		}

	case Monthly:
		d := it.periodStart(k)
		month := d.Month()
		for d.Month() == month {
			if it.dayMatches(d) {
				cands = it.crossTimes(cands, d)
			}
			d = d.AddDate(0, 0, 1)
		}

	case Weekly:
		start := it.periodStart(k)
		for i := 0; i < 7; i++ {
			d := start.AddDate(0, 0, i)
			if it.dayMatches(d) {
				cands = it.crossTimes(cands, d)
			}
		}

	case Daily:
		d := it.periodStart(k)
		if it.dayMatches(d) {
			cands = it.crossTimes(cands, d)
		}

	case Hourly:
		t := it.periodStart(k)
		if it.dayMatches(t) && (len(it.rule.ByHour) == 0 || containsInt(it.rule.ByHour, t.Hour())) {
			for _, m := range it.minutes {
				for _, s := range it.seconds {
					cands = append(cands, time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), m, s, 0, it.loc))
				}
			}
		}

	case Minutely:
		t := it.periodStart(k)
		if it.subDailyMatches(t, false) {
			for _, s := range it.seconds {
				cands = append(cands, time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), s, 0, it.loc))
			}
		}

	case Secondly:
		t := it.periodStart(k)
		if it.subDailyMatches(t, true) {
			cands = append(cands, t)
		}
	}

	sort.Slice(cands, func(i, j int) bool { return cands[i].Before(cands[j]) })
	return it.applySetPos(cands)
}

// periodStart returns the first instant of cadence period k.
func (it *Iterator) periodStart(k int) time.Time {
	a := it.anchor
	switch it.rule.Freq {
	case Yearly:
		return time.Date(a.Year()+k*it.rule.Interval, time.January, 1, 0, 0, 0, 0, it.loc)
	case Monthly:
		base := a.Year()*12 + int(a.Month()) - 1 + k*it.rule.Interval
		return time.Date(base/12, time.Month(base%12+1), 1, 0, 0, 0, 0, it.loc)
	case Weekly:
		day := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, it.loc)
		offset := (int(day.Weekday()) - int(it.rule.WeekStart) + 7) % 7
		return day.AddDate(0, 0, -offset+k*it.rule.Interval*7)
	case Daily:
		day := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, it.loc)
		return day.AddDate(0, 0, k*it.rule.Interval)
	case Hourly:
		base := time.Date(a.Year(), a.Month(), a.Day(), a.Hour(), 0, 0, 0, it.loc)
		return base.Add(time.Duration(k*it.rule.Interval) * time.Hour)
	case Minutely:
		base := time.Date(a.Year(), a.Month(), a.Day(), a.Hour(), a.Minute(), 0, 0, it.loc)
		return base.Add(time.Duration(k*it.rule.Interval) * time.Minute)
	default: // Secondly
		base := time.Date(a.Year(), a.Month(), a.Day(), a.Hour(), a.Minute(), a.Second(), 0, it.loc)
		return base.Add(time.Duration(k*it.rule.Interval) * time.Second)
	}
}

// skipAhead advances a sub-daily cursor past instants that cannot match,
// so day- or hour-sized gaps (a BYHOUR rule anchored after its hour, a
// BYMONTH rule months away from its month) cost a handful of steps
// instead of one cadence period each. The jump is a whole number of
// periods, preserving interval alignment.
func (it *Iterator) skipAhead() {
	var unit time.Duration
	switch it.rule.Freq {
	case Hourly:
		unit = time.Hour
	case Minutely:
		unit = time.Minute
	case Secondly:
		unit = time.Second
	default:
		return
	}
	step := time.Duration(it.rule.Interval) * unit

	prev := it.period - 1
	t := it.periodStart(prev)

	var target time.Time
	switch {
	case !it.dayMatches(t):
		target = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, it.loc).AddDate(0, 0, 1)
	case len(it.rule.ByHour) > 0 && !containsInt(it.rule.ByHour, t.Hour()):
		target = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, it.loc).Add(time.Hour)
	case unit != time.Hour && len(it.rule.ByMinute) > 0 && !containsInt(it.rule.ByMinute, t.Minute()):
		target = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, it.loc).Add(time.Minute)
	default:
		return
	}

	n := int((target.Sub(t) + step - 1) / step)
	if next := prev + n; next > it.period {
		it.period = next
	}
}

// crossTimes appends every timeset combination for day d.
func (it *Iterator) crossTimes(cands []time.Time, d time.Time) []time.Time {
	for _, h := range it.hours {
		for _, m := range it.minutes {
			for _, s := range it.seconds {
				cands = append(cands, time.Date(d.Year(), d.Month(), d.Day(), h, m, s, 0, it.loc))
			}
		}
	}
	return cands
}

// dayMatches applies the day-level by-filters in the standard precedence
// order: BYMONTH, BYWEEKNO, BYYEARDAY, BYMONTHDAY, BYDAY.
func (it *Iterator) dayMatches(d time.Time) bool {
	if len(it.months) > 0 && !containsInt(it.months, int(d.Month())) {
		return false
	}
	if len(it.weeknos) > 0 && !it.weekNoMatches(d) {
		return false
	}
	if len(it.yeardays) > 0 && !yearDayMatches(it.yeardays, d) {
		return false
	}
	if len(it.monthdays) > 0 && !monthDayMatches(it.monthdays, d) {
		return false
	}
	if len(it.weekdays) > 0 && !it.weekdayMatches(d) {
		return false
	}
	return true
}

// subDailyMatches restricts a sub-daily cursor instant; all by-lists act
// as pure restrictions at these frequencies.
func (it *Iterator) subDailyMatches(t time.Time, checkSecond bool) bool {
	if !it.dayMatches(t) {
		return false
	}
	if len(it.rule.ByHour) > 0 && !containsInt(it.rule.ByHour, t.Hour()) {
		return false
	}
	if len(it.rule.ByMinute) > 0 && !containsInt(it.rule.ByMinute, t.Minute()) {
		return false
	}
	if checkSecond && len(it.rule.BySecond) > 0 && !containsInt(it.rule.BySecond, t.Second()) {
		return false
	}
	return true
}

// weekdayMatches checks BYDAY entries. Ordinals are interpreted relative
// to the month when the cadence (or an explicit BYMONTH) is monthly, and
// relative to the year for plain yearly rules; at finer frequencies the
// ordinal is ignored and the entry acts as a plain weekday filter.
func (it *Iterator) weekdayMatches(d time.Time) bool {
	monthScope := it.rule.Freq == Monthly || (it.rule.Freq == Yearly && len(it.months) > 0)
	yearScope := it.rule.Freq == Yearly && len(it.months) == 0

	for _, wd := range it.weekdays {
		if wd.Day != d.Weekday() {
			continue
		}
		if wd.Ord == 0 || !(monthScope || yearScope) {
			return true
		}
		var nth, negNth int
		if monthScope {
			nth = (d.Day()-1)/7 + 1
			negNth = -((daysInMonth(d.Year(), d.Month()) - d.Day()) / 7) - 1
		} else {
			doy := d.YearDay()
			nth = (doy-1)/7 + 1
			negNth = -((daysInYear(d.Year()) - doy) / 7) - 1
		}
		if wd.Ord == nth || wd.Ord == negNth {
			return true
		}
	}
	return false
}

func (it *Iterator) weekNoMatches(d time.Time) bool {
	day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	week, total := weekNumber(day, it.rule.WeekStart)
	for _, wn := range it.weeknos {
		if wn > 0 && wn == week {
			return true
		}
		if wn < 0 && week == total+wn+1 {
			return true
		}
	}
	return false
}

func (it *Iterator) applySetPos(cands []time.Time) []time.Time {
	if len(it.rule.BySetPos) == 0 || len(cands) == 0 {
		return cands
	}
	var sel []time.Time
	n := len(cands)
	for _, pos := range it.rule.BySetPos {
		i := pos - 1
		if pos < 0 {
			i = n + pos
		}
		if i >= 0 && i < n {
			sel = append(sel, cands[i])
		}
	}
	sort.Slice(sel, func(i, j int) bool { return sel[i].Before(sel[j]) })
	// Positions may repeat; drop duplicates.
	out := sel[:0]
	for i, t := range sel {
		if i == 0 || !t.Equal(out[len(out)-1]) {
			out = append(out, t)
		}
	}
	return out
}

func yearDayMatches(yeardays []int, d time.Time) bool {
	doy := d.YearDay()
	total := daysInYear(d.Year())
	for _, yd := range yeardays {
		if yd > 0 && yd == doy {
			return true
		}
		if yd < 0 && doy == total+yd+1 {
			return true
		}
	}
	return false
}

func monthDayMatches(monthdays []int, d time.Time) bool {
	total := daysInMonth(d.Year(), d.Month())
	for _, md := range monthdays {
		if md > 0 && md == d.Day() {
			return true
		}
		if md < 0 && d.Day() == total+md+1 {
			return true
		}
	}
	return false
}

// weekNumber computes the week number of a UTC midnight day under the
// given week-start convention: week 1 is the first week containing at
// least four days of the year. total is the number of weeks in that
// week-numbering year.
func weekNumber(day time.Time, wkst time.Weekday) (week, total int) {
	year := day.Year()
	start := week1Start(year, wkst)
	if day.Before(start) {
		year--
		start = week1Start(year, wkst)
	}
	next := week1Start(year+1, wkst)
	if !day.Before(next) {
		year++
		start = next
		next = week1Start(year+1, wkst)
	}
	week = int(day.Sub(start)/(24*time.Hour))/7 + 1
	total = int(next.Sub(start) / (7 * 24 * time.Hour))
	return week, total
}

// week1Start returns the first day of week 1 of the given year.
func week1Start(year int, wkst time.Weekday) time.Time {
	jan1 := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(jan1.Weekday()) - int(wkst) + 7) % 7
	if offset <= 3 {
		return jan1.AddDate(0, 0, -offset)
	}
	return jan1.AddDate(0, 0, 7-offset)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func daysInYear(year int) int {
	if year%4 == 0 && (year%100 != 0 || year%400 == 0) {
		return 366
	}
	return 365
}

func containsInt(s []int, n int) bool {
	for _, v := range s {
		if v == n {
			return true
		}
	}
	return false
}
