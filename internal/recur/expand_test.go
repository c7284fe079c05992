package recur

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"
)

func mustRule(t *testing.T, s string) Rule {
	t.Helper()
	r, err := ParseRule(s)
	require.NoError(t, err)
	return r
}

// collect pulls up to max instants from a fresh iterator.
func collect(rule Rule, anchor time.Time, max int) []time.Time {
	it := NewIterator(rule, anchor)
	var out []time.Time
	for len(out) < max {
		t, ok := it.Next()
		if !ok {
			break
		}
		out = append(out, t)
	}
	return out
}

func day(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func TestDailyCount(t *testing.T) {
	anchor := day(2024, time.January, 1, 9, 0)
	got := collect(mustRule(t, "FREQ=DAILY;COUNT=3"), anchor, 10)

	require.Len(t, got, 3)
	assert.True(t, got[0].Equal(anchor))
	assert.True(t, got[1].Equal(day(2024, time.January, 2, 9, 0)))
	assert.True(t, got[2].Equal(day(2024, time.January, 3, 9, 0)))
}

func TestUntilIsInclusive(t *testing.T) {
	anchor := day(2024, time.January, 1, 9, 0)
	it := NewIterator(mustRule(t, "FREQ=DAILY;UNTIL=20240103T090000Z"), anchor)

	var got []time.Time
	for {
		v, ok := it.Next()
		if !ok {
			break
		}
		got = append(got, v)
	}
	require.Len(t, got, 3)
	assert.True(t, got[2].Equal(day(2024, time.January, 3, 9, 0)))

	// Exhausted iterators stay exhausted under continued pulls.
	_, ok := it.Next()
	assert.False(t, ok)
	_, ok = it.Next()
	assert.False(t, ok)
}

func TestMonthlyFirstMonday(t *testing.T) {
	// Anchored on the first Monday itself, so period one contributes it.
	got := collect(mustRule(t, "FREQ=MONTHLY;BYDAY=1MO;COUNT=3"), day(2024, time.January, 1, 9, 0), 10)

	require.Len(t, got, 3)
	assert.True(t, got[0].Equal(day(2024, time.January, 1, 9, 0)))
	assert.True(t, got[1].Equal(day(2024, time.February, 5, 9, 0)))
	assert.True(t, got[2].Equal(day(2024, time.March, 4, 9, 0)))
}

func TestMonthlyFifthMondaySkipsShortMonths(t *testing.T) {
	// Feb and Mar 2024 have four Mondays; the first hits are in April
	// and July. Empty months must not end the iteration.
	got := collect(mustRule(t, "FREQ=MONTHLY;BYDAY=5MO;COUNT=2"), day(2024, time.February, 1, 9, 0), 10)

	require.Len(t, got, 2)
	assert.True(t, got[0].Equal(day(2024, time.April, 29, 9, 0)))
	assert.True(t, got[1].Equal(day(2024, time.July, 29, 9, 0)))
}

func TestWeeklyIntervalAlignsToAnchorWeek(t *testing.T) {
	// Anchor is a Tuesday; with INTERVAL=2 the next hits are exactly 14
	// days apart regardless of where the week boundary falls.
	got := collect(mustRule(t, "FREQ=WEEKLY;INTERVAL=2;COUNT=3"), day(2024, time.January, 2, 9, 0), 10)

	require.Len(t, got, 3)
	assert.True(t, got[0].Equal(day(2024, time.January, 2, 9, 0)))
	assert.True(t, got[1].Equal(day(2024, time.January, 16, 9, 0)))
	assert.True(t, got[2].Equal(day(2024, time.January, 30, 9, 0)))
}

func TestWeeklyWkstChangesBiweeklyGrouping(t *testing.T) {
	// The classic pair: same rule, different WKST, different set.
	anchor := day(1997, time.August, 5, 9, 0)

	mo := collect(mustRule(t, "FREQ=WEEKLY;INTERVAL=2;COUNT=4;BYDAY=TU,SU;WKST=MO"), anchor, 10)
	require.Len(t, mo, 4)
	assert.True(t, mo[0].Equal(day(1997, time.August, 5, 9, 0)))
	assert.True(t, mo[1].Equal(day(1997, time.August, 10, 9, 0)))
	assert.True(t, mo[2].Equal(day(1997, time.August, 19, 9, 0)))
	assert.True(t, mo[3].Equal(day(1997, time.August, 24, 9, 0)))

	su := collect(mustRule(t, "FREQ=WEEKLY;INTERVAL=2;COUNT=4;BYDAY=TU,SU;WKST=SU"), anchor, 10)
	require.Len(t, su, 4)
	assert.True(t, su[0].Equal(day(1997, time.August, 5, 9, 0)))
	assert.True(t, su[1].Equal(day(1997, time.August, 17, 9, 0)))
	assert.True(t, su[2].Equal(day(1997, time.August, 19, 9, 0)))
	assert.True(t, su[3].Equal(day(1997, time.August, 31, 9, 0)))
}

func TestMonthlySetPosLastWorkday(t *testing.T) {
	got := collect(mustRule(t, "FREQ=MONTHLY;BYDAY=MO,TU;BYSETPOS=-1;COUNT=3"), day(2024, time.January, 1, 9, 0), 10)

	require.Len(t, got, 3)
	assert.True(t, got[0].Equal(day(2024, time.January, 30, 9, 0)))
	assert.True(t, got[1].Equal(day(2024, time.February, 27, 9, 0)))
	assert.True(t, got[2].Equal(day(2024, time.March, 26, 9, 0)))
}

func TestYearlyByWeekNo(t *testing.T) {
	got := collect(mustRule(t, "FREQ=YEARLY;BYWEEKNO=20;BYDAY=MO;COUNT=2"), day(2024, time.January, 1, 9, 0), 10)

	require.Len(t, got, 2)
	assert.True(t, got[0].Equal(day(2024, time.May, 13, 9, 0)))
	assert.True(t, got[1].Equal(day(2025, time.May, 12, 9, 0)))
}

func TestYearlyLeapDay(t *testing.T) {
	got := collect(mustRule(t, "FREQ=YEARLY;BYMONTH=2;BYMONTHDAY=29;COUNT=2"), day(2024, time.February, 29, 12, 0), 10)

	require.Len(t, got, 2)
	assert.True(t, got[0].Equal(day(2024, time.February, 29, 12, 0)))
	assert.True(t, got[1].Equal(day(2028, time.February, 29, 12, 0)))
}

func TestYearlyDerivesAnchorMonthAndDay(t *testing.T) {
	got := collect(mustRule(t, "FREQ=YEARLY;COUNT=3"), day(2024, time.March, 15, 8, 30), 10)

	require.Len(t, got, 3)
	assert.True(t, got[1].Equal(day(2025, time.March, 15, 8, 30)))
	assert.True(t, got[2].Equal(day(2026, time.March, 15, 8, 30)))
}

func TestHourlyInterval(t *testing.T) {
	got := collect(mustRule(t, "FREQ=HOURLY;INTERVAL=6;COUNT=4"), day(2024, time.January, 1, 9, 0), 10)

	require.Len(t, got, 4)
	assert.True(t, got[1].Equal(day(2024, time.January, 1, 15, 0)))
	assert.True(t, got[3].Equal(day(2024, time.January, 2, 3, 0)))
}

func TestDailyByHourExpandsTimeset(t *testing.T) {
	got := collect(mustRule(t, "FREQ=DAILY;BYHOUR=9,17;COUNT=4"), day(2024, time.January, 1, 9, 0), 10)

	require.Len(t, got, 4)
	assert.True(t, got[0].Equal(day(2024, time.January, 1, 9, 0)))
	assert.True(t, got[1].Equal(day(2024, time.January, 1, 17, 0)))
	assert.True(t, got[2].Equal(day(2024, time.January, 2, 9, 0)))
}

func TestMinutelyByHourCrossesDayGap(t *testing.T) {
	// Anchored just after the allowed hour: the next matching instants
	// are a day of cadence periods away.
	got := collect(mustRule(t, "FREQ=MINUTELY;BYHOUR=9;COUNT=3"), day(2024, time.January, 1, 10, 0), 10)

	require.Len(t, got, 3)
	assert.True(t, got[0].Equal(day(2024, time.January, 2, 9, 0)))
	assert.True(t, got[1].Equal(day(2024, time.January, 2, 9, 1)))
	assert.True(t, got[2].Equal(day(2024, time.January, 2, 9, 2)))
}

func TestHourlyByMonthCrossesYearGap(t *testing.T) {
	// Eleven months of empty hourly periods before January returns.
	got := collect(mustRule(t, "FREQ=HOURLY;BYMONTH=1;COUNT=2"), day(2024, time.February, 1, 10, 0), 10)

	require.Len(t, got, 2)
	assert.True(t, got[0].Equal(day(2025, time.January, 1, 0, 0)))
	assert.True(t, got[1].Equal(day(2025, time.January, 1, 1, 0)))
}

func TestSecondlyByMinuteCrossesHourGap(t *testing.T) {
	anchor := time.Date(2024, time.January, 1, 10, 31, 0, 0, time.UTC)
	got := collect(mustRule(t, "FREQ=SECONDLY;BYMINUTE=30;COUNT=2"), anchor, 10)

	require.Len(t, got, 2)
	assert.True(t, got[0].Equal(time.Date(2024, time.January, 1, 11, 30, 0, 0, time.UTC)))
	assert.True(t, got[1].Equal(time.Date(2024, time.January, 1, 11, 30, 1, 0, time.UTC)))
}

func TestDailyLeapDayCrossesFourYearGap(t *testing.T) {
	// Nearly four years of empty daily periods between hits.
	got := collect(mustRule(t, "FREQ=DAILY;BYMONTH=2;BYMONTHDAY=29;COUNT=2"), day(2024, time.February, 29, 9, 0), 10)

	require.Len(t, got, 2)
	assert.True(t, got[0].Equal(day(2024, time.February, 29, 9, 0)))
	assert.True(t, got[1].Equal(day(2028, time.February, 29, 9, 0)))
}

func TestUntilDateOnlyCoversWholeDay(t *testing.T) {
	// A date-only bound keeps the final day's mid-day occurrence.
	got := collect(mustRule(t, "FREQ=DAILY;UNTIL=20240103"), day(2024, time.January, 1, 9, 0), 10)

	require.Len(t, got, 3)
	assert.True(t, got[2].Equal(day(2024, time.January, 3, 9, 0)))
}

func TestImpossibleRuleTerminates(t *testing.T) {
	// Feb 30 never exists; the empty-period guard must end the pull.
	it := NewIterator(mustRule(t, "FREQ=MONTHLY;BYMONTH=2;BYMONTHDAY=30"), day(2024, time.January, 1, 9, 0))
	_, ok := it.Next()
	assert.False(t, ok)
}

func TestInvalidRuleYieldsNothing(t *testing.T) {
	it := NewIterator(Rule{Freq: Daily, Count: -1, Interval: 1}, day(2024, time.January, 1, 9, 0))
	_, ok := it.Next()
	assert.False(t, ok)
}

// TestAgainstReferenceEvaluator compares full expansions with an
// independent evaluator across a spread of rule shapes.
func TestAgainstReferenceEvaluator(t *testing.T) {
	anchor := day(2024, time.January, 2, 9, 0)

	ruleStrs := []string{
		"FREQ=DAILY;COUNT=7",
		"FREQ=WEEKLY;INTERVAL=2;COUNT=6",
		"FREQ=MONTHLY;BYDAY=1MO;COUNT=5",
		"FREQ=MONTHLY;BYDAY=MO,TU;BYSETPOS=-1;COUNT=4",
		"FREQ=YEARLY;BYMONTH=1,7;COUNT=4",
		"FREQ=HOURLY;BYDAY=WE;COUNT=5",
		"FREQ=MINUTELY;BYHOUR=9;COUNT=70",
	}
	for _, rs := range ruleStrs {
		t.Run(rs, func(t *testing.T) {
			ref, err := rrule.StrToRRule(rs)
			require.NoError(t, err)
			ref.DTStart(anchor)

			var want []string
			for _, v := range ref.All() {
				want = append(want, v.Format(time.RFC3339))
			}

			var got []string
			for _, v := range collect(mustRule(t, rs), anchor, 100) {
				got = append(got, v.Format(time.RFC3339))
			}

			assert.Equal(t, want, got)
		})
	}
}
