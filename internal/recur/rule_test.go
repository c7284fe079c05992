package recur

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRuleFull(t *testing.T) {
	r, err := ParseRule("FREQ=MONTHLY;INTERVAL=2;COUNT=10;BYDAY=1MO,-1SU,WE;BYMONTH=1,7;BYSETPOS=1,-2;WKST=SU")
	require.NoError(t, err)

	assert.Equal(t, Monthly, r.Freq)
	assert.Equal(t, 2, r.Interval)
	assert.Equal(t, 10, r.Count)
	assert.True(t, r.Until.IsZero())
	assert.Equal(t, []WeekdayNum{
		{Ord: 1, Day: time.Monday},
		{Ord: -1, Day: time.Sunday},
		{Ord: 0, Day: time.Wednesday},
	}, r.ByDay)
	assert.Equal(t, []int{1, 7}, r.ByMonth)
	assert.Equal(t, []int{1, -2}, r.BySetPos)
	assert.Equal(t, time.Sunday, r.WeekStart)
}

func TestParseRuleDefaults(t *testing.T) {
	r, err := ParseRule("FREQ=DAILY")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Interval)
	assert.Equal(t, time.Monday, r.WeekStart)
	assert.Zero(t, r.Count)
}

func TestParseRuleUntil(t *testing.T) {
	r, err := ParseRule("FREQ=DAILY;UNTIL=20240110T090000Z")
	require.NoError(t, err)
	assert.True(t, r.Until.Equal(time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)))

	// A date-only bound covers its whole day.
	r, err = ParseRule("FREQ=DAILY;UNTIL=20240110")
	require.NoError(t, err)
	assert.True(t, r.Until.Equal(time.Date(2024, 1, 10, 23, 59, 59, 0, time.UTC)))
}

func TestParseRuleUnknownKeyTolerated(t *testing.T) {
	_, err := ParseRule("FREQ=DAILY;X-FANCY=yes")
	assert.NoError(t, err)
}

func TestParseRuleErrors(t *testing.T) {
	cases := []struct {
		in    string
		field string
	}{
		{"FREQ=NEVERLY", "FREQ"},
		{"INTERVAL=5", "FREQ"},
		{"FREQ=DAILY;INTERVAL=0", "INTERVAL"},
		{"FREQ=DAILY;INTERVAL=-2", "INTERVAL"},
		{"FREQ=DAILY;COUNT=0", "COUNT"},
		{"FREQ=DAILY;COUNT=3;UNTIL=20240110T090000Z", "COUNT"},
		{"FREQ=DAILY;UNTIL=someday", "UNTIL"},
		{"FREQ=MONTHLY;BYMONTH=13", "BYMONTH"},
		{"FREQ=MONTHLY;BYMONTHDAY=0", "BYMONTHDAY"},
		{"FREQ=MONTHLY;BYHOUR=-1", "BYHOUR"},
		{"FREQ=MONTHLY;BYDAY=XX", "BYDAY"},
		{"FREQ=MONTHLY;BYDAY=0MO", "BYDAY"},
		{"FREQ=DAILY;WKST=XX", "WKST"},
	}
	for _, c := range cases {
		_, err := ParseRule(c.in)
		var re *RuleError
		require.ErrorAs(t, err, &re, c.in)
		assert.Equal(t, c.field, re.Field, c.in)
	}
}

func TestParseRuleNegativeByRules(t *testing.T) {
	r, err := ParseRule("FREQ=MONTHLY;BYMONTHDAY=-1;BYYEARDAY=-366")
	require.NoError(t, err)
	assert.Equal(t, []int{-1}, r.ByMonthDay)
	assert.Equal(t, []int{-366}, r.ByYearDay)

	// Negative values are rejected where "from the end" has no meaning.
	_, err = ParseRule("FREQ=DAILY;BYMINUTE=-5")
	assert.Error(t, err)
}
