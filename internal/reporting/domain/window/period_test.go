package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePeriod(t *testing.T) {
	cases := []struct {
		period string
		date   string
		want   PeriodRange
	}{
		{PeriodDay, "2025-03-01", PeriodRange{PeriodDay, "2025-03-01", "2025-03-01", "2025-02-28", "2025-02-28", 1}},
		{PeriodWeek, "2025-02-26", PeriodRange{PeriodWeek, "2025-02-26", "2025-03-04", "2025-02-19", "2025-02-25", 7}},
		{PeriodMonth, "2024-03-15", PeriodRange{PeriodMonth, "2024-03-01", "2024-03-31", "2024-02-01", "2024-02-29", 31}},
		{PeriodMonth, "2025-01-31", PeriodRange{PeriodMonth, "2025-01-01", "2025-01-31", "2024-12-01", "2024-12-31", 31}},
	}
	for _, tc := range cases {
		t.Run(tc.period+"/"+tc.date, func(t *testing.T) {
			got, err := ResolvePeriod(tc.period, tc.date)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := ResolvePeriod("year", "2025-01-01")
	assert.True(t, IsValidation(err))
	_, err = ResolvePeriod(PeriodDay, "2025-02-30")
	assert.True(t, IsValidation(err))
}

func TestMonthRange(t *testing.T) {
	from, to, err := MonthRange("2024-02")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01", from)
	assert.Equal(t, "2024-02-29", to)

	for _, bad := range []string{"2024-13", "2024-2", "2024-02-01", ""} {
		_, _, err := MonthRange(bad)
		assert.True(t, IsValidation(err), bad)
	}
}
