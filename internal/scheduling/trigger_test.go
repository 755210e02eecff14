package scheduling

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wib = time.FixedZone("UTC+07:00", 7*3600)

func TestDailyAt_NextLaterToday(t *testing.T) {
	trigger := DailyAt{Hour: 14, Minute: 31, Location: wib}
	now := time.Date(2025, 11, 14, 9, 0, 0, 0, wib)
	assert.Equal(t, time.Date(2025, 11, 14, 14, 31, 0, 0, wib), trigger.Next(now))
}

func TestDailyAt_PassedTimeArmsTomorrow(t *testing.T) {
	trigger := DailyAt{Hour: 7, Minute: 1, Location: wib}

	now := time.Date(2025, 11, 14, 9, 0, 0, 0, wib)
	assert.Equal(t, time.Date(2025, 11, 15, 7, 1, 0, 0, wib), trigger.Next(now))

	exact := time.Date(2025, 11, 14, 7, 1, 0, 0, wib)
	assert.Equal(t, time.Date(2025, 11, 15, 7, 1, 0, 0, wib), trigger.Next(exact))
}

func TestDailyAt_UsesTriggerLocationNotInputZone(t *testing.T) {
	trigger := DailyAt{Hour: 0, Minute: 5, Location: wib}
	now := time.Date(2025, 12, 31, 17, 0, 0, 0, time.UTC) // 00:00 WIB on Jan 1st
	assert.Equal(t, time.Date(2026, 1, 1, 0, 5, 0, 0, wib), trigger.Next(now))
}

func TestDailyAt_RescheduleChainsDays(t *testing.T) {
	trigger := DailyAt{Hour: 22, Minute: 1, Location: wib}
	first := trigger.Next(time.Date(2025, 11, 14, 23, 0, 0, 0, wib))
	second := trigger.Next(first)
	assert.Equal(t, 24*time.Hour, second.Sub(first))
}

func TestHourlyAt_Next(t *testing.T) {
	trigger := HourlyAt{Minute: 5, Location: wib}
	assert.Equal(t,
		time.Date(2025, 11, 14, 10, 5, 0, 0, wib),
		trigger.Next(time.Date(2025, 11, 14, 10, 4, 59, 0, wib)))
	assert.Equal(t,
		time.Date(2025, 11, 14, 11, 5, 0, 0, wib),
		trigger.Next(time.Date(2025, 11, 14, 10, 5, 0, 0, wib)))
	assert.Equal(t,
		time.Date(2025, 11, 15, 0, 5, 0, 0, wib),
		trigger.Next(time.Date(2025, 11, 14, 23, 30, 0, 0, wib)))
}

type everyTrigger time.Duration

func (e everyTrigger) Next(now time.Time) time.Time { return now.Add(time.Duration(e)) }
func (e everyTrigger) String() string                { return "every" }

func TestRunner_FiresRepeatedlyAndSurvivesPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	runner := NewRunner(nil, nil)
	runner.Go(ctx, Task{
		Name:    "test",
		Trigger: everyTrigger(5 * time.Millisecond),
		Run: func(context.Context, time.Time) error {
			if calls.Add(1) == 1 {
				panic("boom")
			}
			return nil
		},
	})

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	runner.Wait()
}
