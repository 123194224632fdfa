package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func at(weekday time.Weekday, hour int) time.Time {
	// 2026-08-24 is a Monday.
	base := time.Date(2026, 8, 24, hour, 0, 0, 0, marketLocation)
	return base.AddDate(0, 0, int(weekday-time.Monday))
}

func TestCurrentPhaseWeekday(t *testing.T) {
	cases := []struct {
		hour  int
		phase Phase
	}{
		{5, PhaseClosed},
		{6, PhasePreOpen},
		{8, PhasePreOpen},
		{9, PhaseOpen},
		{14, PhaseOpen},
		{15, PhaseClose},
		{16, PhaseClose},
		{17, PhasePostClose},
		{19, PhasePostClose},
		{20, PhaseClosed},
		{23, PhaseClosed},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.phase, CurrentPhase(at(time.Wednesday, tc.hour)), "hour %d", tc.hour)
	}
}

func TestCurrentPhaseWeekend(t *testing.T) {
	assert.Equal(t, PhaseClosed, CurrentPhase(at(time.Saturday, 10)))
	assert.Equal(t, PhaseClosed, CurrentPhase(at(time.Sunday, 14)))
}

func TestIsWeekday(t *testing.T) {
	assert.True(t, isWeekday(at(time.Friday, 10)))
	assert.False(t, isWeekday(at(time.Saturday, 10)))
}
