package scheduler

import (
	"time"

	"mse_backend/config"
)

// Phase identifies where the trading day currently stands. The MSE runs
// a morning session (09:00-11:00) and an afternoon session (14:00-15:00)
// with end-of-day publication around 17:00, local time.
type Phase string

const (
	PhasePreOpen   Phase = "pre_open"   // 06:00-09:00 weekdays
	PhaseOpen      Phase = "open"       // 09:00-15:00 weekdays
	PhaseClose     Phase = "close"      // 15:00-17:00 weekdays
	PhasePostClose Phase = "post_close" // 17:00-20:00 weekdays
	PhaseClosed    Phase = "closed"     // nights and weekends
)

// marketLocation is the exchange's local time zone. Falls back to UTC+2
// when the zone database is unavailable.
var marketLocation = func() *time.Location {
	loc, err := time.LoadLocation("Africa/Blantyre")
	if err != nil {
		return time.FixedZone("CAT", 2*60*60)
	}
	return loc
}()

// CurrentPhase classifies a moment into a trading-day phase.
func CurrentPhase(t time.Time) Phase {
	local := t.In(marketLocation)

	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return PhaseClosed
	}

	switch hour := local.Hour(); {
	case hour >= 6 && hour < 9:
		return PhasePreOpen
	case hour >= 9 && hour < 15:
		return PhaseOpen
	case hour >= 15 && hour < 17:
		return PhaseClose
	case hour >= 17 && hour < 20:
		return PhasePostClose
	default:
		return PhaseClosed
	}
}

// intradayCadence returns how often a symbol's live quote should refresh
// in the given phase. A zero duration means no intraday refresh at all.
func intradayCadence(phase Phase, priority bool) time.Duration {
	cfg := config.AppConfig
	switch phase {
	case PhaseOpen:
		if priority {
			return cfg.PriorityCadence
		}
		return cfg.StandardCadence
	case PhasePreOpen, PhaseClose, PhasePostClose:
		return cfg.OffSessionCadence
	default:
		return 0
	}
}
