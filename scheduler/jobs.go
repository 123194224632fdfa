package scheduler

import (
	"log"
	"time"

	"mse_backend/models"
)

// registerCalendarJobs wires the fixed-time jobs. The sweep runs before
// market open so the cache starts the day warm, and again after
// end-of-day publication so closing prices land the same evening.
func (s *Scheduler) registerCalendarJobs() {
	s.cron.Every(1).Day().At("06:00").Do(func() {
		if isWeekday(time.Now()) {
			n := s.TriggerHistoricalSweep()
			log.Printf("Morning historical sweep queued %d jobs", n)
		}
	})

	s.cron.Every(1).Day().At("18:00").Do(func() {
		if isWeekday(time.Now()) {
			n := s.TriggerHistoricalSweep()
			log.Printf("Evening historical sweep queued %d jobs", n)
		}
	})

	// Keep the volatile tier warm from the durable store even when the
	// upstream is down.
	s.cron.Every(1).Hour().Do(func() {
		n := s.collector.WarmAll(historicalSweepRanges)
		log.Printf("Cache warm pass restored %d entries", n)
	})

	s.cron.Every(1).Day().At("02:00").Do(func() {
		s.cleanupOldData()
	})
}

// cleanupOldData prunes tick and usage-log tables so the store does not
// grow without bound. Daily OHLC rows are kept forever.
func (s *Scheduler) cleanupOldData() {
	log.Println("Cleaning up old data...")

	ninetyDaysAgo := time.Now().AddDate(0, 0, -90)
	if err := s.db.Where("date < ?", ninetyDaysAgo).Delete(&models.StockPrice{}).Error; err != nil {
		log.Printf("Error cleaning up old ticks: %v", err)
	}

	sixMonthsAgo := time.Now().AddDate(0, -6, 0)
	if err := s.db.Where("created_at < ?", sixMonthsAgo).Delete(&models.APIUsage{}).Error; err != nil {
		log.Printf("Error cleaning up old usage logs: %v", err)
	}

	log.Println("Cleanup completed")
}

func isWeekday(t time.Time) bool {
	wd := t.In(marketLocation).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}
