// Package scheduler drives the background data-collection loop for the
// MSE backend. It handles:
// - Intraday quote refreshes paced by market-session phase
// - Daily historical sweeps after end-of-day publication
// - Hourly cache warming from the durable store
// - Periodic cleanup of old ticks and usage logs
//
// A 60-second dispatch tick walks the job table and launches due jobs
// through a bounded worker pool; calendar jobs live in jobs.go.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"mse_backend/config"
	"mse_backend/services/collector"
	"mse_backend/services/marketdata"
)

const dispatchTick = 60 * time.Second

// JobKind separates quote refreshes from historical sweeps
type JobKind string

const (
	JobIntraday   JobKind = "intraday"
	JobHistorical JobKind = "historical"
)

// RefreshJob is one schedulable unit of work. At most one run of a job
// is ever in flight: dispatch flips the job to fetching and completion
// flips it back.
type RefreshJob struct {
	Kind        JobKind           `json:"kind"`
	Symbol      string            `json:"symbol"`
	Range       marketdata.Range  `json:"range,omitempty"`
	Priority    bool              `json:"priority"`
	Fetching    bool              `json:"fetching"`
	LastRun     time.Time         `json:"last_run"`
	LastOutcome collector.Outcome `json:"last_outcome,omitempty"`
}

func (j *RefreshJob) key() string {
	if j.Kind == JobIntraday {
		return fmt.Sprintf("intraday:%s", j.Symbol)
	}
	return fmt.Sprintf("historical:%s:%s", j.Symbol, j.Range)
}

// Scheduler owns the job table, the dispatch loop and the calendar jobs.
type Scheduler struct {
	cron      *gocron.Scheduler
	db        *gorm.DB
	collector *collector.Collector

	mu   sync.Mutex
	jobs map[string]*RefreshJob

	sem     chan struct{}
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// historicalSweepRanges are the horizons the daily sweep keeps durable.
var historicalSweepRanges = []marketdata.Range{
	marketdata.Range1Month,
	marketdata.Range1Year,
	marketdata.Range5Years,
}

func NewScheduler(db *gorm.DB, col *collector.Collector) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := config.AppConfig

	stagger := cfg.DispatchStagger
	if stagger <= 0 {
		stagger = 500 * time.Millisecond
	}

	s := &Scheduler{
		cron:      gocron.NewScheduler(marketLocation),
		db:        db,
		collector: col,
		jobs:      make(map[string]*RefreshJob),
		sem:       make(chan struct{}, cfg.FetchWorkers),
		limiter:   rate.NewLimiter(rate.Every(stagger), 1),
		ctx:       ctx,
		cancel:    cancel,
	}
	s.buildJobTable()
	return s
}

// buildJobTable seeds one intraday job per symbol and one historical job
// per (symbol, sweep range).
func (s *Scheduler) buildJobTable() {
	cfg := config.AppConfig
	priority := make(map[string]bool, len(cfg.PrioritySymbols))
	for _, sym := range cfg.PrioritySymbols {
		priority[sym] = true
	}

	for _, symbol := range cfg.AllSymbols {
		intraday := &RefreshJob{Kind: JobIntraday, Symbol: symbol, Priority: priority[symbol]}
		s.jobs[intraday.key()] = intraday

		for _, rng := range historicalSweepRanges {
			hist := &RefreshJob{Kind: JobHistorical, Symbol: symbol, Range: rng, Priority: priority[symbol]}
			s.jobs[hist.key()] = hist
		}
	}
}

// Start launches the dispatch loop and the calendar jobs.
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	s.wg.Add(1)
	go s.dispatchLoop()

	s.registerCalendarJobs()
	s.cron.StartAsync()

	log.Printf("Scheduler started: %d jobs, %d workers", len(s.jobs), cap(s.sem))
}

// Stop halts dispatch and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	s.cancel()
	s.cron.Stop()
	s.wg.Wait()
	log.Println("Scheduler stopped")
}

func (s *Scheduler) dispatchLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(dispatchTick)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			s.dispatchDue(now)
		}
	}
}

// dispatchDue launches every idle job whose cadence has elapsed.
func (s *Scheduler) dispatchDue(now time.Time) {
	phase := CurrentPhase(now)

	s.mu.Lock()
	due := make([]*RefreshJob, 0)
	for _, job := range s.jobs {
		if job.Fetching {
			continue
		}
		cadence := s.cadenceFor(job, phase)
		if cadence <= 0 {
			continue
		}
		if now.Sub(job.LastRun) >= cadence {
			job.Fetching = true
			due = append(due, job)
		}
	}
	s.mu.Unlock()

	for _, job := range due {
		s.launch(job)
	}
}

func (s *Scheduler) cadenceFor(job *RefreshJob, phase Phase) time.Duration {
	if job.Kind == JobHistorical {
		// Historical sweeps only run on trading days; forced refreshes
		// go through TriggerSymbol/TriggerHistoricalSweep instead.
		if phase == PhaseClosed {
			return 0
		}
		return config.AppConfig.HistoricalCadence
	}
	return intradayCadence(phase, job.Priority)
}

// launch runs one job through the stagger limiter and the worker pool.
// The caller must have already flipped the job to fetching.
func (s *Scheduler) launch(job *RefreshJob) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if err := s.limiter.Wait(s.ctx); err != nil {
			s.finish(job, "")
			return
		}
		select {
		case s.sem <- struct{}{}:
			defer func() { <-s.sem }()
		case <-s.ctx.Done():
			s.finish(job, "")
			return
		}

		ctx, cancel := context.WithTimeout(s.ctx, config.AppConfig.FetchTimeout)
		defer cancel()

		var outcome collector.Outcome
		var err error
		if job.Kind == JobIntraday {
			outcome, err = s.collector.RefreshIntraday(ctx, job.Symbol)
		} else {
			outcome, err = s.collector.RefreshHistorical(ctx, job.Symbol, job.Range)
		}
		if err != nil {
			log.Printf("Refresh %s failed: %v", job.key(), err)
		}
		s.finish(job, outcome)
	}()
}

func (s *Scheduler) finish(job *RefreshJob, outcome collector.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Fetching = false
	job.LastRun = time.Now()
	if outcome != "" {
		job.LastOutcome = outcome
	}
}

// TriggerSymbol queues an immediate refresh of every job for a symbol.
// Returns the number of jobs launched; zero means the symbol is unknown
// or everything is already in flight.
func (s *Scheduler) TriggerSymbol(symbol string) int {
	s.mu.Lock()
	due := make([]*RefreshJob, 0)
	for _, job := range s.jobs {
		if job.Symbol != symbol || job.Fetching {
			continue
		}
		job.Fetching = true
		due = append(due, job)
	}
	s.mu.Unlock()

	for _, job := range due {
		s.launch(job)
	}
	return len(due)
}

// TriggerIntradaySweep queues an immediate quote refresh for every
// symbol on the board.
func (s *Scheduler) TriggerIntradaySweep() int {
	s.mu.Lock()
	due := make([]*RefreshJob, 0)
	for _, job := range s.jobs {
		if job.Kind != JobIntraday || job.Fetching {
			continue
		}
		job.Fetching = true
		due = append(due, job)
	}
	s.mu.Unlock()

	for _, job := range due {
		s.launch(job)
	}
	return len(due)
}

// TriggerHistoricalSweep queues the full historical sweep immediately.
func (s *Scheduler) TriggerHistoricalSweep() int {
	s.mu.Lock()
	due := make([]*RefreshJob, 0)
	for _, job := range s.jobs {
		if job.Kind != JobHistorical || job.Fetching {
			continue
		}
		job.Fetching = true
		due = append(due, job)
	}
	s.mu.Unlock()

	for _, job := range due {
		s.launch(job)
	}
	return len(due)
}

// Status returns a snapshot of the job table for the operator endpoint.
func (s *Scheduler) Status() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	fetching := 0
	jobs := make([]RefreshJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		if job.Fetching {
			fetching++
		}
		jobs = append(jobs, *job)
	}
	return map[string]interface{}{
		"phase":     CurrentPhase(time.Now()),
		"job_count": len(jobs),
		"fetching":  fetching,
		"jobs":      jobs,
	}
}
