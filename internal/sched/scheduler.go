// Package sched supervises the source loops, the DQM updater and the
// optional daily report. Loops are independent: one failing never
// stops another, and a cycle that overruns its interval skips ticks
// instead of piling up.
package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/coinpulse/pulsefeed/internal/alert"
	"github.com/coinpulse/pulsefeed/internal/clock"
	"github.com/coinpulse/pulsefeed/internal/dqm"
	"github.com/coinpulse/pulsefeed/internal/domain"
	"github.com/coinpulse/pulsefeed/internal/ingest"
	"github.com/coinpulse/pulsefeed/internal/metrics"
	"github.com/coinpulse/pulsefeed/internal/store"
)

// Intervals holds the loop cadences.
type Intervals struct {
	Twitter  time.Duration `yaml:"twitter"`
	Telegram time.Duration `yaml:"telegram"`
	Reddit   time.Duration `yaml:"reddit"`
	DQM      time.Duration `yaml:"dqm"`
}

// DefaultIntervals returns the standard cadences.
func DefaultIntervals() Intervals {
	return Intervals{
		Twitter:  10 * time.Second,
		Telegram: 20 * time.Second,
		Reddit:   300 * time.Second,
		DQM:      60 * time.Second,
	}
}

func (iv Intervals) forSource(src domain.Source) time.Duration {
	switch src {
	case domain.SourceTwitter:
		return iv.Twitter
	case domain.SourceTelegram:
		return iv.Telegram
	default:
		return iv.Reddit
	}
}

// Scheduler runs the loops until its context is cancelled, then lets
// in-flight cycles finish and flushes state.
type Scheduler struct {
	workers   []ingest.Worker
	state     *StateFile
	monitor   *dqm.Monitor
	store     store.EventStore
	alerter   *alert.Alerter
	clk       clock.Clock
	intervals Intervals

	// ReportSchedule is a cron expression for the daily summary; empty
	// disables the report loop. ReportSink receives the summary text,
	// typically the same transport the alerter uses.
	ReportSchedule string
	ReportSink     alert.Transport
}

// NewScheduler wires a scheduler; monitor, store and alerter may be
// nil in reduced setups.
func NewScheduler(workers []ingest.Worker, state *StateFile, monitor *dqm.Monitor, st store.EventStore, alerter *alert.Alerter, clk clock.Clock, intervals Intervals) *Scheduler {
	return &Scheduler{
		workers:   workers,
		state:     state,
		monitor:   monitor,
		store:     st,
		alerter:   alerter,
		clk:       clk,
		intervals: intervals,
	}
}

// Run blocks until ctx is done. On shutdown it stops new ticks, waits
// for in-flight cycles, and flushes the cursor file.
func (s *Scheduler) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for _, w := range s.workers {
		wg.Add(1)
		go func(w ingest.Worker) {
			defer wg.Done()
			s.sourceLoop(ctx, w)
		}(w)
	}

	if s.monitor != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.dqmLoop(ctx)
		}()
	}

	if s.alerter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.alerter.Run(ctx)
		}()
	}

	var reporter *cron.Cron
	if s.ReportSchedule != "" {
		reporter = cron.New()
		if _, err := reporter.AddFunc(s.ReportSchedule, func() { s.report(ctx) }); err != nil {
			return fmt.Errorf("invalid report schedule %q: %w", s.ReportSchedule, err)
		}
		reporter.Start()
	}

	<-ctx.Done()
	if reporter != nil {
		<-reporter.Stop().Done()
	}
	wg.Wait()

	if err := s.state.Flush(); err != nil {
		log.Error().Err(err).Msg("state flush on shutdown failed")
		return err
	}
	log.Info().Msg("scheduler stopped")
	return nil
}

// sourceLoop ticks one worker at its cadence. The ticker drops ticks
// that fire while a cycle is still running, which gives the
// skip-not-pile-up behavior.
func (s *Scheduler) sourceLoop(ctx context.Context, w ingest.Worker) {
	src := w.Source()
	interval := s.intervals.forSource(src)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.runCycle(ctx, w)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx, w)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context, w ingest.Worker) {
	src := w.Source()
	now := s.clk.Now()
	cursor := s.state.Cursor(src)

	started := time.Now()
	m, err := w.RunCycle(ctx, now, cursor)
	metrics.CycleDuration.WithLabelValues(string(src)).Observe(time.Since(started).Seconds())

	if err != nil {
		// Cursor is preserved; the next tick is the retry.
		log.Error().Err(err).Str("source", string(src)).Msg("cycle failed")
		return
	}

	if m.LastProcessedID != "" {
		cursor.LastProcessedID = m.LastProcessedID
	}
	if m.MaxEventTime.After(cursor.LastEventTime) {
		cursor.LastEventTime = m.MaxEventTime
	}
	cursor.LastRunTime = now
	s.state.SetCursor(src, cursor)

	log.Debug().
		Str("source", string(src)).
		Int("fetched", m.Fetched).
		Int("accepted", m.Accepted).
		Msg("cycle complete")
}

func (s *Scheduler) dqmLoop(ctx context.Context) {
	ticker := time.NewTicker(s.intervals.DQM)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.updateQuality(ctx)
		}
	}
}

func (s *Scheduler) updateQuality(ctx context.Context) {
	snap := s.monitor.Evaluate()
	if s.store != nil {
		if err := s.store.InsertQuality(ctx, snap.Event); err != nil {
			metrics.StageErrors.WithLabelValues("quality_store").Inc()
			log.Error().Err(err).Msg("quality event write failed")
		} else {
			metrics.EventsStored.WithLabelValues("quality").Inc()
		}
	}
	if s.alerter != nil {
		s.alerter.EvaluateQuality(ctx, snap)
	}
}

// report sends a periodic quality summary through the report sink.
// Summaries bypass alert dedup: they are expected to repeat.
func (s *Scheduler) report(ctx context.Context) {
	if s.monitor == nil || s.ReportSink == nil {
		return
	}
	snap := s.monitor.Evaluate()
	text := fmt.Sprintf("[REPORT] DATA_QUALITY\nTime: %s\nDetails: overall %s, availability %s, %d events in window",
		s.clk.Now().UTC().Format("2006-01-02T15:04:05Z"),
		snap.Event.Overall, snap.Event.Availability, snap.WindowEvents)
	if err := s.ReportSink.Send(ctx, text); err != nil {
		log.Error().Err(err).Msg("daily report send failed")
	}
}
