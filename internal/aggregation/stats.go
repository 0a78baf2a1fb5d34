package aggregation

import (
	"log/slog"
	"sync/atomic"
	"time"

	core "github.com/pulseops-lab/pulseops/internal/core/aggregation"
)

// Sink receives per-message worker signals.
type Sink interface {
	// EventProcessed is called for every acknowledged event, duplicates included.
	EventProcessed(d time.Duration)
	EventDuplicate()
	EventFailed(reason string)
	EventPoisoned()
}

type nopSink struct{}

func (nopSink) EventProcessed(time.Duration) {}
func (nopSink) EventDuplicate()              {}
func (nopSink) EventFailed(string)           {}
func (nopSink) EventPoisoned()               {}

// Sinks fans every signal out to each sink in order.
func Sinks(sinks ...Sink) Sink {
	return multiSink(sinks)
}

type multiSink []Sink

func (m multiSink) EventProcessed(d time.Duration) {
	for _, s := range m {
		s.EventProcessed(d)
	}
}

func (m multiSink) EventDuplicate() {
	for _, s := range m {
		s.EventDuplicate()
	}
}

func (m multiSink) EventFailed(reason string) {
	for _, s := range m {
		s.EventFailed(reason)
	}
}

func (m multiSink) EventPoisoned() {
	for _, s := range m {
		s.EventPoisoned()
	}
}

// Stats counts worker outcomes and logs a summary every `every` processed
// events.
type Stats struct {
	every int64

	processed  atomic.Int64
	duplicates atomic.Int64
	failed     atomic.Int64
	poisoned   atomic.Int64
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	Processed  int64
	Duplicates int64
	Failed     int64
	Poisoned   int64
}

func NewStats(every int) *Stats {
	if every <= 0 {
		every = 100
	}
	return &Stats{every: int64(every)}
}

func (s *Stats) EventProcessed(time.Duration) {
	n := s.processed.Add(1)
	if n%s.every == 0 {
		snap := s.Snapshot()
		slog.Info("[Worker] Processing stats",
			"processed", snap.Processed,
			"duplicates", snap.Duplicates,
			"errors", snap.Failed,
			"poisoned", snap.Poisoned,
			"error_rate", core.ErrorRate(snap.Failed, snap.Processed))
	}
}

func (s *Stats) EventDuplicate()    { s.duplicates.Add(1) }
func (s *Stats) EventFailed(string) { s.failed.Add(1) }
func (s *Stats) EventPoisoned()     { s.poisoned.Add(1) }

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Processed:  s.processed.Load(),
		Duplicates: s.duplicates.Load(),
		Failed:     s.failed.Load(),
		Poisoned:   s.poisoned.Load(),
	}
}

// LogTotals writes the final counters. Called once on shutdown.
func (s *Stats) LogTotals() {
	snap := s.Snapshot()
	slog.Info("[Worker] Shutdown complete",
		"total_processed", snap.Processed,
		"total_duplicates", snap.Duplicates,
		"total_errors", snap.Failed,
		"total_poisoned", snap.Poisoned,
		"error_rate", core.ErrorRate(snap.Failed, snap.Processed))
}
