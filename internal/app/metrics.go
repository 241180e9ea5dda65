package app

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Metrics counts what the event loop did. Counters may be read from any
// goroutine while the loop runs.
type Metrics struct {
	cycles     atomic.Uint64
	cycleMaxNs atomic.Int64
	cycleTotal atomic.Int64
	halts      atomic.Uint64
	commands   atomic.Uint64
	filesSent  atomic.Uint64
	pollErrors atomic.Uint64
	startTime  time.Time
}

// NewMetrics creates a new metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordCycle records the duration of one loop cycle, including any
// request it waited for.
func (m *Metrics) RecordCycle(d time.Duration) {
	ns := d.Nanoseconds()
	m.cycles.Add(1)
	m.cycleTotal.Add(ns)
	for {
		old := m.cycleMaxNs.Load()
		if ns <= old || m.cycleMaxNs.CompareAndSwap(old, ns) {
			break
		}
	}
}

// RecordHalt records a newly observed halt.
func (m *Metrics) RecordHalt() { m.halts.Add(1) }

// RecordCommand records an executed operator line.
func (m *Metrics) RecordCommand() { m.commands.Add(1) }

// RecordFileSent records a watched file re-sent after a change.
func (m *Metrics) RecordFileSent() { m.filesSent.Add(1) }

// RecordPollError records a failed halt poll.
func (m *Metrics) RecordPollError() { m.pollErrors.Add(1) }

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	Uptime     time.Duration
	Cycles     uint64
	CycleAvg   time.Duration
	CycleMax   time.Duration
	Halts      uint64
	Commands   uint64
	FilesSent  uint64
	PollErrors uint64
}

// Snapshot returns the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Uptime:     time.Since(m.startTime),
		Cycles:     m.cycles.Load(),
		CycleMax:   time.Duration(m.cycleMaxNs.Load()),
		Halts:      m.halts.Load(),
		Commands:   m.commands.Load(),
		FilesSent:  m.filesSent.Load(),
		PollErrors: m.pollErrors.Load(),
	}
	if s.Cycles > 0 {
		s.CycleAvg = time.Duration(m.cycleTotal.Load() / int64(s.Cycles))
	}
	return s
}

// String formats the snapshot for a log line.
func (s MetricsSnapshot) String() string {
	return fmt.Sprintf("uptime=%s cycles=%d avg=%s max=%s halts=%d commands=%d files=%d poll_errors=%d",
		s.Uptime.Round(time.Millisecond), s.Cycles, s.CycleAvg, s.CycleMax,
		s.Halts, s.Commands, s.FilesSent, s.PollErrors)
}
