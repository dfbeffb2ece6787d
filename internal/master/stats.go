package master

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"yqhp/freq-engine/pkg/types"
)

const (
	minLatencyMicros = 1
	maxLatencyMicros = 10 * 60 * 1000 * 1000 // 10 minutes
	latencySigFigs   = 3
)

// Stats counts jobs and tasks and keeps a dispatch latency histogram.
// A nil *Stats ignores all records.
type Stats struct {
	jobs        atomic.Int64
	jobsNoSlave atomic.Int64
	tasks       atomic.Int64
	failed      atomic.Int64
	timeouts    atomic.Int64

	mu      sync.Mutex
	latency *hdrhistogram.Histogram
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	JobsHandled       int64   `json:"jobs_handled"`
	JobsWithoutSlaves int64   `json:"jobs_without_slaves"`
	TasksDispatched   int64   `json:"tasks_dispatched"`
	TasksFailed       int64   `json:"tasks_failed"`
	TasksTimedOut     int64   `json:"tasks_timed_out"`
	LatencyP50Ms      float64 `json:"latency_p50_ms"`
	LatencyP95Ms      float64 `json:"latency_p95_ms"`
	LatencyP99Ms      float64 `json:"latency_p99_ms"`
	LatencyMaxMs      float64 `json:"latency_max_ms"`
	LatencyMeanMs     float64 `json:"latency_mean_ms"`
}

// NewStats creates empty statistics.
func NewStats() *Stats {
	return &Stats{
		latency: hdrhistogram.New(minLatencyMicros, maxLatencyMicros, latencySigFigs),
	}
}

// JobHandled counts one completed client request.
func (s *Stats) JobHandled() {
	if s == nil {
		return
	}
	s.jobs.Add(1)
}

// JobWithoutSlaves counts a job answered with an empty result.
func (s *Stats) JobWithoutSlaves() {
	if s == nil {
		return
	}
	s.jobsNoSlave.Add(1)
}

// RecordTask records one dispatch and its outcome.
func (s *Stats) RecordTask(elapsed time.Duration, res *types.TaskResult) {
	if s == nil {
		return
	}
	s.tasks.Add(1)
	if res != nil && res.Failed() {
		s.failed.Add(1)
		if res.Error == types.ErrMsgTimeout {
			s.timeouts.Add(1)
		}
	}

	us := elapsed.Microseconds()
	if us < minLatencyMicros {
		us = minLatencyMicros
	}
	if us > maxLatencyMicros {
		us = maxLatencyMicros
	}

	s.mu.Lock()
	_ = s.latency.RecordValue(us)
	s.mu.Unlock()
}

// Snapshot returns the current counters and latency percentiles in milliseconds.
func (s *Stats) Snapshot() StatsSnapshot {
	if s == nil {
		return StatsSnapshot{}
	}

	snap := StatsSnapshot{
		JobsHandled:       s.jobs.Load(),
		JobsWithoutSlaves: s.jobsNoSlave.Load(),
		TasksDispatched:   s.tasks.Load(),
		TasksFailed:       s.failed.Load(),
		TasksTimedOut:     s.timeouts.Load(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latency.TotalCount() == 0 {
		return snap
	}
	snap.LatencyP50Ms = microsToMs(s.latency.ValueAtQuantile(50))
	snap.LatencyP95Ms = microsToMs(s.latency.ValueAtQuantile(95))
	snap.LatencyP99Ms = microsToMs(s.latency.ValueAtQuantile(99))
	snap.LatencyMaxMs = microsToMs(s.latency.Max())
	snap.LatencyMeanMs = s.latency.Mean() / 1000
	return snap
}

func microsToMs(us int64) float64 {
	return float64(us) / 1000
}
