package service

import (
	"sync"
	"time"

	"github.com/reserve-snapshot/internal/metrics"
)

// Pipeline stage names used in logs and metrics
const (
	StageLock     = "lock"
	StageGather   = "gather"
	StageVerify   = "verify"
	StageCompute  = "compute"
	StageAssemble = "assemble"
	StagePersist  = "persist"
	StageHistory  = "history"
)

// StageTiming is the recorded duration of one stage
type StageTiming struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
}

// StageMonitor tracks how long each stage of a run took
type StageMonitor struct {
	mu      sync.Mutex
	timings []StageTiming
	now     func() time.Time
}

// NewStageMonitor creates a new stage monitor
func NewStageMonitor() *StageMonitor {
	return &StageMonitor{
		timings: make([]StageTiming, 0, 8),
		now:     time.Now,
	}
}

// Start begins timing stage. The returned func records the elapsed time.
func (m *StageMonitor) Start(stage string) func() {
	started := m.now()
	return func() {
		m.Record(stage, m.now().Sub(started))
	}
}

// Record records a stage duration and observes it in the stage histogram
func (m *StageMonitor) Record(stage string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.timings = append(m.timings, StageTiming{Stage: stage, Duration: d})
	metrics.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// Timings returns the recorded stages in the order they finished
func (m *StageMonitor) Timings() []StageTiming {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]StageTiming, len(m.timings))
	copy(out, m.timings)
	return out
}

// Total returns the sum of all recorded stage durations
func (m *StageMonitor) Total() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total time.Duration
	for _, t := range m.timings {
		total += t.Duration
	}
	return total
}

// Fields returns the timings as log fields keyed "<stage>_ms"
func (m *StageMonitor) Fields() map[string]interface{} {
	fields := make(map[string]interface{})
	for _, t := range m.Timings() {
		fields[t.Stage+"_ms"] = t.Duration.Milliseconds()
	}
	return fields
}
