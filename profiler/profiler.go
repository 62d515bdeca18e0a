// Package profiler - Operation timings and frame rate tracking for the live loop.
package profiler

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxSamples bounds the durations kept per operation.
const DefaultMaxSamples = 600

// timeTracker tracks operation timing statistics.
type timeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// OperationStats summarises the recorded durations of one operation.
type OperationStats struct {
	Name  string
	Avg   time.Duration
	Min   time.Duration
	Max   time.Duration
	Count int64
}

// Tracker records operation durations. It is safe for concurrent use.
type Tracker struct {
	mu         sync.Mutex
	maxSamples int
	operations map[string]*timeTracker
}

// NewTracker creates a tracker keeping at most maxSamples durations per operation.
//
// Arguments:
// - maxSamples: Window size, 0 selects DefaultMaxSamples.
//
// Returns:
// - A configured Tracker instance
func NewTracker(maxSamples int) *Tracker {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &Tracker{
		maxSamples: maxSamples,
		operations: make(map[string]*timeTracker),
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
func (t *Tracker) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		t.Record(name, time.Since(start))
	}
}

// Record adds one duration to an operation.
func (t *Tracker) Record(name string, duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tracker, exists := t.operations[name]
	if !exists {
		tracker = &timeTracker{minTime: duration, maxTime: duration}
		t.operations[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	if len(tracker.durations) > t.maxSamples {
		// Drop the oldest sample.
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}

	tracker.totalTime += duration
	tracker.count++

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// Stats returns the statistics of every operation, sorted by name.
//
// Averages cover the retained window; Count covers every recorded call.
func (t *Tracker) Stats() []OperationStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := make([]OperationStats, 0, len(t.operations))
	for name, tracker := range t.operations {
		if len(tracker.durations) == 0 {
			continue
		}
		stats = append(stats, OperationStats{
			Name:  name,
			Avg:   tracker.totalTime / time.Duration(len(tracker.durations)),
			Min:   tracker.minTime,
			Max:   tracker.maxTime,
			Count: tracker.count,
		})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Log writes one line per operation.
func (t *Tracker) Log(logger *zap.Logger) {
	for _, s := range t.Stats() {
		logger.Info("operation timing",
			zap.String("operation", s.Name),
			zap.Duration("avg", s.Avg.Truncate(time.Microsecond)),
			zap.Duration("min", s.Min.Truncate(time.Microsecond)),
			zap.Duration("max", s.Max.Truncate(time.Microsecond)),
			zap.Int64("count", s.Count))
	}
}

// FPS measures a frame rate, refreshed once per second.
type FPS struct {
	fps        float64
	frameCount int
	lastTime   time.Time
}

// NewFPS starts measuring at now.
func NewFPS(now time.Time) *FPS {
	return &FPS{lastTime: now}
}

// Tick counts one frame and returns the latest rate.
func (f *FPS) Tick(now time.Time) float64 {
	f.frameCount++
	elapsed := now.Sub(f.lastTime).Seconds()

	if elapsed >= 1.0 {
		f.fps = float64(f.frameCount) / elapsed
		f.frameCount = 0
		f.lastTime = now
	}
	return f.fps
}

// Value returns the latest rate without counting a frame.
func (f *FPS) Value() float64 {
	return f.fps
}
