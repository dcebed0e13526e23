package xmodem

import (
	"sync"
	"time"
)

// ProgressTracker counts accepted blocks and invokes the progress callback
// no more often than its update interval.
type ProgressTracker struct {
	mu sync.Mutex

	name        string
	blocks      int
	transferred int64
	startTime   time.Time
	lastUpdate  time.Time
	lastBytes   int64

	callback       func(string, int64, int64, float64)
	updateInterval time.Duration
}

// NewProgressTracker creates a new progress tracker.
func NewProgressTracker(callback func(string, int64, int64, float64), interval time.Duration) *ProgressTracker {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &ProgressTracker{
		callback:       callback,
		updateInterval: interval,
	}
}

// Start begins tracking a new transfer.
func (pt *ProgressTracker) Start(name string) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.name = name
	pt.blocks = 0
	pt.transferred = 0
	pt.startTime = time.Now()
	pt.lastUpdate = pt.startTime
	pt.lastBytes = 0
}

// Block records one accepted block of n bytes.
func (pt *ProgressTracker) Block(n int) {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	pt.blocks++
	pt.transferred += int64(n)

	now := time.Now()
	if now.Sub(pt.lastUpdate) < pt.updateInterval {
		return
	}

	elapsed := now.Sub(pt.lastUpdate).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = float64(pt.transferred-pt.lastBytes) / elapsed
	}
	if pt.callback != nil {
		pt.callback(pt.name, pt.transferred, 0, rate)
	}
	pt.lastUpdate = now
	pt.lastBytes = pt.transferred
}

// Complete reports the final count and returns the transfer duration.
func (pt *ProgressTracker) Complete() time.Duration {
	pt.mu.Lock()
	defer pt.mu.Unlock()

	duration := time.Since(pt.startTime)
	if pt.callback != nil {
		pt.callback(pt.name, pt.transferred, 0, 0)
	}
	return duration
}

// Stats returns the blocks and bytes accepted so far.
func (pt *ProgressTracker) Stats() (blocks int, transferred int64) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.blocks, pt.transferred
}
