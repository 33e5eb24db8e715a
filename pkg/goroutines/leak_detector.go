// Package goroutines samples the process-wide goroutine count across
// repeated build and shutdown cycles and flags counts that drift upward
// from a baseline. Individual goroutines can be registered with Track;
// the periodic check itself only looks at the total count.
package goroutines

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Tracker tracks goroutine lifecycle and detects leaks across mainloop
// build/shutdown cycles.
type Tracker struct {
	config Config
	logger *logrus.Logger
	mutex  sync.RWMutex

	tracked   map[string]*Info
	baseline  int
	maxSeen   int
	startTime time.Time
	isRunning bool
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// Config configures goroutine tracking.
type Config struct {
	Enabled       bool          `yaml:"enabled"`
	CheckInterval time.Duration `yaml:"check_interval"`
	LeakThreshold int           `yaml:"leak_threshold"`
	WarnThreshold int           `yaml:"warn_threshold"`
}

// DefaultConfig returns safe defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		CheckInterval: 30 * time.Second,
		LeakThreshold: 20,
		WarnThreshold: 100,
	}
}

// Info describes one tracked goroutine.
type Info struct {
	ID        string
	Name      string
	StartTime time.Time
	Active    bool
	Duration  time.Duration
}

// Stats is a point-in-time snapshot of tracker state.
type Stats struct {
	Current   int           `json:"current"`
	Baseline  int           `json:"baseline"`
	MaxSeen   int           `json:"max_seen"`
	Tracked   int           `json:"tracked"`
	Suspected []string      `json:"suspected_leaks"`
	Status    string        `json:"status"`
	Uptime    time.Duration `json:"uptime"`
}

// NewTracker creates a new goroutine tracker with the current goroutine
// count as its baseline.
func NewTracker(config Config, logger *logrus.Logger) *Tracker {
	return &Tracker{
		config:    config,
		logger:    logger,
		tracked:   make(map[string]*Info),
		baseline:  runtime.NumGoroutine(),
		maxSeen:   runtime.NumGoroutine(),
		startTime: time.Now(),
		stopChan:  make(chan struct{}),
	}
}

// Start begins periodic leak checks.
func (t *Tracker) Start() error {
	if !t.config.Enabled {
		t.logger.Debug("goroutine tracking disabled")
		return nil
	}

	t.isRunning = true
	t.logger.WithFields(logrus.Fields{
		"baseline": t.baseline,
		"interval": t.config.CheckInterval,
	}).Info("starting goroutine leak detection")

	t.wg.Add(1)
	go t.monitorLoop()

	return nil
}

// Stop halts monitoring and waits for the monitor loop to exit.
func (t *Tracker) Stop() error {
	if !t.isRunning {
		return nil
	}
	t.isRunning = false
	close(t.stopChan)
	t.wg.Wait()

	stats := t.GetStats()
	t.logger.WithFields(logrus.Fields{
		"final_count": stats.Current,
		"max_seen":    stats.MaxSeen,
		"tracked":     stats.Tracked,
	}).Info("goroutine tracking stopped")
	return nil
}

// Track registers name as a running goroutine and returns a function the
// caller must invoke when the goroutine exits.
func (t *Tracker) Track(name string) func() {
	id := fmt.Sprintf("%s_%d", name, time.Now().UnixNano())
	info := &Info{ID: id, Name: name, StartTime: time.Now(), Active: true}

	t.mutex.Lock()
	t.tracked[id] = info
	t.mutex.Unlock()

	return func() {
		t.mutex.Lock()
		if info, ok := t.tracked[id]; ok {
			info.Active = false
			info.Duration = time.Since(info.StartTime)
		}
		t.mutex.Unlock()
	}
}

func (t *Tracker) monitorLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopChan:
			return
		case <-ticker.C:
			t.checkForLeaks()
		}
	}
}

func (t *Tracker) checkForLeaks() {
	current := runtime.NumGoroutine()
	if current > t.maxSeen {
		t.maxSeen = current
	}

	increase := current - t.baseline
	status := "healthy"
	switch {
	case increase >= t.config.WarnThreshold:
		status = "warning"
		t.logger.WithFields(logrus.Fields{"current": current, "baseline": t.baseline}).Warn("high goroutine count")
	case increase >= t.config.LeakThreshold:
		status = "leak_suspected"
		t.logger.WithFields(logrus.Fields{"current": current, "increase": increase}).Warn("possible goroutine leak")
	}

	t.logger.WithFields(logrus.Fields{
		"current": current, "baseline": t.baseline, "status": status,
	}).Debug("goroutine check")
}

// GetStats returns the current tracker snapshot.
func (t *Tracker) GetStats() Stats {
	current := runtime.NumGoroutine()

	t.mutex.RLock()
	var suspected []string
	cutoff := time.Now().Add(-5 * time.Minute)
	for id, info := range t.tracked {
		if info.Active && info.StartTime.Before(cutoff) {
			suspected = append(suspected, id)
		}
	}
	tracked := len(t.tracked)
	t.mutex.RUnlock()

	status := "healthy"
	increase := current - t.baseline
	switch {
	case increase >= t.config.WarnThreshold:
		status = "warning"
	case len(suspected) > 0:
		status = "leak_suspected"
	}

	return Stats{
		Current:   current,
		Baseline:  t.baseline,
		MaxSeen:   t.maxSeen,
		Tracked:   tracked,
		Suspected: suspected,
		Status:    status,
		Uptime:    time.Since(t.startTime),
	}
}

// ResetBaseline re-anchors the baseline to the current goroutine count,
// used after a rebuild settles so the next check measures drift from here.
func (t *Tracker) ResetBaseline() {
	t.baseline = runtime.NumGoroutine()
}
