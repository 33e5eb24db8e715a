// Package slo tracks the one service-level indicator that makes sense
// inside the mainloop's own process: the fraction of recent build attempts
// that succeeded. A generic PromQL-query-driven SLI engine has no referent
// here: there is no external Prometheus server to query from
// inside the mainloop; the indicator is derived entirely from build
// outcomes this process already observes.
package slo

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// Config configures the build-success-ratio objective.
type Config struct {
	Enabled bool    `yaml:"enabled"`
	Target  float64 `yaml:"target"`
	Window  int     `yaml:"window"` // number of recent build attempts considered
}

// DefaultConfig returns a 99% success-ratio target over the last 100 builds.
func DefaultConfig() Config {
	return Config{Enabled: true, Target: 0.99, Window: 100}
}

// Status summarizes current standing against the objective.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusBreached Status = "breached"
)

// Tracker maintains the build-success ratio over a sliding window of
// recent build attempts and exposes it as a Prometheus gauge.
type Tracker struct {
	config Config
	logger *logrus.Logger

	mu      sync.Mutex
	results []bool // true = success, oldest first

	ratioGauge  prometheus.Gauge
	breachGauge prometheus.Gauge
}

// NewTracker registers the tracker's gauges against reg.
func NewTracker(config Config, reg prometheus.Registerer, logger *logrus.Logger) *Tracker {
	t := &Tracker{
		config: config,
		logger: logger,
		ratioGauge: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "caer_build_success_ratio",
			Help: "Fraction of recent build attempts that succeeded.",
		}),
		breachGauge: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "caer_build_success_ratio_breached",
			Help: "1 if the build success ratio is below its target, else 0.",
		}),
	}
	t.ratioGauge.Set(1)
	return t
}

// Record appends a build outcome and updates the gauges.
func (t *Tracker) Record(success bool) {
	if !t.config.Enabled {
		return
	}

	t.mu.Lock()
	t.results = append(t.results, success)
	if len(t.results) > t.config.Window {
		t.results = t.results[len(t.results)-t.config.Window:]
	}
	ratio := t.ratio()
	t.mu.Unlock()

	t.ratioGauge.Set(ratio)
	if ratio < t.config.Target {
		t.breachGauge.Set(1)
		t.logger.WithFields(logrus.Fields{"ratio": ratio, "target": t.config.Target}).Warn("build success ratio breached")
	} else {
		t.breachGauge.Set(0)
	}
}

func (t *Tracker) ratio() float64 {
	if len(t.results) == 0 {
		return 1
	}
	successes := 0
	for _, r := range t.results {
		if r {
			successes++
		}
	}
	return float64(successes) / float64(len(t.results))
}

// Ratio returns the current build-success ratio.
func (t *Tracker) Ratio() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ratio()
}

// Status reports healthy/breached against the configured target.
func (t *Tracker) Status() Status {
	if t.Ratio() < t.config.Target {
		return StatusBreached
	}
	return StatusHealthy
}
