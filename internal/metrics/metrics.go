// Package metrics exposes build-plan Prometheus metrics and the /metrics
// HTTP endpoint: the set of measurements the mainloop's own build cycle
// can produce.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// BuildMetrics holds the Prometheus collectors registered against one
// registry, mirroring one build attempt's observable facts.
type BuildMetrics struct {
	BuildsTotal    *prometheus.CounterVec
	BuildDuration  prometheus.Histogram
	ModuleCount    prometheus.Gauge
	StreamCount    prometheus.Gauge
	SlotCount      prometheus.Gauge
	LastBuildUnix  prometheus.Gauge
}

// NewBuildMetrics registers the build-plan metric set against reg.
func NewBuildMetrics(reg prometheus.Registerer) *BuildMetrics {
	factory := promauto.With(reg)
	return &BuildMetrics{
		BuildsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "caer_builds_total",
			Help: "Total number of build attempts, by outcome.",
		}, []string{"outcome"}),
		BuildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "caer_build_duration_seconds",
			Help:    "Time spent running a build attempt.",
			Buckets: prometheus.DefBuckets,
		}),
		ModuleCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "caer_plan_module_count",
			Help: "Number of modules in the most recently built plan.",
		}),
		StreamCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "caer_plan_active_stream_count",
			Help: "Number of active streams in the most recently built plan.",
		}),
		SlotCount: factory.NewGauge(prometheus.GaugeOpts{
			Name: "caer_plan_slot_count",
			Help: "Total routing slot count of the most recently built plan.",
		}),
		LastBuildUnix: factory.NewGauge(prometheus.GaugeOpts{
			Name: "caer_last_build_timestamp_seconds",
			Help: "Unix timestamp of the most recent build attempt.",
		}),
	}
}

// RecordSuccess records a successful build's shape and duration.
func (bm *BuildMetrics) RecordSuccess(moduleCount, streamCount, slotCount int, duration time.Duration, at time.Time) {
	bm.BuildsTotal.WithLabelValues("success").Inc()
	bm.BuildDuration.Observe(duration.Seconds())
	bm.ModuleCount.Set(float64(moduleCount))
	bm.StreamCount.Set(float64(streamCount))
	bm.SlotCount.Set(float64(slotCount))
	bm.LastBuildUnix.Set(float64(at.Unix()))
}

// RecordFailure records a failed build attempt's timing only; the plan
// shape gauges are left at their last successful value.
func (bm *BuildMetrics) RecordFailure(duration time.Duration, at time.Time) {
	bm.BuildsTotal.WithLabelValues("failure").Inc()
	bm.BuildDuration.Observe(duration.Seconds())
	bm.LastBuildUnix.Set(float64(at.Unix()))
}

// Server serves /metrics over HTTP for one Prometheus registry.
type Server struct {
	server *http.Server
	logger *logrus.Logger
}

// NewServer builds a metrics HTTP server bound to addr, serving reg.
func NewServer(addr string, reg *prometheus.Registry, logger *logrus.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return &Server{
		server: &http.Server{Addr: addr, Handler: mux},
		logger: logger,
	}
}

// Start begins serving in the background.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.server.Addr).Info("starting metrics server")
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("metrics server error")
		}
	}()
	return nil
}

// Stop shuts the server down, waiting up to 5 seconds for in-flight scrapes.
func (s *Server) Stop() error {
	s.logger.Info("stopping metrics server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
