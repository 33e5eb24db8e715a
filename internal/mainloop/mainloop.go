// Package mainloop also owns the Mainloop type: the top-level process
// state machine that decides when to (re)attempt a build, wires the
// configuration tree to disk, and coordinates the ambient services
// (goroutine tracking, hot reload, build-success SLO, tracing) around
// repeated calls to Build.
package mainloop

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/inivation/caer-mainloop/internal/configtree"
	"github.com/inivation/caer-mainloop/internal/metrics"
	"github.com/inivation/caer-mainloop/internal/statusapi"
	"github.com/inivation/caer-mainloop/pkg/goroutines"
	"github.com/inivation/caer-mainloop/pkg/hotreload"
	"github.com/inivation/caer-mainloop/pkg/slo"
	"github.com/inivation/caer-mainloop/pkg/task_manager"
	"github.com/inivation/caer-mainloop/pkg/tracing"
	"github.com/inivation/caer-mainloop/pkg/types"
)

// pollLoopTaskID names the task_manager-supervised goroutine that drives
// repeated build attempts.
const pollLoopTaskID = "build-poll-loop"

// Mainloop is the process-level driver: it owns the configuration tree,
// runs build attempts against it, and coordinates the ambient services
// around that core loop.
type Mainloop struct {
	cfg    *types.AppConfig
	logger *logrus.Logger

	tree *configtree.Tree

	goroutineTracker *goroutines.Tracker
	reloader         *hotreload.Reloader
	sloTracker       *slo.Tracker
	tracingManager   *tracing.Manager
	buildMetrics     *metrics.BuildMetrics
	metricsServer    *metrics.Server
	statusServer     *statusapi.Server
	taskManager      types.TaskManager
	registry         *prometheus.Registry

	// systemRunning reflects the process-level intent to keep running,
	// flipped false by a termination signal. mainloopRunning reflects
	// whether a build attempt should currently be pursued, flipped by the
	// /caer node's running attribute.
	systemRunning   atomic.Bool
	mainloopRunning atomic.Bool

	planMu      sync.RWMutex
	lastPlan    *types.ExecutionPlan
	lastErr     error
	lastAttempt time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Mainloop from a loaded bootstrap configuration: it
// builds an empty configuration tree, imports the XML file named by
// cfg.XMLConfigFile if it exists, and wires every ambient service off the
// same cfg.
func New(cfg *types.AppConfig, logger *logrus.Logger) (*Mainloop, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	tree := configtree.New(logger)

	if file, err := os.Open(cfg.XMLConfigFile); err == nil {
		defer file.Close()
		if err := configtree.Import(tree.Root(), file, configtree.ImportOptions{Logger: logger}); err != nil {
			return nil, fmt.Errorf("mainloop: import config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("mainloop: open config file: %w", err)
	}

	caer := tree.Root().AddChild("caer")
	if !caer.HasAttribute("running") {
		caer.CreateAttribute("running", configtree.TypeBool, true, configtree.Range{}, configtree.Flags{}, "process running state")
	}

	ctx, cancel := context.WithCancel(context.Background())

	reg := prometheus.NewRegistry()
	tracingManager, err := tracing.NewManager(tracing.DefaultConfig(), logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("mainloop: init tracing: %w", err)
	}

	reloaderCfg := hotreload.Config{
		Enabled:      cfg.HotReload.Enabled,
		PollInterval: cfg.HotReload.PollInterval,
	}
	reloader, err := hotreload.NewReloader(reloaderCfg, cfg.XMLConfigFile, tree, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("mainloop: init hot reload: %w", err)
	}

	buildMetrics := metrics.NewBuildMetrics(reg)

	var metricsServer *metrics.Server
	if cfg.MetricsServer.Enabled {
		metricsServer = metrics.NewServer(
			net.JoinHostPort(cfg.MetricsServer.Host, strconv.Itoa(cfg.MetricsServer.Port)),
			reg, logger,
		)
	}

	m := &Mainloop{
		cfg:              cfg,
		logger:           logger,
		tree:             tree,
		goroutineTracker: goroutines.NewTracker(goroutines.DefaultConfig(), logger),
		reloader:         reloader,
		sloTracker:       slo.NewTracker(slo.DefaultConfig(), reg, logger),
		tracingManager:   tracingManager,
		buildMetrics:     buildMetrics,
		metricsServer:    metricsServer,
		taskManager:      task_manager.New(task_manager.Config{}, logger),
		registry:         reg,
		ctx:              ctx,
		cancel:           cancel,
	}

	if cfg.StatusServer.Enabled {
		m.statusServer = statusapi.NewServer(
			net.JoinHostPort(cfg.StatusServer.Host, strconv.Itoa(cfg.StatusServer.Port)),
			m, logger,
		)
	}

	m.systemRunning.Store(true)
	m.mainloopRunning.Store(caer.GetAttribute("running", configtree.TypeBool).(bool))

	caer.AddAttrListener(func(node *configtree.Node, event configtree.AttrEvent, key string, attrType configtree.AttrType, value interface{}) {
		if key != "running" {
			return
		}
		if running, ok := value.(bool); ok {
			m.mainloopRunning.Store(running)
		}
	})

	return m, nil
}

// Tree exposes the live configuration tree, e.g. for the status API.
func (m *Mainloop) Tree() *configtree.Tree { return m.tree }

// Registry exposes the Prometheus registry every ambient service registers
// its metrics against, for internal/metrics to serve.
func (m *Mainloop) Registry() *prometheus.Registry { return m.registry }

// LatestPlan returns the most recent successful plan (if any) and the most
// recent build error (if the last attempt failed), plus when that attempt
// ran.
func (m *Mainloop) LatestPlan() (*types.ExecutionPlan, error, time.Time) {
	m.planMu.RLock()
	defer m.planMu.RUnlock()
	return m.lastPlan, m.lastErr, m.lastAttempt
}

// Start launches the ambient services and the build-poll loop. It does not
// block; call Run (or wait on a signal yourself) to keep the process alive.
func (m *Mainloop) Start() error {
	m.logger.Info("starting mainloop")

	if err := m.goroutineTracker.Start(); err != nil {
		return fmt.Errorf("mainloop: start goroutine tracker: %w", err)
	}
	if err := m.reloader.Start(); err != nil {
		return fmt.Errorf("mainloop: start hot reload: %w", err)
	}
	if m.metricsServer != nil {
		if err := m.metricsServer.Start(); err != nil {
			return fmt.Errorf("mainloop: start metrics server: %w", err)
		}
	}
	if m.statusServer != nil {
		if err := m.statusServer.Start(); err != nil {
			return fmt.Errorf("mainloop: start status server: %w", err)
		}
	}

	if err := m.taskManager.StartTask(m.ctx, pollLoopTaskID, m.pollLoop); err != nil {
		return fmt.Errorf("mainloop: start poll loop: %w", err)
	}

	m.logger.Info("mainloop started")
	return nil
}

// Stop tears down every ambient service and waits for the poll loop to
// exit. Individual component stop errors are logged, not propagated: a
// failure to stop the goroutine tracker must not prevent the config
// reloader or tracer from also being given a chance to shut down cleanly.
func (m *Mainloop) Stop() error {
	m.logger.Info("stopping mainloop")
	m.systemRunning.Store(false)
	m.cancel()
	if err := m.taskManager.StopTask(pollLoopTaskID); err != nil {
		m.logger.WithError(err).Error("failed to stop poll loop")
	}
	m.taskManager.Cleanup()

	if err := m.reloader.Stop(); err != nil {
		m.logger.WithError(err).Error("failed to stop hot reload")
	}
	if err := m.goroutineTracker.Stop(); err != nil {
		m.logger.WithError(err).Error("failed to stop goroutine tracker")
	}
	if m.metricsServer != nil {
		if err := m.metricsServer.Stop(); err != nil {
			m.logger.WithError(err).Error("failed to stop metrics server")
		}
	}
	if m.statusServer != nil {
		if err := m.statusServer.Stop(); err != nil {
			m.logger.WithError(err).Error("failed to stop status server")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.tracingManager.Shutdown(shutdownCtx); err != nil {
		m.logger.WithError(err).Error("failed to shut down tracing manager")
	}

	m.logger.Info("mainloop stopped")
	return nil
}

// Run starts the mainloop and blocks until a termination signal arrives,
// then stops cleanly. SIGPIPE is explicitly ignored: a module artifact
// writing to a closed pipe must not kill the whole process.
func (m *Mainloop) Run() error {
	if err := m.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	signal.Ignore(syscall.SIGPIPE)
	notifyPlatformSignals(sigChan)

	<-sigChan
	m.logger.Info("shutdown signal received")
	return m.Stop()
}

// pollLoop runs one build attempt at start, then one on every tick while
// mainloopRunning is true, ticking at the configured hot-reload poll
// interval whether or not hot reload is enabled (one second when that
// interval is not positive). It reports a heartbeat to the
// task manager every tick so a stalled build attempt surfaces as a timed
// out task rather than a silently wedged goroutine.
func (m *Mainloop) pollLoop(ctx context.Context) error {
	interval := m.cfg.HotReload.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.attemptBuild()
	_ = m.taskManager.Heartbeat(pollLoopTaskID)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = m.taskManager.Heartbeat(pollLoopTaskID)
			if !m.systemRunning.Load() {
				return nil
			}
			if m.mainloopRunning.Load() {
				m.attemptBuild()
			}
		}
	}
}

func (m *Mainloop) attemptBuild() {
	attemptStart := time.Now()
	plan, err := Build(m.ctx, m.tree, m.cfg.ModulesPath, m.tracingManager, m.logger)
	now := time.Now()

	m.planMu.Lock()
	m.lastAttempt = now
	if err != nil {
		m.lastErr = err
	} else {
		m.lastPlan = plan
		m.lastErr = nil
	}
	m.planMu.Unlock()

	if err != nil {
		m.buildMetrics.RecordFailure(now.Sub(attemptStart), now)
	} else {
		m.buildMetrics.RecordSuccess(len(plan.Modules), len(plan.ActiveStreams), plan.SlotCount, plan.BuildDuration, now)
	}

	m.sloTracker.Record(err == nil)
	m.goroutineTracker.ResetBaseline()
}
