// Package hotreload watches the XML configuration file on disk and
// re-imports it into the live configuration tree when it changes, then
// flips the /caer node's running attribute to request a rebuild.
package hotreload

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/inivation/caer-mainloop/internal/configtree"
)

// Config configures the hot reloader.
type Config struct {
	Enabled          bool          `yaml:"enabled"`
	PollInterval     time.Duration `yaml:"pollInterval"`
	DebounceInterval time.Duration `yaml:"debounceInterval"`
}

// Stats reports the reloader's activity.
type Stats struct {
	TotalReloads      int64     `json:"total_reloads"`
	SuccessfulReloads int64     `json:"successful_reloads"`
	FailedReloads     int64     `json:"failed_reloads"`
	LastReloadTime    time.Time `json:"last_reload_time"`
	LastError         string    `json:"last_error,omitempty"`
	IsWatching        bool      `json:"is_watching"`
}

// Reloader watches configFile for changes and re-imports it onto tree.
type Reloader struct {
	config     Config
	logger     *logrus.Logger
	configFile string
	tree       *configtree.Tree

	watcher *fsnotify.Watcher
	ctx     chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool

	mu    sync.Mutex
	stats Stats
}

// NewReloader creates a reloader for configFile, targeting tree. The watcher
// itself is only created when config.Enabled.
func NewReloader(config Config, configFile string, tree *configtree.Tree, logger *logrus.Logger) (*Reloader, error) {
	r := &Reloader{
		config:     config,
		logger:     logger,
		configFile: configFile,
		tree:       tree,
		ctx:        make(chan struct{}),
	}
	if !config.Enabled {
		return r, nil
	}

	if config.DebounceInterval == 0 {
		r.config.DebounceInterval = 500 * time.Millisecond
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("hotreload: create watcher: %w", err)
	}
	r.watcher = watcher
	return r, nil
}

// Start begins watching the config file and its containing directory (so
// editor save-as-rename patterns are still seen).
func (r *Reloader) Start() error {
	if !r.config.Enabled {
		r.logger.Debug("hot reload disabled")
		return nil
	}
	if r.running.Load() {
		return fmt.Errorf("hotreload: already running")
	}

	dir := filepath.Dir(r.configFile)
	if err := r.watcher.Add(dir); err != nil {
		return fmt.Errorf("hotreload: watch directory %s: %w", dir, err)
	}

	r.running.Store(true)
	r.mu.Lock()
	r.stats.IsWatching = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.watchLoop()

	r.logger.WithField("file", r.configFile).Info("hot reload watcher started")
	return nil
}

// Stop halts the watcher and waits for the watch loop to exit.
func (r *Reloader) Stop() error {
	if !r.running.Load() {
		return nil
	}
	r.running.Store(false)
	close(r.ctx)
	if r.watcher != nil {
		r.watcher.Close()
	}
	r.wg.Wait()
	r.logger.Info("hot reload watcher stopped")
	return nil
}

func (r *Reloader) watchLoop() {
	defer r.wg.Done()

	var debounce *time.Timer
	pending := false

	for {
		var debounceC <-chan time.Time
		if debounce != nil {
			debounceC = debounce.C
		}

		select {
		case <-r.ctx:
			return

		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if !r.relevant(event) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(r.config.DebounceInterval)
			pending = true

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.WithError(err).Error("hot reload watcher error")

		case <-debounceC:
			if pending {
				pending = false
				r.reload()
			}
		}
	}
}

func (r *Reloader) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	absEvent, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	absTarget, err := filepath.Abs(r.configFile)
	if err != nil {
		return false
	}
	return absEvent == absTarget
}

// reload re-imports the config file onto the live tree and flips the
// running attribute under /caer so the mainloop's attribute listener
// requests a rebuild. Import errors are logged, not propagated: a
// transient partial write (editor mid-save) must not crash the reloader.
func (r *Reloader) reload() {
	start := time.Now()
	r.mu.Lock()
	r.stats.TotalReloads++
	r.stats.LastReloadTime = start
	r.mu.Unlock()

	file, err := os.Open(r.configFile)
	if err != nil {
		r.recordFailure(fmt.Errorf("open config file: %w", err))
		return
	}
	defer file.Close()

	if err := configtree.Import(r.tree.Root(), file, configtree.ImportOptions{Logger: r.logger}); err != nil {
		r.recordFailure(err)
		return
	}

	caer := r.tree.Root().AddChild("caer")
	if !caer.HasAttribute("running") {
		caer.CreateAttribute("running", configtree.TypeBool, true, configtree.Range{}, configtree.Flags{}, "process running state")
	} else if err := caer.PutAttribute("running", true); err != nil {
		r.recordFailure(fmt.Errorf("flip running attribute: %w", err))
		return
	}

	r.mu.Lock()
	r.stats.SuccessfulReloads++
	r.stats.LastError = ""
	r.mu.Unlock()

	r.logger.WithField("reload_time", time.Since(start)).Info("config file reload applied")
}

func (r *Reloader) recordFailure(err error) {
	r.mu.Lock()
	r.stats.FailedReloads++
	r.stats.LastError = err.Error()
	r.mu.Unlock()
	r.logger.WithError(err).Error("config reload failed")
}

// GetStats returns the current reload statistics.
func (r *Reloader) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
