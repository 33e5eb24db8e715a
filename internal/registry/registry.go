// Package registry enumerates plugin artifacts on disk and loads the
// self-describing descriptor out of each one, mirroring the
// load loop in original_source/base/mainloop.cpp: search for a matching
// shared-object stem, load it, resolve caerModuleGetInfo, and validate the
// result, all reported per-module without aborting the scan.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inivation/caer-mainloop/pkg/circuit_breaker"
	buildErrors "github.com/inivation/caer-mainloop/pkg/errors"
	"github.com/inivation/caer-mainloop/pkg/types"
)

// DescriptorSymbol is the well-known exported symbol every module artifact
// must provide, named after the original caerModuleGetInfo entry point.
const DescriptorSymbol = "CaerModuleGetInfo"

// DescriptorFunc is the signature a plugin's exported symbol must satisfy.
type DescriptorFunc func() *types.ModuleDescriptor

// Config configures a Registry.
type Config struct {
	// ModulesPath is the directory scanned (recursively) for *.so / *.dll
	// artifacts.
	ModulesPath string
	Breaker     circuit_breaker.Config
}

// Registry loads module descriptors from shared-object artifacts found
// under a configured directory.
type Registry struct {
	cfg    Config
	logger *logrus.Logger

	mu       sync.Mutex
	breakers map[string]types.CircuitBreaker
}

// New creates a Registry rooted at cfg.ModulesPath.
func New(cfg Config, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{
		cfg:      cfg,
		logger:   logger,
		breakers: make(map[string]types.CircuitBreaker),
	}
}

// LoadResult is the outcome of attempting to load one named module
// library: either a descriptor, or an error describing why loading
// failed.
type LoadResult struct {
	Library    string
	Descriptor *types.ModuleDescriptor
	Err        error
}

// LoadAll resolves and loads the artifact for every library name in
// libraries, returning one LoadResult per name in the same order. It never
// aborts partway through a failed load; the caller decides whether any
// failure is fatal to the overall build.
func (r *Registry) LoadAll(libraries []string) []LoadResult {
	artifacts, scanErr := r.scanArtifacts()

	results := make([]LoadResult, 0, len(libraries))
	for _, lib := range libraries {
		if scanErr != nil {
			results = append(results, LoadResult{Library: lib, Err: scanErr})
			continue
		}
		desc, err := r.load(lib, artifacts)
		results = append(results, LoadResult{Library: lib, Descriptor: desc, Err: err})
	}
	return results
}

func (r *Registry) load(library string, artifacts map[string]string) (*types.ModuleDescriptor, error) {
	breaker := r.breakerFor(library)
	if !breaker.Allow() {
		return nil, buildErrors.New(buildErrors.CodePluginLoadFailed, "registry", "load",
			fmt.Sprintf("library %q: skipped, circuit breaker open after repeated failures", library))
	}

	path, ok := artifacts[library]
	if !ok {
		breaker.RecordFailure()
		return nil, buildErrors.New(buildErrors.CodePluginNotFound, "registry", "load",
			fmt.Sprintf("no module library %q found under %s", library, r.cfg.ModulesPath))
	}

	r.logger.WithFields(logrus.Fields{"component": "registry", "library": library, "path": path}).Info("loading module library")

	p, err := plugin.Open(path)
	if err != nil {
		breaker.RecordFailure()
		return nil, buildErrors.New(buildErrors.CodePluginLoadFailed, "registry", "load",
			fmt.Sprintf("library %q: failed to load %s", library, path)).Wrap(err)
	}

	sym, err := p.Lookup(DescriptorSymbol)
	if err != nil {
		breaker.RecordFailure()
		return nil, buildErrors.New(buildErrors.CodePluginLoadFailed, "registry", "load",
			fmt.Sprintf("library %q: symbol %s not found in %s", library, DescriptorSymbol, path)).Wrap(err)
	}

	getInfo, ok := sym.(DescriptorFunc)
	if !ok {
		breaker.RecordFailure()
		return nil, buildErrors.New(buildErrors.CodePluginLoadFailed, "registry", "load",
			fmt.Sprintf("library %q: symbol %s has the wrong signature", library, DescriptorSymbol))
	}

	info := getInfo()
	if info == nil {
		breaker.RecordFailure()
		return nil, buildErrors.New(buildErrors.CodePluginLoadFailed, "registry", "load",
			fmt.Sprintf("library %q: %s returned a nil descriptor", library, DescriptorSymbol))
	}

	breaker.RecordSuccess()
	return info, nil
}

func (r *Registry) breakerFor(library string) types.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[library]
	if !ok {
		b = circuit_breaker.New(r.cfg.Breaker)
		r.breakers[library] = b
	}
	return b
}

// scanArtifacts walks ModulesPath recursively for files matching
// <name>.so or <name>.dll, returning a stem-to-path map. When the same
// stem appears more than once, the first match encountered in a
// deterministic lexical walk wins and the rest are logged and skipped.
func (r *Registry) scanArtifacts() (map[string]string, error) {
	artifacts := make(map[string]string)
	var paths []string

	err := filepath.WalkDir(r.cfg.ModulesPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".so" && ext != ".dll" {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, buildErrors.New(buildErrors.CodePluginNotFound, "registry", "scan",
			fmt.Sprintf("walking %s", r.cfg.ModulesPath)).Wrap(err)
	}

	sort.Strings(paths)
	for _, path := range paths {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if existing, ok := artifacts[stem]; ok {
			r.logger.WithFields(logrus.Fields{
				"component": "registry",
				"library":   stem,
				"kept":      existing,
				"dropped":   path,
			}).Warn("duplicate module artifact, keeping first match")
			continue
		}
		artifacts[stem] = path
	}
	return artifacts, nil
}
