package types

import "time"

// AppConfig is the process bootstrap configuration: everything needed
// before the first build attempt can run. The module graph itself is never
// described here; that lives entirely in the XML-backed configuration
// tree (internal/configtree) pointed to by XMLConfigFile.
type AppConfig struct {
	LogLevel      string              `yaml:"logLevel"`
	LogFormat     string              `yaml:"logFormat"`
	ModulesPath   string              `yaml:"modulesPath"`
	XMLConfigFile string              `yaml:"xmlConfigFile"`
	StatusServer  StatusServerConfig  `yaml:"statusServer"`
	MetricsServer MetricsServerConfig `yaml:"metricsServer"`
	HotReload     HotReloadConfig     `yaml:"hotReload"`
}

// StatusServerConfig binds the read-only status/plan/config-tree HTTP API.
type StatusServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// MetricsServerConfig binds the Prometheus scrape endpoint.
type MetricsServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// HotReloadConfig controls the XML config-file watcher.
type HotReloadConfig struct {
	Enabled      bool          `yaml:"enabled"`
	PollInterval time.Duration `yaml:"pollInterval"`
}
