// Package config loads the process bootstrap configuration: a YAML
// AppConfig layered with environment overrides and validated before the
// first build attempt. It is the only YAML-configured surface in the
// system; the module graph itself always comes from the XML configuration
// tree named by AppConfig.XMLConfigFile.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/inivation/caer-mainloop/pkg/errors"
	"github.com/inivation/caer-mainloop/pkg/types"
)

// LoadConfig reads configFile (if non-empty), applies defaults, applies
// environment overrides, validates the result, and returns it. A missing or
// unparsable configFile is not fatal: it is logged and defaults apply as if
// no file had been given.
func LoadConfig(configFile string, logger *logrus.Logger) (*types.AppConfig, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	cfg := &types.AppConfig{}

	if configFile != "" {
		if err := loadConfigFile(configFile, cfg); err != nil {
			logger.WithError(err).WithField("file", configFile).Warn("failed to load config file, using defaults")
		} else {
			logger.WithField("file", configFile).Info("loaded configuration from file")
		}
	}

	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(filename string, cfg *types.AppConfig) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// applyDefaults fills in every field left zero-valued after the YAML load.
func applyDefaults(cfg *types.AppConfig) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.ModulesPath == "" {
		cfg.ModulesPath = "/usr/local/lib/caer"
	}
	if cfg.XMLConfigFile == "" {
		cfg.XMLConfigFile = "/etc/caer/caer-config.xml"
	}

	if cfg.StatusServer.Host == "" {
		cfg.StatusServer.Host = "127.0.0.1"
	}
	if cfg.StatusServer.Port == 0 {
		cfg.StatusServer.Port = 8080
	}

	if cfg.MetricsServer.Host == "" {
		cfg.MetricsServer.Host = "127.0.0.1"
	}
	if cfg.MetricsServer.Port == 0 {
		cfg.MetricsServer.Port = 8081
	}

	if cfg.HotReload.PollInterval == 0 {
		cfg.HotReload.PollInterval = 2 * time.Second
	}
}

// applyEnvironmentOverrides lets CAER_* environment variables win over both
// the YAML file and the defaults.
func applyEnvironmentOverrides(cfg *types.AppConfig) {
	cfg.LogLevel = getEnvString("CAER_LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnvString("CAER_LOG_FORMAT", cfg.LogFormat)
	cfg.ModulesPath = getEnvString("CAER_MODULES_PATH", cfg.ModulesPath)
	cfg.XMLConfigFile = getEnvString("CAER_XML_CONFIG_FILE", cfg.XMLConfigFile)

	cfg.StatusServer.Enabled = getEnvBool("CAER_STATUS_SERVER_ENABLED", cfg.StatusServer.Enabled)
	cfg.StatusServer.Host = getEnvString("CAER_STATUS_SERVER_HOST", cfg.StatusServer.Host)
	cfg.StatusServer.Port = getEnvInt("CAER_STATUS_SERVER_PORT", cfg.StatusServer.Port)

	cfg.MetricsServer.Enabled = getEnvBool("CAER_METRICS_SERVER_ENABLED", cfg.MetricsServer.Enabled)
	cfg.MetricsServer.Host = getEnvString("CAER_METRICS_SERVER_HOST", cfg.MetricsServer.Host)
	cfg.MetricsServer.Port = getEnvInt("CAER_METRICS_SERVER_PORT", cfg.MetricsServer.Port)

	cfg.HotReload.Enabled = getEnvBool("CAER_HOT_RELOAD_ENABLED", cfg.HotReload.Enabled)
	if interval := getEnvDuration("CAER_HOT_RELOAD_POLL_INTERVAL", 0); interval != 0 {
		cfg.HotReload.PollInterval = interval
	}
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// ValidateConfig performs the full bootstrap validation pass.
func ValidateConfig(cfg *types.AppConfig) error {
	v := &configValidator{cfg: cfg}
	v.validateLogging()
	v.validatePaths()
	v.validateStatusServer()
	v.validateMetricsServer()
	v.validateHotReload()

	if len(v.errs) > 0 {
		return v.buildValidationError()
	}
	return nil
}

type configValidator struct {
	cfg  *types.AppConfig
	errs []error
}

func (v *configValidator) addError(operation, message string) {
	v.errs = append(v.errs, errors.ConfigError(operation, message))
}

func (v *configValidator) validateLogging() {
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[v.cfg.LogLevel] {
		v.addError("validate_log_level", fmt.Sprintf("invalid log level: %s", v.cfg.LogLevel))
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[v.cfg.LogFormat] {
		v.addError("validate_log_format", fmt.Sprintf("invalid log format: %s", v.cfg.LogFormat))
	}
}

func (v *configValidator) validatePaths() {
	if v.cfg.ModulesPath == "" {
		v.addError("validate_modules_path", "modules path cannot be empty")
	} else if !filepath.IsAbs(v.cfg.ModulesPath) {
		v.addError("validate_modules_path", fmt.Sprintf("modules path must be absolute: %s", v.cfg.ModulesPath))
	}

	if v.cfg.XMLConfigFile == "" {
		v.addError("validate_xml_config_file", "XML config file path cannot be empty")
	} else if !filepath.IsAbs(v.cfg.XMLConfigFile) {
		v.addError("validate_xml_config_file", fmt.Sprintf("XML config file must be absolute: %s", v.cfg.XMLConfigFile))
	}
}

func (v *configValidator) validateStatusServer() {
	if !v.cfg.StatusServer.Enabled {
		return
	}
	v.validatePort("status_server", "validate_port", v.cfg.StatusServer.Port)
	if v.cfg.StatusServer.Host == "" {
		v.addError("validate_status_host", "status server host cannot be empty when enabled")
	}
}

func (v *configValidator) validateMetricsServer() {
	if !v.cfg.MetricsServer.Enabled {
		return
	}
	v.validatePort("metrics_server", "validate_port", v.cfg.MetricsServer.Port)
	if v.cfg.MetricsServer.Host == "" {
		v.addError("validate_metrics_host", "metrics server host cannot be empty when enabled")
	}
	if v.cfg.StatusServer.Enabled && v.cfg.StatusServer.Port == v.cfg.MetricsServer.Port &&
		v.cfg.StatusServer.Host == v.cfg.MetricsServer.Host {
		v.addError("validate_port_conflict", "metrics server port conflicts with status server port")
	}
}

func (v *configValidator) validatePort(component, operation string, port int) {
	if port <= 0 || port > 65535 {
		v.addError(operation, fmt.Sprintf("invalid %s port: %d", component, port))
	}
}

func (v *configValidator) validateHotReload() {
	if !v.cfg.HotReload.Enabled {
		return
	}
	if v.cfg.HotReload.PollInterval <= 0 {
		v.addError("validate_poll_interval", "hot reload poll interval must be positive when enabled")
	}
}

func (v *configValidator) buildValidationError() error {
	if len(v.errs) == 1 {
		return v.errs[0]
	}
	messages := make([]string, 0, len(v.errs))
	for _, err := range v.errs {
		messages = append(messages, err.Error())
	}
	return errors.ConfigError("validate", fmt.Sprintf("multiple validation errors: %s", strings.Join(messages, "; ")))
}

// ResolveAddr renders a host:port listen address, shared by the status and
// metrics servers.
func ResolveAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
