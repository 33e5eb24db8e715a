package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/inivation/caer-mainloop/pkg/types"
)

func TestApplyDefaultsFillsEveryZeroField(t *testing.T) {
	cfg := &types.AppConfig{}
	applyDefaults(cfg)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "/usr/local/lib/caer", cfg.ModulesPath)
	assert.Equal(t, "/etc/caer/caer-config.xml", cfg.XMLConfigFile)
	assert.Equal(t, "127.0.0.1", cfg.StatusServer.Host)
	assert.Equal(t, 8080, cfg.StatusServer.Port)
	assert.Equal(t, "127.0.0.1", cfg.MetricsServer.Host)
	assert.Equal(t, 8081, cfg.MetricsServer.Port)
	assert.Equal(t, 2*time.Second, cfg.HotReload.PollInterval)
}

func TestApplyDefaultsDoesNotOverrideExplicitValues(t *testing.T) {
	cfg := &types.AppConfig{
		LogLevel:      "debug",
		ModulesPath:   "/opt/modules",
		XMLConfigFile: "/opt/config.xml",
	}
	cfg.StatusServer.Port = 9000
	cfg.HotReload.PollInterval = 10 * time.Second

	applyDefaults(cfg)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/opt/modules", cfg.ModulesPath)
	assert.Equal(t, "/opt/config.xml", cfg.XMLConfigFile)
	assert.Equal(t, 9000, cfg.StatusServer.Port)
	assert.Equal(t, 10*time.Second, cfg.HotReload.PollInterval)
}

func TestApplyEnvironmentOverridesWinOverDefaults(t *testing.T) {
	os.Setenv("CAER_LOG_LEVEL", "warn")
	os.Setenv("CAER_MODULES_PATH", "/env/modules")
	os.Setenv("CAER_STATUS_SERVER_ENABLED", "true")
	os.Setenv("CAER_STATUS_SERVER_PORT", "9090")
	os.Setenv("CAER_HOT_RELOAD_POLL_INTERVAL", "5s")
	defer func() {
		os.Unsetenv("CAER_LOG_LEVEL")
		os.Unsetenv("CAER_MODULES_PATH")
		os.Unsetenv("CAER_STATUS_SERVER_ENABLED")
		os.Unsetenv("CAER_STATUS_SERVER_PORT")
		os.Unsetenv("CAER_HOT_RELOAD_POLL_INTERVAL")
	}()

	cfg := &types.AppConfig{}
	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "/env/modules", cfg.ModulesPath)
	assert.True(t, cfg.StatusServer.Enabled)
	assert.Equal(t, 9090, cfg.StatusServer.Port)
	assert.Equal(t, 5*time.Second, cfg.HotReload.PollInterval)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	file := dir + "/app.yaml"
	yamlContent := []byte("logLevel: debug\nmodulesPath: /custom/modules\nxmlConfigFile: /custom/config.xml\n")
	if err := os.WriteFile(file, yamlContent, 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadConfig(file, nil)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/custom/modules", cfg.ModulesPath)
	assert.Equal(t, "/custom/config.xml", cfg.XMLConfigFile)
	// Untouched fields still get defaults.
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoadConfigMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/app.yaml", nil)
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "/usr/local/lib/caer", cfg.ModulesPath)
}

func TestResolveAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:8080", ResolveAddr("127.0.0.1", 8080))
}
