package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inivation/caer-mainloop/pkg/types"
)

func validAppConfig() *types.AppConfig {
	cfg := &types.AppConfig{
		LogLevel:      "info",
		LogFormat:     "json",
		ModulesPath:   "/usr/local/lib/caer",
		XMLConfigFile: "/etc/caer/caer-config.xml",
	}
	cfg.StatusServer = types.StatusServerConfig{Enabled: true, Host: "127.0.0.1", Port: 8080}
	cfg.MetricsServer = types.MetricsServerConfig{Enabled: true, Host: "127.0.0.1", Port: 8081}
	return cfg
}

func TestValidConfigPasses(t *testing.T) {
	err := ValidateConfig(validAppConfig())
	assert.NoError(t, err)
}

func TestInvalidLogLevel(t *testing.T) {
	cfg := validAppConfig()
	cfg.LogLevel = "verbose"
	err := ValidateConfig(cfg)
	require.Error(t, err)
}

func TestInvalidLogFormat(t *testing.T) {
	cfg := validAppConfig()
	cfg.LogFormat = "xml"
	err := ValidateConfig(cfg)
	require.Error(t, err)
}

func TestModulesPathMustBeAbsolute(t *testing.T) {
	cfg := validAppConfig()
	cfg.ModulesPath = "relative/path"
	err := ValidateConfig(cfg)
	require.Error(t, err)
}

func TestXMLConfigFileMustBeAbsolute(t *testing.T) {
	cfg := validAppConfig()
	cfg.XMLConfigFile = "config.xml"
	err := ValidateConfig(cfg)
	require.Error(t, err)
}

func TestStatusServerPortOutOfRange(t *testing.T) {
	cfg := validAppConfig()
	cfg.StatusServer.Port = 70000
	err := ValidateConfig(cfg)
	require.Error(t, err)
}

func TestStatusServerDisabledSkipsPortCheck(t *testing.T) {
	cfg := validAppConfig()
	cfg.StatusServer.Enabled = false
	cfg.StatusServer.Port = -1
	err := ValidateConfig(cfg)
	assert.NoError(t, err)
}

func TestMetricsServerPortConflictWithStatusServer(t *testing.T) {
	cfg := validAppConfig()
	cfg.MetricsServer.Host = cfg.StatusServer.Host
	cfg.MetricsServer.Port = cfg.StatusServer.Port
	err := ValidateConfig(cfg)
	require.Error(t, err)
}

func TestMetricsServerSamePortDifferentHostIsFine(t *testing.T) {
	cfg := validAppConfig()
	cfg.MetricsServer.Host = "0.0.0.0"
	cfg.MetricsServer.Port = cfg.StatusServer.Port
	err := ValidateConfig(cfg)
	assert.NoError(t, err)
}

func TestHotReloadRequiresPositivePollIntervalWhenEnabled(t *testing.T) {
	cfg := validAppConfig()
	cfg.HotReload.Enabled = true
	cfg.HotReload.PollInterval = 0
	err := ValidateConfig(cfg)
	require.Error(t, err)
}

func TestHotReloadDisabledSkipsPollIntervalCheck(t *testing.T) {
	cfg := validAppConfig()
	cfg.HotReload.Enabled = false
	cfg.HotReload.PollInterval = 0
	err := ValidateConfig(cfg)
	assert.NoError(t, err)
}

func TestMultipleValidationErrorsAreAggregated(t *testing.T) {
	cfg := validAppConfig()
	cfg.LogLevel = "bogus"
	cfg.LogFormat = "bogus"
	cfg.ModulesPath = "relative"

	err := ValidateConfig(cfg)
	require.Error(t, err)
	be, ok := err.(interface{ Error() string })
	require.True(t, ok)
	assert.Contains(t, be.Error(), "multiple validation errors")
}
