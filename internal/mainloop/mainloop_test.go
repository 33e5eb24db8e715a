package mainloop

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inivation/caer-mainloop/internal/configtree"
	"github.com/inivation/caer-mainloop/pkg/types"
)

func testConfig(t *testing.T) *types.AppConfig {
	dir := t.TempDir()
	return &types.AppConfig{
		ModulesPath:   dir,
		XMLConfigFile: filepath.Join(dir, "config.xml"),
		HotReload: types.HotReloadConfig{
			Enabled:      false,
			PollInterval: 10 * time.Millisecond,
		},
	}
}

func TestNewToleratesMissingConfigFile(t *testing.T) {
	m, err := New(testConfig(t), nil)
	require.NoError(t, err)
	require.NotNil(t, m)

	caer, ok := m.Tree().Root().GetChild("caer")
	require.True(t, ok)
	assert.True(t, caer.GetAttribute("running", configtree.TypeBool).(bool))
}

func TestNewStartsWithMainloopRunningTrueByDefault(t *testing.T) {
	m, err := New(testConfig(t), nil)
	require.NoError(t, err)
	assert.True(t, m.mainloopRunning.Load())
}

func TestAttrListenerFlipsMainloopRunning(t *testing.T) {
	m, err := New(testConfig(t), nil)
	require.NoError(t, err)

	caer, ok := m.Tree().Root().GetChild("caer")
	require.True(t, ok)
	require.NoError(t, caer.PutAttribute("running", false))
	assert.False(t, m.mainloopRunning.Load())

	require.NoError(t, caer.PutAttribute("running", true))
	assert.True(t, m.mainloopRunning.Load())
}

func TestAttemptBuildSucceedsWithNoModules(t *testing.T) {
	m, err := New(testConfig(t), nil)
	require.NoError(t, err)

	m.attemptBuild()

	plan, buildErr, at := m.LatestPlan()
	assert.Nil(t, buildErr)
	require.NotNil(t, plan)
	assert.False(t, at.IsZero())
}

func TestStartStopTearsDownCleanly(t *testing.T) {
	m, err := New(testConfig(t), nil)
	require.NoError(t, err)

	require.NoError(t, m.Start())
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, m.Stop())

	_, _, at := m.LatestPlan()
	assert.False(t, at.IsZero())
}
