package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.configPath)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "nonexistent.json")

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, 30, cfg.Controller.MaxTotalLLMTurns)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"controller": {
				"max_total_llm_turns": 10,
				"max_tool_calls_per_step": 4
			},
			"approvals": {
				"global": {"shell_exec": true},
				"conversations": {
					"conv-1": {"shell_exec": false}
				}
			}
		}`
		err := os.WriteFile(configPath, []byte(testConfig), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, 10, cfg.Controller.MaxTotalLLMTurns)
		assert.Equal(t, 4, cfg.Controller.MaxToolCallsPerStep)
		// Unset sections keep their defaults.
		assert.Equal(t, 120, cfg.Controller.ApprovalTimeoutSeconds)
		assert.Equal(t, map[string]bool{"shell_exec": true}, cfg.Approvals.Global)
		assert.Equal(t, map[string]bool{"shell_exec": false}, cfg.Approvals.Conversations["conv-1"])
	})

	t.Run("set default paths", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{"data_dir": "` + tmpDir + `"}`
		err := os.WriteFile(configPath, []byte(testConfig), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, tmpDir, cfg.DataDir)
		assert.Equal(t, filepath.Join(tmpDir, "helmsman.log"), cfg.Logging.File)
		assert.Equal(t, filepath.Join(tmpDir, "outputs.db"), cfg.Outputs.Path)
		assert.Equal(t, filepath.Join(tmpDir, "sessions.db"), cfg.Sessions.Path)
	})

	t.Run("invalid config is rejected", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{"controller": {"max_total_llm_turns": -1}}`
		err := os.WriteFile(configPath, []byte(testConfig), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		_, err = loader.Load()
		assert.Error(t, err)
	})
}

func TestLoaderSaveRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "helmsman.json")

	loader := NewLoader(configPath)
	cfg := DefaultConfig()
	cfg.Controller.MaxTotalLLMTurns = 12
	cfg.Approvals.Global["shell_exec"] = true

	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 12, loaded.Controller.MaxTotalLLMTurns)
	assert.Equal(t, map[string]bool{"shell_exec": true}, loaded.Approvals.Global)
}

func TestGetConfigPath(t *testing.T) {
	loader := NewLoader("/explicit/path.json")
	assert.Equal(t, "/explicit/path.json", loader.GetConfigPath())

	loader = NewLoader("")
	path := loader.GetConfigPath()
	assert.Contains(t, path, ".helmsman")
}
