// File: internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
targets:
  - name: mole
    title_pattern: "Workbench"
    url: "https://mole.example.internal"
    acquire_timeout: 30s
    controls:
      entry_point: "Lot Disposition"
      key_field: "Lot Number"
      search_button: "Search"
      result_rows: "Result"
      submit: "Submit Batch"
    dialogs:
      notice: "^Notice"
      success: "Complete"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "console", cfg.Logger.Format)
	assert.Equal(t, "available", cfg.Pipeline.SelectionMode)
	assert.Equal(t, 3, cfg.Pipeline.StageAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Pipeline.PollInterval)
	assert.Equal(t, 18, cfg.Pipeline.SubmitPolls)
	assert.Equal(t, "ledger.csv", cfg.Paths.LedgerName)
	assert.True(t, cfg.Browser.Headless)

	target, err := cfg.Target("mole")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, target.AcquireTimeout)
	assert.Equal(t, "Lot Disposition", target.Controls.EntryPoint)
	assert.Equal(t, "^Notice", target.Dialogs.Notice)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("LOTPILOT_LOGGER_LEVEL", "debug")
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestConfig_TargetLookup(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	_, err = cfg.Target("mole")
	assert.NoError(t, err)
	_, err = cfg.Target("spark")
	assert.ErrorContains(t, err, "not found")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Pipeline: PipelineConfig{SelectionMode: "available", StageAttempts: 3, SubmitPolls: 18},
			Targets: []TargetConfig{
				{Name: "mole", TitlePattern: "Workbench"},
			},
		}
	}

	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "bad selection mode",
			mutate:  func(c *Config) { c.Pipeline.SelectionMode = "everything" },
			wantErr: "selection_mode",
		},
		{
			name:    "zero stage attempts",
			mutate:  func(c *Config) { c.Pipeline.StageAttempts = 0 },
			wantErr: "stage_attempts",
		},
		{
			name:    "no targets",
			mutate:  func(c *Config) { c.Targets = nil },
			wantErr: "at least one target",
		},
		{
			name: "duplicate target names",
			mutate: func(c *Config) {
				c.Targets = append(c.Targets, TargetConfig{Name: "mole", TitlePattern: "x"})
			},
			wantErr: "duplicate",
		},
		{
			name:    "missing title pattern",
			mutate:  func(c *Config) { c.Targets[0].TitlePattern = "" },
			wantErr: "title_pattern",
		},
		{
			name: "handoff without directory",
			mutate: func(c *Config) {
				c.Targets[0].RequireHandoff = true
			},
			wantErr: "handoff_dir",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tc.wantErr)
			}
		})
	}
}
