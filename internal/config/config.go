// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration. Fields are plain
// exported structs; nothing in this tool mutates configuration at runtime,
// so there is no setter interface in front of it.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Targets  []TargetConfig `mapstructure:"targets" yaml:"targets"`
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline"`
	Paths    PathsConfig    `mapstructure:"paths" yaml:"paths"`
}

// LoggerConfig configures the global zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"` // "console" or "json"
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`

	// File logging (lumberjack rotation). Empty LogFile disables the file core.
	LogFile    string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"` // days
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// BrowserConfig configures the chromedp-backed automation transport.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless" yaml:"headless"`
	IgnoreTLSErrors   bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	Args              []string      `mapstructure:"args" yaml:"args"`
}

// DialogTitles is the set of modal dialog title patterns recognized for one
// target. These strings, like the control titles below, are the de facto
// wire protocol to the target application: if the target renames a dialog,
// this configuration must follow.
type DialogTitles struct {
	Login   string `mapstructure:"login" yaml:"login"`
	Notice  string `mapstructure:"notice" yaml:"notice"`
	Confirm string `mapstructure:"confirm" yaml:"confirm"`
	Success string `mapstructure:"success" yaml:"success"`

	// Affirmative is the button text that dismisses a recognized dialog.
	// FallbackKey is pressed once when the button cannot be located.
	Affirmative string `mapstructure:"affirmative" yaml:"affirmative"`
	FallbackKey string `mapstructure:"fallback_key" yaml:"fallback_key"`
}

// ControlTitles names the controls each pipeline stage operates on.
type ControlTitles struct {
	EntryPoint      string `mapstructure:"entry_point" yaml:"entry_point"`
	KeyField        string `mapstructure:"key_field" yaml:"key_field"`
	SearchButton    string `mapstructure:"search_button" yaml:"search_button"`
	ResultRows      string `mapstructure:"result_rows" yaml:"result_rows"`
	SelectVisible   string `mapstructure:"select_visible" yaml:"select_visible"`
	SelectAvailable string `mapstructure:"select_available" yaml:"select_available"`
	Aggregate       string `mapstructure:"aggregate" yaml:"aggregate"`
	Submit          string `mapstructure:"submit" yaml:"submit"`
}

// TargetConfig describes one target application.
type TargetConfig struct {
	Name           string        `mapstructure:"name" yaml:"name"`
	TitlePattern   string        `mapstructure:"title_pattern" yaml:"title_pattern"`
	Backend        string        `mapstructure:"backend" yaml:"backend"` // "cdp"
	URL            string        `mapstructure:"url" yaml:"url"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" yaml:"acquire_timeout"`
	Dialogs        DialogTitles  `mapstructure:"dialogs" yaml:"dialogs"`
	Controls       ControlTitles `mapstructure:"controls" yaml:"controls"`

	// ArtifactPrefix names the timestamped stage output files this target's
	// stage writes; the next stage discovers its input by this prefix.
	ArtifactPrefix string `mapstructure:"artifact_prefix" yaml:"artifact_prefix"`

	// RequireHandoff enables the AwaitConfirmation stage: the item is not
	// complete until the downstream system's identifier has been collected.
	RequireHandoff bool   `mapstructure:"require_handoff" yaml:"require_handoff"`
	HandoffDir     string `mapstructure:"handoff_dir" yaml:"handoff_dir"`
}

// PipelineConfig tunes retry, polling and pacing behavior.
type PipelineConfig struct {
	SelectionMode  string        `mapstructure:"selection_mode" yaml:"selection_mode"` // "visible" or "available"
	StageAttempts  int           `mapstructure:"stage_attempts" yaml:"stage_attempts"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	LocateTimeout  time.Duration `mapstructure:"locate_timeout" yaml:"locate_timeout"` // per strategy
	VerifyTimeout  time.Duration `mapstructure:"verify_timeout" yaml:"verify_timeout"`
	DialogWait     time.Duration `mapstructure:"dialog_wait" yaml:"dialog_wait"`
	SubmitPolls    int           `mapstructure:"submit_polls" yaml:"submit_polls"`
	ItemsPerMinute float64       `mapstructure:"items_per_minute" yaml:"items_per_minute"`
}

// PathsConfig locates run inputs and outputs on disk.
type PathsConfig struct {
	OutputDir  string `mapstructure:"output_dir" yaml:"output_dir"`
	LedgerName string `mapstructure:"ledger_name" yaml:"ledger_name"`
}

// SetDefaults registers defaults on the given viper instance. Called before
// reading the config file so that absent keys resolve sensibly.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "lotpilot")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.navigation_timeout", 45*time.Second)

	v.SetDefault("pipeline.selection_mode", "available")
	v.SetDefault("pipeline.stage_attempts", 3)
	v.SetDefault("pipeline.poll_interval", 250*time.Millisecond)
	v.SetDefault("pipeline.locate_timeout", 3*time.Second)
	v.SetDefault("pipeline.verify_timeout", 5*time.Second)
	v.SetDefault("pipeline.dialog_wait", 10*time.Second)
	v.SetDefault("pipeline.submit_polls", 18)
	v.SetDefault("pipeline.items_per_minute", 30)

	v.SetDefault("paths.output_dir", "./runs")
	v.SetDefault("paths.ledger_name", "ledger.csv")
}

// Validate checks invariants that viper cannot express.
func (c *Config) Validate() error {
	switch c.Pipeline.SelectionMode {
	case "visible", "available":
	default:
		return fmt.Errorf("pipeline.selection_mode must be \"visible\" or \"available\", got %q", c.Pipeline.SelectionMode)
	}
	if c.Pipeline.StageAttempts < 1 {
		return fmt.Errorf("pipeline.stage_attempts must be at least 1")
	}
	if c.Pipeline.SubmitPolls < 1 {
		return fmt.Errorf("pipeline.submit_polls must be at least 1")
	}
	if len(c.Targets) == 0 {
		return fmt.Errorf("at least one target must be configured")
	}
	seen := make(map[string]bool, len(c.Targets))
	for i, t := range c.Targets {
		if t.Name == "" {
			return fmt.Errorf("targets[%d]: name is required", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("targets[%d]: duplicate target name %q", i, t.Name)
		}
		seen[t.Name] = true
		if t.TitlePattern == "" {
			return fmt.Errorf("target %q: title_pattern is required", t.Name)
		}
		if t.RequireHandoff && t.HandoffDir == "" {
			return fmt.Errorf("target %q: handoff_dir is required when require_handoff is set", t.Name)
		}
	}
	return nil
}

// Target returns the configuration for the named target.
func (c *Config) Target(name string) (TargetConfig, error) {
	for _, t := range c.Targets {
		if t.Name == name {
			return t, nil
		}
	}
	return TargetConfig{}, fmt.Errorf("target %q not found in configuration", name)
}

// expandPaths resolves "~" in configured paths.
func (c *Config) expandPaths() error {
	expanded, err := homedir.Expand(c.Paths.OutputDir)
	if err != nil {
		return fmt.Errorf("expanding paths.output_dir: %w", err)
	}
	c.Paths.OutputDir = expanded

	if c.Logger.LogFile != "" {
		if c.Logger.LogFile, err = homedir.Expand(c.Logger.LogFile); err != nil {
			return fmt.Errorf("expanding logger.log_file: %w", err)
		}
	}
	for i := range c.Targets {
		if c.Targets[i].HandoffDir == "" {
			continue
		}
		if c.Targets[i].HandoffDir, err = homedir.Expand(c.Targets[i].HandoffDir); err != nil {
			return fmt.Errorf("expanding target %q handoff_dir: %w", c.Targets[i].Name, err)
		}
	}
	return nil
}

// Load reads configuration from the given file (or ./config.yaml when empty)
// plus LOTPILOT_* environment variables, applies defaults and validates.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	SetDefaults(v)

	v.SetEnvPrefix("LOTPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and env vars carry the run.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
