// Package config loads and validates octorus's configuration via
// viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete octorus configuration.
type Config struct {
	AI AIConfig `mapstructure:"ai"`
}

// AIConfig controls the rally's agent backends and loop behavior.
type AIConfig struct {
	// Reviewer and Reviewee select the backend identifier for each
	// agent role ("claude" or "codex").
	Reviewer string `mapstructure:"reviewer"`
	Reviewee string `mapstructure:"reviewee"`

	// MaxIterations is the rally's loop cap (default 10).
	MaxIterations int `mapstructure:"max_iterations"`

	// TimeoutSecs is the per-agent-call wall-clock timeout.
	TimeoutSecs int `mapstructure:"timeout_secs"`

	// AutoPost, when false, gates every forge post on a
	// PostConfirmResponse.
	AutoPost bool `mapstructure:"auto_post"`

	// PromptDir overrides the tier-2 prompt search path.
	PromptDir string `mapstructure:"prompt_dir"`

	// RevieweeAdditionalTools enriches the Reviewee's allowed-tool set
	// when the orchestrator is constructed. ReviewerAdditionalTools is
	// loaded but not applied to the Reviewer.
	ReviewerAdditionalTools []string `mapstructure:"reviewer_additional_tools"`
	RevieweeAdditionalTools []string `mapstructure:"reviewee_additional_tools"`

	Claude ClaudeBackendConfig `mapstructure:"claude"`
	Codex  CodexBackendConfig  `mapstructure:"codex"`
}

// ClaudeBackendConfig configures the Claude backend.
type ClaudeBackendConfig struct {
	Command         string `mapstructure:"command"`
	SkipPermissions bool   `mapstructure:"skip_permissions"`
}

// CodexBackendConfig configures the Codex backend.
type CodexBackendConfig struct {
	Command      string `mapstructure:"command"`
	ApprovalMode string `mapstructure:"approval_mode"`
}

// Timeout returns AI.TimeoutSecs as a time.Duration.
func (c *AIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		AI: AIConfig{
			Reviewer:      "claude",
			Reviewee:      "claude",
			MaxIterations: 10,
			TimeoutSecs:   600,
			AutoPost:      false,
			Claude: ClaudeBackendConfig{
				Command:         "claude",
				SkipPermissions: true,
			},
			Codex: CodexBackendConfig{
				Command:      "codex",
				ApprovalMode: "full-auto",
			},
		},
	}
}

// SetDefaults registers default values with viper so they apply even
// without a config file present.
func SetDefaults() {
	d := Default()

	viper.SetDefault("ai.reviewer", d.AI.Reviewer)
	viper.SetDefault("ai.reviewee", d.AI.Reviewee)
	viper.SetDefault("ai.max_iterations", d.AI.MaxIterations)
	viper.SetDefault("ai.timeout_secs", d.AI.TimeoutSecs)
	viper.SetDefault("ai.auto_post", d.AI.AutoPost)
	viper.SetDefault("ai.prompt_dir", d.AI.PromptDir)
	viper.SetDefault("ai.reviewer_additional_tools", d.AI.ReviewerAdditionalTools)
	viper.SetDefault("ai.reviewee_additional_tools", d.AI.RevieweeAdditionalTools)
	viper.SetDefault("ai.claude.command", d.AI.Claude.Command)
	viper.SetDefault("ai.claude.skip_permissions", d.AI.Claude.SkipPermissions)
	viper.SetDefault("ai.codex.command", d.AI.Codex.Command)
	viper.SetDefault("ai.codex.approval_mode", d.AI.Codex.ApprovalMode)
}

// Load reads the configuration from viper into a Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults if
// unmarshaling fails.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's octorus config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "octorus")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".octorus"
	}
	return filepath.Join(home, ".config", "octorus")
}

// ConfigFile returns the path to the config file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidBackends returns the list of recognized AI backend identifiers.
func ValidBackends() []string {
	return []string{"claude", "codex"}
}

// IsValidBackend reports whether name is a recognized backend identifier.
func IsValidBackend(name string) bool {
	return slices.Contains(ValidBackends(), name)
}
