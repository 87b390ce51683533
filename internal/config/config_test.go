package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)

	assert.Equal(t, "claude", cfg.AI.Reviewer)
	assert.Equal(t, "claude", cfg.AI.Reviewee)
	assert.Equal(t, 10, cfg.AI.MaxIterations)
	assert.Equal(t, 600, cfg.AI.TimeoutSecs)
	assert.False(t, cfg.AI.AutoPost)
	assert.Empty(t, cfg.AI.PromptDir)
	assert.Empty(t, cfg.AI.ReviewerAdditionalTools)
	assert.Empty(t, cfg.AI.RevieweeAdditionalTools)

	assert.Equal(t, "claude", cfg.AI.Claude.Command)
	assert.True(t, cfg.AI.Claude.SkipPermissions)
	assert.Equal(t, "codex", cfg.AI.Codex.Command)
	assert.Equal(t, "full-auto", cfg.AI.Codex.ApprovalMode)
}

func TestAIConfig_Timeout(t *testing.T) {
	cfg := AIConfig{TimeoutSecs: 90}
	assert.Equal(t, 90*time.Second, cfg.Timeout())
}

func TestSetDefaults_Load(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ViperOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()
	viper.Set("ai.reviewer", "codex")
	viper.Set("ai.max_iterations", 3)
	viper.Set("ai.auto_post", true)
	viper.Set("ai.reviewee_additional_tools", []string{"Bash(cargo test:*)"})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "codex", cfg.AI.Reviewer)
	assert.Equal(t, 3, cfg.AI.MaxIterations)
	assert.True(t, cfg.AI.AutoPost)
	assert.Equal(t, []string{"Bash(cargo test:*)"}, cfg.AI.RevieweeAdditionalTools)
}

func TestGet_FallsBackToDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	cfg := Get()
	require.NotNil(t, cfg)
	assert.Equal(t, "claude", cfg.AI.Reviewer)
	assert.Equal(t, 10, cfg.AI.MaxIterations)
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		assert.Equal(t, "/custom/config/octorus", ConfigDir())
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, err := os.UserHomeDir()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(home, ".config", "octorus"), ConfigDir())
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, "/custom/config/octorus/config.yaml", ConfigFile())
}

func TestIsValidBackend(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"claude", true},
		{"codex", true},
		{"", false},
		{"CLAUDE", false},
		{"gpt", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidBackend(tt.name))
		})
	}
}
