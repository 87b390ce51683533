package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/octorus/octorus/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify octorus configuration",
	Long: `View or modify octorus configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  octorus config set ai.reviewer codex
  octorus config set ai.max_iterations 5
  octorus config set ai.auto_post true

Valid keys:
  ai.reviewer                 - Backend for the Reviewer agent ("claude" or "codex")
  ai.reviewee                 - Backend for the Reviewee agent ("claude" or "codex")
  ai.max_iterations           - Max rally iterations before giving up
  ai.timeout_secs             - Per-agent-call wall-clock timeout, in seconds
  ai.auto_post                - Post reviews/fixes without confirmation (true/false)
  ai.prompt_dir               - Override directory for prompt templates
  ai.claude.command           - Claude CLI executable name
  ai.claude.skip_permissions  - Pass --dangerously-skip-permissions (true/false)
  ai.codex.command            - Codex CLI executable name
  ai.codex.approval_mode      - Codex approval mode ("full-auto", "bypass", or "")`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ` + config.ConfigDir() + `/config.yaml with the default value of each ai option. The reviewer_additional_tools and reviewee_additional_tools lists are not written.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	fmt.Println("Current configuration:")
	fmt.Println()

	if viper.ConfigFileUsed() != "" {
		fmt.Printf("Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Printf("Config file: (none - using defaults)\n")
	}
	fmt.Println()

	fmt.Println("ai:")
	fmt.Printf("  reviewer: %s\n", cfg.AI.Reviewer)
	fmt.Printf("  reviewee: %s\n", cfg.AI.Reviewee)
	fmt.Printf("  max_iterations: %d\n", cfg.AI.MaxIterations)
	fmt.Printf("  timeout_secs: %d\n", cfg.AI.TimeoutSecs)
	fmt.Printf("  auto_post: %v\n", cfg.AI.AutoPost)
	fmt.Printf("  prompt_dir: %s\n", cfg.AI.PromptDir)
	fmt.Println("  claude:")
	fmt.Printf("    command: %s\n", cfg.AI.Claude.Command)
	fmt.Printf("    skip_permissions: %v\n", cfg.AI.Claude.SkipPermissions)
	fmt.Println("  codex:")
	fmt.Printf("    command: %s\n", cfg.AI.Codex.Command)
	fmt.Printf("    approval_mode: %s\n", cfg.AI.Codex.ApprovalMode)

	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	validKeys := map[string]string{
		"ai.reviewer":                "backend",
		"ai.reviewee":                "backend",
		"ai.max_iterations":          "int",
		"ai.timeout_secs":            "int",
		"ai.auto_post":               "bool",
		"ai.prompt_dir":              "string",
		"ai.claude.command":          "string",
		"ai.claude.skip_permissions": "bool",
		"ai.codex.command":           "string",
		"ai.codex.approval_mode":     "string",
	}

	keyType, ok := validKeys[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s\nRun 'octorus config set --help' to see valid keys", key)
	}

	var typedValue interface{}
	switch keyType {
	case "backend":
		if !config.IsValidBackend(value) {
			return fmt.Errorf("invalid value for %s: %s\nValid options: %s",
				key, value, strings.Join(config.ValidBackends(), ", "))
		}
		typedValue = value
	case "string":
		typedValue = value
	case "bool":
		if value != "true" && value != "false" {
			return fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		typedValue = value == "true"
	case "int":
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected integer", key)
		}
		if intVal < 0 {
			return fmt.Errorf("invalid value for %s: must be non-negative", key)
		}
		typedValue = intVal
	}

	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	viper.Set(key, typedValue)

	configFile := config.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Set %s = %v\n", key, typedValue)
	fmt.Printf("Config saved to %s\n", configFile)

	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'octorus config set' to modify values", configFile)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configContent := `# octorus configuration

ai:
  # Backend for each agent role: "claude" or "codex"
  reviewer: claude
  reviewee: claude

  # Maximum rally iterations before giving up
  max_iterations: 10

  # Per-agent-call wall-clock timeout, in seconds
  timeout_secs: 600

  # Post reviews and fix summaries without a confirmation prompt
  auto_post: false

  # Override directory for prompt templates (relative paths resolve
  # against the project root)
  prompt_dir: ""

  claude:
    command: claude
    skip_permissions: true

  codex:
    command: codex
    approval_mode: full-auto
`

	if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("Created config file at %s\n", configFile)
	fmt.Println("Edit this file to customize octorus's behavior.")

	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Printf("Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Printf("Default path: %s (not created)\n", configFile)
	}

	fmt.Println("\nSearch paths:")
	fmt.Printf("  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Printf("  2. ./config.yaml (current directory)\n")
	fmt.Println("\nEnvironment variables: OCTORUS_* (e.g., OCTORUS_AI_MAX_ITERATIONS)")

	return nil
}
