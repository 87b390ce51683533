// Package cmd provides octorus's CLI command tree: rally (run one
// two-agent review cycle against a PR or a local working tree) and
// config (inspect/edit the persisted viper configuration).
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/octorus/octorus/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "octorus",
	Short: "Two-agent PR review rally orchestrator",
	Long: `octorus runs a Reviewer and a Reviewee agent against a pull request
(or a local working tree) in a loop: the Reviewer critiques, the
Reviewee fixes, and the cycle repeats until the Reviewer approves, the
rally hits its iteration cap, or the user steps in.`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is "+config.ConfigDir()+"/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("OCTORUS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	_ = viper.ReadInConfig()
}
