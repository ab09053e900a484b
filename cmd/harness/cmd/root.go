package cmd

import (
	"fmt"
	"os"

	"split-harness-go/config"
	"split-harness-go/util/log"

	"github.com/spf13/cobra"
)

var (
	configPath string
	envFiles   []string
)

var rootCmd = &cobra.Command{
	Use:   "harness",
	Short: "Run plans over splits and check them against a reference query",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configPath != "" {
			if err := config.Decode(configPath); err != nil {
				return err
			}
		}
		if err := config.LoadSecrets(envFiles...); err != nil {
			return err
		}
		cfg := config.GetConfig()
		log.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format)
		return nil
	},
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func bailf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "yaml config file")
	rootCmd.PersistentFlags().StringSliceVarP(&envFiles, "env", "", nil, ".env files with object store credentials")
}
