package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/thebtf/kitforge/internal/config"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "kitforge",
		Short: "Score drum samples and allocate them into role pools",
		Long: `kitforge reads feature documents extracted from drum samples, scores
each sample against the five kit roles (CORE, ACCENT, MOTION, FILL,
TEXTURE) and allocates the batch into per-role pools with minimum and
capacity repair.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the kitforge version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(Version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.AddCommand(assignCmd, watchCmd, explainCmd, versionCmd)
}

// loadConfig merges the config file over defaults and applies the
// configured log level globally.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(level)
	return cfg, nil
}
