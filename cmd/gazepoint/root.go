package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teslashibe/gazepoint/internal/config"
	"github.com/teslashibe/gazepoint/internal/log"
)

// Version is set at build time with
// -ldflags "-X main.Version=1.2.3".
var Version = "dev"

// app carries state shared by the subcommands once the root has loaded
// the configuration.
type app struct {
	cfgFile  string
	logLevel string

	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "gazepoint",
		Short:         "Gaze-offset pointer with dwell selection",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./gazepoint.yaml)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(
		newRunCmd(a),
		newCalibrateCmd(a),
		newEvaluateCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup loads configuration and initializes logging before any subcommand
// runs.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg

	log.InitWithOptions(cfg.Log.Options())
	log.Debug("configuration loaded",
		"command", cmd.Name(),
		"version", Version,
		"screen_width", cfg.Screen.Width,
		"screen_height", cfg.Screen.Height,
		"sensor", cfg.Sensor.Source)
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// Skips config loading.
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}
