package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"example.com/healthsync/internal/app"
	"example.com/healthsync/internal/config"
	"example.com/healthsync/internal/logging"
)

// cli holds state shared by every subcommand.
type cli struct {
	cfgPath string
	cfg     config.Config
	sink    *logging.Sink
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "healthsync",
		Short: "Incrementally sync local health samples to a remote server",
		Long: `healthsync walks calendar-month windows for every configured activity,
uploads samples newer than the last checkpoint and records progress so an
interrupted sync resumes where it stopped.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.loadConfig()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.sink != nil {
				_ = c.sink.Close()
			}
		},
	}
	root.PersistentFlags().StringVar(&c.cfgPath, "config", strings.TrimSpace(os.Getenv("HEALTHSYNC_CONFIG")),
		"config file (YAML, TOML or JSON); environment variables take precedence")

	root.AddCommand(
		newRunCmd(c),
		newStatusCmd(c),
		newEpochsCmd(c),
		newImportCmd(c),
		newTokenCmd(c),
	)
	return root
}

func (c *cli) loadConfig() error {
	v := viper.New()
	if c.cfgPath != "" {
		v.SetConfigFile(c.cfgPath)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", c.cfgPath, err)
		}
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.sink = logging.NewSink(cfg.LogFile)
	return nil
}

func (c *cli) open(cmd *cobra.Command) (*app.App, error) {
	return app.New(cmd.Context(), c.cfg, c.sink)
}
