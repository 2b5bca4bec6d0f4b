package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mlopez/jobquest/config"
	"github.com/mlopez/jobquest/logger"
)

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "jobquest",
		Short:         "Automated job application pipeline",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file path (default ~/.jobquest/config.yaml)")

	cmd.AddCommand(newApplyCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))
	cmd.AddCommand(newProvidersCommand(opts))
	return cmd
}

// setup loads the config and initializes the console logger.
func (o *rootOptions) setup() (*config.Config, zerolog.Logger, error) {
	path := o.configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, zerolog.Logger{}, err
	}
	log, err := logger.InitWithOptions("", true)
	if err != nil {
		return nil, zerolog.Logger{}, err
	}
	return cfg, log, nil
}
