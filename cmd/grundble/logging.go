package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/grundble/pkg/config"
)

// configureLogger resolves the logging flags into a logger built through
// pkg/config, so flag-driven and config-file-driven logging share one
// construction path. --log-level takes precedence over the verbose flag;
// with neither set, only panics are emitted.
func configureLogger(cmd *cobra.Command, verboseFlagName string) (*logrus.Logger, error) {
	level := "panic"

	if s, _ := cmd.Flags().GetString("log-level"); s != "" {
		if _, err := logrus.ParseLevel(s); err != nil {
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", s)
		}
		level = s
	} else if verbose, _ := cmd.Flags().GetBool(verboseFlagName); verbose {
		level = "debug"
	}

	cfg := config.DefaultConfig()
	cfg.LogLevel = level
	return cfg.NewLogger(), nil
}
