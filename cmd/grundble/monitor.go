package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/grundble/internal/pump"
	goble "github.com/srg/grundble/internal/pump/go-ble"
	"github.com/srg/grundble/scanner"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor <address>",
	Short: "Poll a pump periodically",
	Long: `Connect to a pump and refresh its data on a fixed interval until
interrupted.

The connection is kept open between polls; if the pump drops the link,
the next poll reconnects with backoff. A failed poll prints a warning
and keeps the last known data.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMonitor,
}

var (
	monitorInterval   time.Duration
	monitorConfigPath string
)

func init() {
	monitorCmd.Flags().DurationVarP(&monitorInterval, "interval", "i", 0, "Poll interval (default from config, 60s)")
	monitorCmd.Flags().StringVarP(&monitorConfigPath, "config", "c", "", "Path to YAML config file")
	monitorCmd.Flags().BoolP("verbose", "V", false, "Verbose output")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	address := ""
	if len(args) > 0 {
		address = args[0]
	}
	cfg, err := loadConfig(monitorConfigPath, address)
	if err != nil {
		return err
	}

	interval := cfg.PollInterval
	if monitorInterval > 0 {
		interval = monitorInterval
	}

	cmd.SilenceUsage = true

	opts := pump.DefaultOptions(cfg.Address)
	opts.ConnectTimeout = cfg.ConnectTimeout
	opts.CommandTimeout = cfg.CommandTimeout

	dialer := scanner.NewResolvingDialer(goble.NewDialer(logger), cfg.ConnectTimeout, logger)
	p := pump.NewPump(dialer, opts, logger)
	defer func() { _ = p.Disconnect() }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, stopping monitor...")
		cancel()
	}()

	fmt.Printf("Monitoring pump %s every %s (Ctrl+C to stop)\n", cfg.Address, interval)

	// First poll immediately, then on the ticker
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	warn := color.New(color.FgYellow)
	for {
		data, err := p.Refresh(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return context.Canceled
			}
			warn.Printf("[%s] poll failed: %s\n",
				time.Now().Format(time.RFC3339), FormatUserError(err))
		} else {
			fmt.Printf("[%s] connected=%t\n", time.Now().Format(time.RFC3339), p.IsConnected())
			printDeviceData(cfg.Address, data)
		}

		select {
		case <-ctx.Done():
			return context.Canceled
		case <-ticker.C:
		}
	}
}
