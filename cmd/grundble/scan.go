package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/grundble/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

Grundfos pumps advertise the 9d410018/9d410019 service UUIDs; any other
BLE device in range is listed as well.`,
	RunE: runScan,
}

var (
	scanDuration    time.Duration
	scanFormat      string
	scanNoDuplicate bool
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 10*time.Second, "Scan duration")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().BoolVar(&scanNoDuplicate, "no-duplicates", true, "Filter duplicate advertisements")
	scanCmd.Flags().BoolP("verbose", "V", false, "Verbose output")
}

func runScan(cmd *cobra.Command, args []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be table or json", scanFormat)
	}

	// Configure logger based on --log-level and --verbose flags
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Listen for Ctrl+C to cancel
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, cancelling scan...")
		cancel()
	}()

	s := scanner.NewScanner(logger)
	devices, err := s.Scan(ctx, &scanner.ScanOptions{
		Duration:        scanDuration,
		DuplicateFilter: scanNoDuplicate,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if scanFormat == "json" {
		return displayDevicesJSON(devices)
	}
	return displayDevicesTable(devices)
}

func displayDevicesTable(devices map[string]*scanner.DeviceInfo) error {
	if len(devices) == 0 {
		fmt.Println("No devices discovered")
		return nil
	}

	list := make([]*scanner.DeviceInfo, 0, len(devices))
	for _, d := range devices {
		list = append(list, d)
	}
	// Strongest signal first
	sort.Slice(list, func(i, j int) bool {
		return list[i].RSSI > list[j].RSSI
	})

	var base io.Writer = os.Stdout
	w := tabwriter.NewWriter(base, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tCONNECTABLE\tSERVICES")
	fmt.Fprintln(w, strings.Repeat("-", 80))

	for _, d := range list {
		name := d.Name
		if name == "" {
			name = "(unknown)"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		services := strings.Join(d.Services, ",")
		if len(services) > 30 {
			services = services[:27] + "..."
		}

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%t\t%s\n",
			name, d.Address, d.RSSI, d.Connectable, services)
	}

	return w.Flush()
}

func displayDevicesJSON(devices map[string]*scanner.DeviceInfo) error {
	list := make([]*scanner.DeviceInfo, 0, len(devices))
	for _, d := range devices {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Address < list[j].Address
	})

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(list)
}
