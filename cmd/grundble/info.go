package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/grundble/internal/protocol"
	"github.com/srg/grundble/internal/pump"
	goble "github.com/srg/grundble/internal/pump/go-ble"
	"github.com/srg/grundble/pkg/config"
	"github.com/srg/grundble/scanner"
)

// infoCmd represents the info command
var infoCmd = &cobra.Command{
	Use:   "info <address>",
	Short: "Read device information from a pump",
	Long: `Connect to a pump, read its device information and print it.

Standard GATT device information (manufacturer, model, firmware) is read
directly; the device name and serial number are retrieved through the
proprietary command protocol. The connection is closed afterwards.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInfo,
}

var (
	infoFormat     string
	infoConfigPath string
	infoTimeout    time.Duration
)

func init() {
	infoCmd.Flags().StringVarP(&infoFormat, "format", "f", "table", "Output format (table, json)")
	infoCmd.Flags().StringVarP(&infoConfigPath, "config", "c", "", "Path to YAML config file")
	infoCmd.Flags().DurationVarP(&infoTimeout, "timeout", "t", 30*time.Second, "Connect timeout")
	infoCmd.Flags().BoolP("verbose", "V", false, "Verbose output")
}

// loadConfig merges the optional config file with command arguments. An
// address given on the command line wins over the file.
func loadConfig(path, address string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if address != "" {
		cfg.Address = address
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("no pump address given (argument or config file)")
	}
	return cfg, nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	if infoFormat != "table" && infoFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be table or json", infoFormat)
	}

	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	address := ""
	if len(args) > 0 {
		address = args[0]
	}
	cfg, err := loadConfig(infoConfigPath, address)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	opts := pump.DefaultOptions(cfg.Address)
	opts.ConnectTimeout = infoTimeout
	opts.CommandTimeout = cfg.CommandTimeout

	dialer := scanner.NewResolvingDialer(goble.NewDialer(logger), infoTimeout, logger)
	p := pump.NewPump(dialer, opts, logger)
	defer func() { _ = p.Disconnect() }()

	data, err := p.Refresh(cmd.Context())
	if err != nil {
		return err
	}

	if infoFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	}
	printDeviceData(cfg.Address, data)
	return nil
}

// infoFieldOrder lists the fields shown first, in display order. Anything
// else (raw_ payloads, unexpected fields) follows alphabetically.
var infoFieldOrder = []string{
	protocol.FieldDeviceName,
	protocol.FieldManufacturer,
	protocol.FieldModel,
	protocol.FieldSerialNumber,
	protocol.FieldFirmware,
	protocol.FieldFirmwareCustom,
	protocol.FieldHardwareVersion,
	protocol.FieldSoftwareVersion,
}

func printDeviceData(address string, data map[string]string) {
	header := color.New(color.FgCyan, color.Bold)
	label := color.New(color.FgGreen)
	raw := color.New(color.FgYellow)

	header.Printf("Pump %s\n", address)

	shown := make(map[string]bool)
	for _, field := range infoFieldOrder {
		if v, ok := data[field]; ok && v != "" {
			label.Printf("  %-18s", field)
			fmt.Println(v)
			shown[field] = true
		}
	}

	rest := make([]string, 0, len(data))
	for field := range data {
		if !shown[field] && field != protocol.FieldSerialPart1 && field != protocol.FieldSerialPart2 {
			rest = append(rest, field)
		}
	}
	sort.Strings(rest)
	for _, field := range rest {
		c := label
		if strings.HasPrefix(field, "raw_") {
			c = raw
		}
		c.Printf("  %-18s", field)
		fmt.Println(data[field])
	}

	if len(data) == 0 {
		fmt.Println("  (no data received)")
	}
}
