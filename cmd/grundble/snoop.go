package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/srg/grundble/internal/btsnoop"
)

// snoopCmd represents the snoop command
var snoopCmd = &cobra.Command{
	Use:   "snoop <btsnoop_hci.log>",
	Short: "Analyze a btsnoop HCI capture",
	Long: `Parse an Android btsnoop_hci.log capture of pump traffic and summarize
the ATT-level exchanges.

Captured notification values are replayed through the same frame codec
the live client uses, so the summary shows which device fields the
current protocol knowledge can recover from the capture. Useful when
reverse-engineering the remaining (numeric) parts of the protocol.`,
	Args: cobra.ExactArgs(1),
	RunE: runSnoop,
}

var snoopShowEvents bool

func init() {
	snoopCmd.Flags().BoolVarP(&snoopShowEvents, "events", "e", false, "List every ATT event")
	snoopCmd.Flags().BoolP("verbose", "V", false, "Verbose output")
}

func runSnoop(cmd *cobra.Command, args []string) error {
	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open capture: %w", err)
	}
	defer f.Close()

	capture, err := btsnoop.Parse(f)
	if err != nil {
		return err
	}

	summary := capture.Analyze(logger)
	return printSummary(os.Stdout, summary)
}

func printSummary(out io.Writer, s *btsnoop.Summary) error {
	header := color.New(color.FgCyan, color.Bold)

	header.Fprintln(out, "Capture summary")
	fmt.Fprintf(out, "  packets:        %d\n", s.Packets)
	if s.DeviceAddress != "" {
		fmt.Fprintf(out, "  device address: %s\n", s.DeviceAddress)
	}
	fmt.Fprintf(out, "  writes:         %d\n", s.Count(btsnoop.EventWrite))
	fmt.Fprintf(out, "  notifications:  %d\n", s.Count(btsnoop.EventNotification))
	fmt.Fprintf(out, "  reads:          %d\n", s.Count(btsnoop.EventReadRequest))

	if len(s.HandleTraffic) > 0 {
		handles := make([]int, 0, len(s.HandleTraffic))
		for h := range s.HandleTraffic {
			handles = append(handles, int(h))
		}
		sort.Ints(handles)

		header.Fprintln(out, "Traffic per handle")
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  HANDLE\tPACKETS")
		for _, h := range handles {
			fmt.Fprintf(w, "  0x%04x\t%d\n", h, s.HandleTraffic[uint16(h)])
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	if len(s.Decoded) > 0 {
		header.Fprintln(out, "Decoded device fields")
		fields := make([]string, 0, len(s.Decoded))
		for f := range s.Decoded {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			fmt.Fprintf(out, "  %-18s%s\n", f, s.Decoded[f])
		}
	}

	if snoopShowEvents && len(s.Events) > 0 {
		header.Fprintln(out, "ATT events")
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  RECORD\tDIR\tTYPE\tHANDLE\tVALUE")
		for _, e := range s.Events {
			dir := "recv"
			if e.Sent {
				dir = "sent"
			}
			handle := ""
			if e.Handle != 0 {
				handle = fmt.Sprintf("0x%04x", e.Handle)
			}
			value := hex.EncodeToString(e.Value)
			if len(value) > 40 {
				value = value[:37] + "..."
			}
			fmt.Fprintf(w, "  %d\t%s\t%s\t%s\t%s\n",
				e.Record, dir, strings.ToUpper(e.Type.String()), handle, value)
		}
		return w.Flush()
	}

	return nil
}
