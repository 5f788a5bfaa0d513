package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ardnew/f0usb/script"
	"github.com/ardnew/f0usb/usb"
)

var layoutInit bool

// LayoutInfo is the packet memory and endpoint layout of a controller.
type LayoutInfo struct {
	Size      int            `json:"size"`
	Used      int            `json:"used"`
	Regions   []RegionInfo   `json:"regions"`
	Endpoints []EndpointInfo `json:"endpoints"`
}

// RegionInfo is one allocated packet memory region.
type RegionInfo struct {
	Name   string `json:"name"`
	Offset uint16 `json:"offset"`
	Size   int    `json:"size"`
}

// EndpointInfo describes one endpoint slot.
type EndpointInfo struct {
	Slot    int    `json:"slot"`
	Address uint8  `json:"address"`
	Kind    string `json:"kind"`
	MaxSize int    `json:"max_size"`
	Buffer  uint16 `json:"buffer"`
	EPR     string `json:"epr,omitempty"`
	StatTX  string `json:"stat_tx,omitempty"`
	StatRX  string `json:"stat_rx,omitempty"`
}

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Show the packet memory and endpoint layout",
	Long: `Allocate packet memory for the configured endpoint slots and print the
resulting regions. With --init the controller is initialized on a
simulated peripheral and the endpoint registers are shown as well.

Examples:
  f0usb layout
  f0usb layout --init --json
  f0usb layout --ep 2=output:1 --ep 3=input:1`,
	Args: cobra.NoArgs,
	RunE: runLayout,
}

func init() {
	rootCmd.AddCommand(layoutCmd)

	layoutCmd.Flags().BoolVar(&layoutInit, "init", false,
		"initialize the controller and show endpoint registers")
}

func runLayout(cmd *cobra.Command, args []string) error {
	cfg, err := controllerConfig()
	if err != nil {
		return err
	}
	r, err := script.NewRunner(cfg, io.Discard)
	if err != nil {
		return err
	}
	ctrl := r.Controller()
	if layoutInit {
		if err := ctrl.Init(); err != nil {
			return fmt.Errorf("init: %w", err)
		}
	}

	info := buildLayoutInfo(ctrl, layoutInit)
	if outputJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	return printLayout(cmd.OutOrStdout(), info)
}

func buildLayoutInfo(ctrl *usb.Controller, registers bool) LayoutInfo {
	info := LayoutInfo{Size: ctrl.Arena().Size()}
	for _, reg := range ctrl.Layout() {
		info.Regions = append(info.Regions, RegionInfo{
			Name:   reg.Name,
			Offset: uint16(reg.Offset),
			Size:   reg.Size,
		})
		info.Used = max(info.Used, int(reg.Offset)+reg.Size)
	}
	for i := range usb.NumEndpoints {
		ep := ctrl.Endpoint(i)
		ei := EndpointInfo{
			Slot:    i,
			Address: ep.Address(),
			Kind:    ep.Kind().String(),
			MaxSize: ep.MaxSize(),
			Buffer:  uint16(ep.Buffer()),
		}
		if registers {
			tx, rx := ep.Stat()
			ei.EPR = fmt.Sprintf("%#04x", uint32(ep.Snapshot()))
			ei.StatTX, ei.StatRX = tx.String(), rx.String()
		}
		info.Endpoints = append(info.Endpoints, ei)
	}
	return info
}

func printLayout(out io.Writer, info LayoutInfo) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REGION\tOFFSET\tSIZE")
	for _, r := range info.Regions {
		fmt.Fprintf(w, "%s\t%#04x\t%d\n", r.Name, r.Offset, r.Size)
	}
	fmt.Fprintf(w, "\nused %d of %d bytes\n\n", info.Used, info.Size)

	fmt.Fprintln(w, "SLOT\tADDR\tKIND\tMAX\tBUFFER\tEPR\tTX\tRX")
	for _, e := range info.Endpoints {
		fmt.Fprintf(w, "%d\t%d\t%s\t%d\t%#04x\t%s\t%s\t%s\n",
			e.Slot, e.Address, e.Kind, e.MaxSize, e.Buffer,
			orDash(e.EPR), orDash(e.StatTX), orDash(e.StatRX))
	}
	return w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
