package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/gousb"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ardnew/f0usb/pkg"
	"github.com/ardnew/f0usb/pkg/usbid"
)

var (
	probeVID     uint16
	probePID     uint16
	probeCount   int
	probeSize    int
	probeTimeout time.Duration
	probeList    bool
	probeIDs     string
)

// ProbeResult summarizes a loopback run.
type ProbeResult struct {
	Device   string        `json:"device"`
	OutEP    int           `json:"out_endpoint"`
	InEP     int           `json:"in_endpoint"`
	Packets  int           `json:"packets"`
	Bytes    int           `json:"bytes"`
	Elapsed  time.Duration `json:"elapsed_ns"`
	Rate     float64       `json:"bytes_per_second"`
	Mismatch int           `json:"first_mismatch"`
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Loop data through a device's bulk endpoints",
	Long: `Open a USB device running loopback firmware, write a pattern to its bulk
OUT endpoint while reading the bulk IN endpoint, and check that every byte
comes back in order.

Examples:
  f0usb probe --list
  f0usb probe --vid 0x0483 --pid 0x5740 --count 256
  f0usb probe --json --size 63`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().Uint16Var(&probeVID, "vid", 0x0483, "vendor ID")
	probeCmd.Flags().Uint16Var(&probePID, "pid", 0x5740, "product ID")
	probeCmd.Flags().IntVarP(&probeCount, "count", "n", 64, "packets to send")
	probeCmd.Flags().IntVar(&probeSize, "size", 64, "bytes per packet")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 5*time.Second, "limit for the whole run")
	probeCmd.Flags().BoolVar(&probeList, "list", false, "list attached devices and exit")
	probeCmd.Flags().StringVar(&probeIDs, "usb-ids", "", "path to usb.ids (default: system locations)")
}

func runProbe(cmd *cobra.Command, args []string) error {
	var db *usbid.Database
	if probeIDs != "" {
		db = usbid.New(probeIDs)
	} else {
		db = usbid.New()
	}
	if err := db.Load(); err != nil {
		pkg.LogDebug(pkg.ComponentProbe, "no usb.ids", "error", err)
	}

	usbctx := gousb.NewContext()
	defer usbctx.Close()

	if probeList {
		return listDevices(cmd.OutOrStdout(), usbctx, db)
	}
	if probeSize <= 0 || probeSize > 64 || probeCount <= 0 {
		return fmt.Errorf("--size must be 1-64 and --count positive: %w", pkg.ErrInvalidParameter)
	}

	name := db.Describe(probeVID, probePID)
	dev, err := usbctx.OpenDeviceWithVIDPID(gousb.ID(probeVID), gousb.ID(probePID))
	if err != nil {
		return fmt.Errorf("USB error: %w", err)
	}
	if dev == nil {
		return fmt.Errorf("%s: device not found: %w", name, pkg.ErrNotRunning)
	}
	defer dev.Close()

	// Not supported on every platform.
	_ = dev.SetAutoDetach(true)

	in, out, done, err := claimBulkPair(dev)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	defer done()

	pkg.LogInfo(pkg.ComponentProbe, "loopback",
		"device", name,
		"out", out.Desc.Number,
		"in", in.Desc.Number,
		"packets", probeCount)

	ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
	defer cancel()

	start := time.Now()
	sent := pattern(probeCount * probeSize)
	got, err := loopback(ctx, out, in, sent, probeSize, in.Desc.MaxPacketSize)
	elapsed := time.Since(start)

	res := ProbeResult{
		Device:   name,
		OutEP:    out.Desc.Number,
		InEP:     in.Desc.Number,
		Packets:  probeCount,
		Bytes:    len(got),
		Elapsed:  elapsed,
		Mismatch: mismatch(sent, got),
	}
	if elapsed > 0 {
		res.Rate = float64(len(got)) / elapsed.Seconds()
	}

	if outputJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else {
		printProbe(cmd.OutOrStdout(), res)
	}

	if err != nil {
		return err
	}
	if res.Mismatch >= 0 {
		return fmt.Errorf("byte %d differs: %w", res.Mismatch, pkg.ErrMismatch)
	}
	return nil
}

// claimBulkPair claims the first interface of configuration 1 that has
// both a bulk IN and a bulk OUT endpoint.
func claimBulkPair(dev *gousb.Device) (*gousb.InEndpoint, *gousb.OutEndpoint, func(), error) {
	cfg, err := dev.Config(1)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to get config: %w", err)
	}

	for _, desc := range cfg.Desc.Interfaces {
		if len(desc.AltSettings) == 0 {
			continue
		}
		inNum, outNum := bulkEndpoints(desc.AltSettings[0])
		if inNum < 0 || outNum < 0 {
			continue
		}

		intf, err := cfg.Interface(desc.Number, 0)
		if err != nil {
			cfg.Close()
			return nil, nil, nil, fmt.Errorf("failed to claim interface %d: %w", desc.Number, err)
		}
		done := func() {
			intf.Close()
			cfg.Close()
		}
		in, err := intf.InEndpoint(inNum)
		if err != nil {
			done()
			return nil, nil, nil, fmt.Errorf("failed to open IN endpoint: %w", err)
		}
		out, err := intf.OutEndpoint(outNum)
		if err != nil {
			done()
			return nil, nil, nil, fmt.Errorf("failed to open OUT endpoint: %w", err)
		}
		return in, out, done, nil
	}

	cfg.Close()
	return nil, nil, nil, fmt.Errorf("no interface with a bulk endpoint pair: %w", pkg.ErrInvalidEndpoint)
}

func bulkEndpoints(alt gousb.InterfaceSetting) (in, out int) {
	in, out = -1, -1
	for _, ep := range alt.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch ep.Direction {
		case gousb.EndpointDirectionIn:
			if in < 0 {
				in = ep.Number
			}
		case gousb.EndpointDirectionOut:
			if out < 0 {
				out = ep.Number
			}
		}
	}
	return in, out
}

type packetWriter interface {
	WriteContext(ctx context.Context, buf []byte) (int, error)
}

type packetReader interface {
	ReadContext(ctx context.Context, buf []byte) (int, error)
}

// loopback writes sent to w in size-byte packets while concurrently reading
// from r until as many bytes have come back. It returns what was read.
func loopback(ctx context.Context, w packetWriter, r packetReader, sent []byte, size, maxPacket int) ([]byte, error) {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for off := 0; off < len(sent); off += size {
			end := min(off+size, len(sent))
			if _, err := w.WriteContext(gctx, sent[off:end]); err != nil {
				return fmt.Errorf("write at %d: %w", off, err)
			}
		}
		return nil
	})

	got := make([]byte, 0, len(sent))
	g.Go(func() error {
		buf := make([]byte, max(maxPacket, size))
		for len(got) < len(sent) {
			n, err := r.ReadContext(gctx, buf)
			if err != nil {
				return fmt.Errorf("read at %d: %w", len(got), err)
			}
			got = append(got, buf[:n]...)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", pkg.ErrTimeout, err)
		}
		return got, err
	}
	return got, nil
}

// pattern returns n bytes whose period is longer than a packet, so a
// dropped or duplicated packet shows up as a mismatch.
func pattern(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i*7 + i/251)
	}
	return p
}

// mismatch returns the index of the first difference between want and got,
// counting a short got as a difference, or -1.
func mismatch(want, got []byte) int {
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			return i
		}
	}
	if len(got) > len(want) {
		return len(want)
	}
	return -1
}

func printProbe(w io.Writer, r ProbeResult) {
	fmt.Fprintf(w, "device   %s\n", r.Device)
	fmt.Fprintf(w, "out/in   ep%d / ep%d\n", r.OutEP, r.InEP)
	fmt.Fprintf(w, "bytes    %d in %d packets\n", r.Bytes, r.Packets)
	fmt.Fprintf(w, "elapsed  %s (%.0f B/s)\n", r.Elapsed.Round(time.Microsecond), r.Rate)
	if r.Mismatch >= 0 {
		fmt.Fprintf(w, "FAIL     first mismatch at byte %d\n", r.Mismatch)
	} else {
		fmt.Fprintln(w, "OK")
	}
}

func listDevices(w io.Writer, ctx *gousb.Context, db *usbid.Database) error {
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		fmt.Fprintf(w, "%03d.%03d  %s  %s\n",
			desc.Bus, desc.Address, desc.Speed,
			db.Describe(uint16(desc.Vendor), uint16(desc.Product)))
		return false
	})
	for _, d := range devs {
		d.Close()
	}
	if err != nil && !errors.Is(err, gousb.ErrorAccess) {
		return fmt.Errorf("USB error: %w", err)
	}
	return nil
}
