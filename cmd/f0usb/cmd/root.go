package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ardnew/f0usb/pkg"
	"github.com/ardnew/f0usb/pkg/prof"
	"github.com/ardnew/f0usb/usb"
)

var (
	// Global flags
	logLevel      string
	outputJSON    bool
	endpointSpecs []string
	cpuProfile    string
	memProfile    string

	profiling *prof.Session
)

var rootCmd = &cobra.Command{
	Use:   "f0usb",
	Short: "STM32F0 USB device controller tools",
	Long: `Tools for the STM32F0 USB full-speed device controller driver.

The layout, run and dump commands drive the controller against a simulated
peripheral and bus host. The probe command talks to real hardware running
loopback firmware.

Examples:
  f0usb layout                                  # Default packet memory layout
  f0usb layout --ep 1=output:2 --ep 3=input:3   # Custom endpoint slots
  f0usb run script/testdata/loopback.f0s        # Run a scenario
  f0usb dump -o pma.hex                         # Packet memory after init
  f0usb probe --vid 0x0483 --pid 0x5740         # Loopback over real USB`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := pkg.ParseLogLevel(logLevel)
		if err != nil {
			return err
		}
		pkg.SetLogLevel(level)
		if outputJSON {
			pkg.SetLogFormat(pkg.LogFormatJSON)
		} else {
			pkg.SetLogFormat(pkg.LogFormatText)
		}
		profiling, err = prof.Start(cpuProfile, memProfile)
		return err
	},
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := rootCmd.ExecuteContext(ctx)
	if perr := profiling.Stop(); err == nil {
		err = perr
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn",
		"minimum log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false,
		"JSON logs and output")
	rootCmd.PersistentFlags().StringSliceVar(&endpointSpecs, "ep", nil,
		"endpoint slot override SLOT=KIND:ADDR[:CLASS], e.g. 1=interrupt:1")
	rootCmd.PersistentFlags().StringVar(&cpuProfile, "cpuprofile", "",
		"write a CPU profile to this file")
	rootCmd.PersistentFlags().StringVar(&memProfile, "memprofile", "",
		"write a heap profile to this file on exit")
}

// controllerConfig returns the default layout with --ep overrides applied.
func controllerConfig() (usb.Config, error) {
	cfg := usb.DefaultConfig()
	for _, spec := range endpointSpecs {
		slot, ep, err := parseEndpoint(spec)
		if err != nil {
			return cfg, err
		}
		cfg.Endpoints[slot] = ep
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("--ep: %w", err)
	}
	return cfg, nil
}

// parseEndpoint parses SLOT=KIND:ADDR[:CLASS]. The class defaults to the
// one matching the kind.
func parseEndpoint(spec string) (int, usb.EndpointConfig, error) {
	var ep usb.EndpointConfig

	slotText, rest, ok := strings.Cut(spec, "=")
	if !ok {
		return 0, ep, fmt.Errorf("endpoint %q: want SLOT=KIND:ADDR[:CLASS]: %w", spec, pkg.ErrInvalidParameter)
	}
	slot, err := strconv.Atoi(slotText)
	if err != nil || slot < 0 || slot >= usb.NumEndpoints {
		return 0, ep, fmt.Errorf("endpoint %q: slot %q: %w", spec, slotText, pkg.ErrInvalidEndpoint)
	}

	parts := strings.Split(rest, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, ep, fmt.Errorf("endpoint %q: want KIND:ADDR[:CLASS]: %w", spec, pkg.ErrInvalidParameter)
	}
	if ep.Kind, err = usb.ParseKind(parts[0]); err != nil {
		return 0, ep, fmt.Errorf("endpoint %q: %w", spec, err)
	}
	addr, err := strconv.ParseUint(parts[1], 0, 4)
	if err != nil {
		return 0, ep, fmt.Errorf("endpoint %q: address %q: %w", spec, parts[1], pkg.ErrInvalidParameter)
	}
	ep.Address = uint8(addr)

	switch ep.Kind {
	case usb.KindControl:
		ep.Class = usb.ClassControl
	case usb.KindInterrupt:
		ep.Class = usb.ClassInterrupt
	default:
		ep.Class = usb.ClassBulk
	}
	if len(parts) == 3 {
		if ep.Class, err = usb.ParseClass(parts[2]); err != nil {
			return 0, ep, fmt.Errorf("endpoint %q: %w", spec, err)
		}
	}
	return slot, ep, nil
}
