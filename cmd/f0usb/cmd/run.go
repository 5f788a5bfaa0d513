package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ardnew/f0usb/script"
)

var (
	runHex     string
	runTimeout time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run SCRIPT...",
	Short: "Run scenarios against a simulated controller",
	Long: `Run one or more scenario files in order against a single simulated
target and print a transcript. The run stops at the first failed command.

Examples:
  f0usb run script/testdata/loopback.f0s
  f0usb run --hex pma.hex enumerate.f0s stream.f0s`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runHex, "hex", "",
		"write packet memory to this Intel HEX file after the run")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", script.DefaultTimeout,
		"limit for each blocking stream command")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := controllerConfig()
	if err != nil {
		return err
	}
	parser, err := script.NewParser()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	runner, err := script.NewRunner(cfg, out)
	if err != nil {
		return err
	}
	runner.Timeout = runTimeout

	var runErr error
	for _, path := range args {
		s, err := parser.ParseFile(path)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "== %s\n", path)
		if runErr = runner.Run(cmd.Context(), s); runErr != nil {
			break
		}
	}

	if runHex != "" {
		f, err := os.Create(runHex)
		if err != nil {
			return err
		}
		if err := writeHex(f, PacketMemoryBase, runner.Controller().Arena().Bytes(), 16); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return runErr
}
