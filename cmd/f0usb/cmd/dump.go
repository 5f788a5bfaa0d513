package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ardnew/f0usb/script"
)

var (
	dumpOutput string
	dumpScript string
	dumpBase   uint32
	dumpLine   int
)

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Write the packet memory image as Intel HEX",
	Long: `Initialize a controller on a simulated peripheral and write its packet
memory as Intel HEX. With --script the scenario runs instead of the plain
initialization, and the image reflects the memory when it ends.

Examples:
  f0usb dump
  f0usb dump -o pma.hex --base 0
  f0usb dump --script script/testdata/loopback.f0s`,
	Args: cobra.NoArgs,
	RunE: runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().StringVarP(&dumpOutput, "output", "o", "",
		"output file (default stdout)")
	dumpCmd.Flags().StringVar(&dumpScript, "script", "",
		"scenario to run before dumping")
	dumpCmd.Flags().Uint32Var(&dumpBase, "base", PacketMemoryBase,
		"load address of the image")
	dumpCmd.Flags().IntVar(&dumpLine, "line", 16,
		"data bytes per record")
}

func runDump(cmd *cobra.Command, args []string) error {
	cfg, err := controllerConfig()
	if err != nil {
		return err
	}
	runner, err := script.NewRunner(cfg, io.Discard)
	if err != nil {
		return err
	}

	if dumpScript == "" {
		if err := runner.Controller().Init(); err != nil {
			return err
		}
	} else {
		parser, err := script.NewParser()
		if err != nil {
			return err
		}
		s, err := parser.ParseFile(dumpScript)
		if err != nil {
			return err
		}
		if err := runner.Run(cmd.Context(), s); err != nil {
			return err
		}
	}

	data := runner.Controller().Arena().Bytes()
	if dumpOutput == "" {
		return writeHex(cmd.OutOrStdout(), dumpBase, data, dumpLine)
	}

	f, err := os.Create(dumpOutput)
	if err != nil {
		return err
	}
	if err := writeHex(f, dumpBase, data, dumpLine); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
