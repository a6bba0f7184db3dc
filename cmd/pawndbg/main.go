package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pawnlang/pawndbg/pkg/errors"
)

var version = "0.2.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "pawndbg",
		Short: "Source-level debugger for SMX plugins",
		Long: `pawndbg is a console debugger for plugins running on the SMX scripting VM.
It halts execution at source-line granularity, inspects and mutates
variables, and can expose the same control surface to a GDB client over
TCP.`,
		Version: version,
	}

	debugCmd := &cobra.Command{
		Use:   "debug",
		Short: "Run the bundled demo plugin under the debugger",
		RunE:  runDebug,
	}
	debugCmd.Flags().String("config", "", "Path to a YAML config file")
	debugCmd.Flags().Bool("remote", false, "Serve a GDB remote stub on the default port instead of the local console")
	debugCmd.Flags().Int("remote-port", 0, "Serve the GDB remote stub on this TCP port")
	debugCmd.Flags().String("metrics-addr", "", "Listen address for the Prometheus endpoint (empty: disabled)")
	debugCmd.Flags().String("image", "", "Plugin binary to watch for recompiles")
	debugCmd.Flags().String("log-level", "", "Log level: debug, info, warn, error")
	debugCmd.Flags().Bool("trace", false, "Enable OpenTelemetry tracing")

	rootCmd.AddCommand(debugCmd)

	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(1)
	}
}

func printError(err error) {
	fmt.Fprint(os.Stderr, errors.FormatError(err))
}
