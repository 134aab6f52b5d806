// Command mirrornode runs the oracle lattice: an HTTP bridge, one-shot
// routing and consensus, and audit dossier tooling.
package main

import (
	"fmt"
	"io"
	"os"
)

// Version is stamped at build time with -ldflags "-X main.Version=...".
var Version = "1.0.0"

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServeCmd(nil, stdout, stderr)
	}

	switch args[1] {
	case "serve", "server":
		return runServeCmd(args[2:], stdout, stderr)
	case "route":
		return runRouteCmd(args[2:], stdout, stderr)
	case "consensus":
		return runConsensusCmd(args[2:], stdout, stderr)
	case "adapters":
		return runAdaptersCmd(args[2:], stdout, stderr)
	case "audit-verify":
		return runAuditVerifyCmd(args[2:], stdout, stderr)
	case "audit-export":
		return runAuditExportCmd(args[2:], stdout, stderr)
	case "version", "--version":
		_, _ = fmt.Fprintf(stdout, "mirrornode %s\n", Version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if args[1][0] == '-' {
			return runServeCmd(args[1:], stdout, stderr)
		}
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// ANSI Colors
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorBlue  = "\033[34m"
	ColorCyan  = "\033[36m"
	ColorGreen = "\033[32m"
	ColorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sMirrorNode Lattice %s%s\n", ColorBold+ColorBlue, Version, ColorReset)
	fmt.Fprintf(w, "%sMany oracles, one answer.%s\n", ColorGray, ColorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "  mirrornode <command> [flags]")
	fmt.Fprintln(w, "")

	printSection(w, "LATTICE")
	printCommand(w, "serve", "Run the HTTP bridge (default, --port)")
	printCommand(w, "route", "Route one event (--event, --target)")
	printCommand(w, "consensus", "Request consensus on one event (--event)")
	printCommand(w, "adapters", "List the configured adapter pool (--adapters)")

	printSection(w, "AUDIT")
	printCommand(w, "audit-verify", "Verify audit dossiers (--dossier, --json)")
	printCommand(w, "audit-export", "Export an evidence pack (--dossier, --out)")

	printSection(w, "UTILITIES")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-13s%s %s\n", ColorGreen, name, ColorReset, desc)
}
