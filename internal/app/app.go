package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "ingest":
		return runIngest(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "normalize":
		return runNormalize(args[1:])
	case "dedup":
		return runDedup(args[1:])
	case "process", "run-once":
		return runProcess(args[1:])
	case "stats":
		return runStats(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "shelf CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  shelf <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health     Verify configuration and database connectivity")
	fmt.Fprintln(os.Stderr, "  ingest     Insert one scraped product payload into the raw ledger")
	fmt.Fprintln(os.Stderr, "  validate   Validate product JSON files against the v1 payload schema")
	fmt.Fprintln(os.Stderr, "  normalize  Convert pending raw products into normalized products")
	fmt.Fprintln(os.Stderr, "  dedup      Group duplicate products and promote canonical records")
	fmt.Fprintln(os.Stderr, "  process    Run normalize + dedup cycles until the queue drains")
	fmt.Fprintln(os.Stderr, "  run-once   Alias for process")
	fmt.Fprintln(os.Stderr, "  stats      Catalog counts by platform, status and curation")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"shelf <command> -h\" for command-specific flags.")
}
