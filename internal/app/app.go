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
	case "route":
		return runRoute(args[1:])
	case "match":
		return runMatch(args[1:])
	case "catalog":
		return runCatalog(args[1:])
	case "hash-key":
		return runHashKey(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "pulse CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  pulse <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health    Verify database connectivity and show pipeline stats")
	fmt.Fprintln(os.Stderr, "  ingest    Validate, deduplicate and accept a batch of candidate payloads")
	fmt.Fprintln(os.Stderr, "  route     Run one scheduling cycle for a user against a delivery window")
	fmt.Fprintln(os.Stderr, "  match     Match accepted events against subscribers and queue delivery tasks")
	fmt.Fprintln(os.Stderr, "  catalog   Print the content-type routing table")
	fmt.Fprintln(os.Stderr, "  hash-key  Produce the bcrypt hash of an intake API key")
	fmt.Fprintln(os.Stderr, "  serve     Start Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"pulse <command> -h\" for command-specific flags.")
}
