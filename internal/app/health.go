package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"citypulse.nyc/pulse/internal/cli"
)

func runHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "health does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, _, pool, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	stats, err := pool.PipelineStats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query pipeline stats: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	latestIngest := ""
	if stats.LatestIngestAt != nil {
		latestIngest = stats.LatestIngestAt.UTC().Format(time.RFC3339)
	}
	rows := [][]string{
		{"accepted_items", fmt.Sprintf("%d", stats.AcceptedItems)},
		{"send_history_entries", fmt.Sprintf("%d", stats.SendHistoryEntries)},
		{"pending_tasks", fmt.Sprintf("%d", stats.PendingTasks)},
		{"subscribers", fmt.Sprintf("%d", stats.Subscribers)},
		{"ingest_failures", fmt.Sprintf("%d", stats.IngestFailures)},
		{"latest_ingest_at", latestIngest},
	}
	if err := writeTable([]string{"metric", "value"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}

	fmt.Println("OK")
	return 0
}
