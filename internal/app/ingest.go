package app

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"citypulse.nyc/pulse/internal/catalog"
	"citypulse.nyc/pulse/internal/cli"
	"citypulse.nyc/pulse/internal/db"
	"citypulse.nyc/pulse/internal/dedup"
	"citypulse.nyc/pulse/internal/ingest"
	"citypulse.nyc/pulse/internal/logging"
)

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	source := fs.String("source", "", "Adapter source name for the batch")
	file := fs.String("file", "", "Path to a JSON array of candidate payloads (\"-\" for stdin)")
	timeout := fs.Duration("timeout", 60*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if strings.TrimSpace(*source) == "" {
		fmt.Fprintln(os.Stderr, "--source is required")
		return 2
	}
	if strings.TrimSpace(*file) == "" {
		fmt.Fprintln(os.Stderr, "--file is required")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	raw, err := readInputFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read payloads: %v\n", err)
		return 1
	}
	var payloads []json.RawMessage
	if err := json.Unmarshal(raw, &payloads); err != nil {
		fmt.Fprintf(os.Stderr, "Input must be a JSON array of payload objects: %v\n", err)
		return 1
	}
	if len(payloads) == 0 {
		fmt.Fprintln(os.Stderr, "Input contains no payloads")
		return 1
	}

	ctx, cancel, cfg, pool, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	cat, err := catalog.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load catalog: %v\n", err)
		return 1
	}

	store := db.NewAcceptedStore(pool)
	deduper := dedup.NewService(store, logger, dedup.Options{
		Lookback:       time.Duration(cfg.DedupLookbackHours) * time.Hour,
		TitleThreshold: cfg.TitleSimilarity,
	})
	service := ingest.NewService(store, deduper, cat, logger)

	result, err := service.IngestBatch(ctx, *source, payloads)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest batch failed: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(result); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := [][]string{
		{"received", fmt.Sprintf("%d", result.Received)},
		{"invalid", fmt.Sprintf("%d", result.Invalid)},
		{"duplicates", fmt.Sprintf("%d", result.Duplicates)},
		{"accepted", fmt.Sprintf("%d", result.Accepted)},
	}
	if err := writeTable([]string{"metric", "value"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}

	if result.Report != nil {
		fmt.Println()
		sampleRows := make([][]string, 0, len(result.Report.Samples))
		for _, sample := range result.Report.Samples {
			sampleRows = append(sampleRows, []string{sample.SourceItemID, sample.Reason})
		}
		if err := writeTable([]string{"source_item_id", "failure"}, sampleRows); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render failure table: %v\n", err)
			return 1
		}
	}

	return 0
}
