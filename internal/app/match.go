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
	"citypulse.nyc/pulse/internal/logging"
	"citypulse.nyc/pulse/internal/matching"
)

type matchEventInput struct {
	EventID  string         `json:"event_id"`
	Topic    string         `json:"topic"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Areas    []string       `json:"areas,omitempty"`
}

func runMatch(args []string) int {
	fs := flag.NewFlagSet("match", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	file := fs.String("file", "", "Path to a JSON array of events (\"-\" for stdin)")
	timeout := fs.Duration("timeout", 60*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
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
		fmt.Fprintf(os.Stderr, "Failed to read events: %v\n", err)
		return 1
	}
	var inputs []matchEventInput
	if err := json.Unmarshal(raw, &inputs); err != nil {
		fmt.Fprintf(os.Stderr, "Input must be a JSON array of events: %v\n", err)
		return 1
	}
	if len(inputs) == 0 {
		fmt.Fprintln(os.Stderr, "Input contains no events")
		return 1
	}

	events := make([]matching.Event, 0, len(inputs))
	for i, input := range inputs {
		if strings.TrimSpace(input.EventID) == "" || strings.TrimSpace(input.Topic) == "" {
			fmt.Fprintf(os.Stderr, "Event %d is missing event_id or topic\n", i)
			return 1
		}
		events = append(events, matching.Event{
			ID:       strings.TrimSpace(input.EventID),
			Topic:    strings.TrimSpace(strings.ToLower(input.Topic)),
			Metadata: input.Metadata,
			Areas:    input.Areas,
		})
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

	scheduler := matching.NewScheduler(db.NewTaskStore(pool), db.NewSubscriberDirectory(pool), cat, logger, matching.Options{})

	queued, err := scheduler.ProcessEventBatch(ctx, events)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Match batch failed: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(map[string]any{
			"events":       len(events),
			"tasks_queued": queued,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := [][]string{
		{"events", fmt.Sprintf("%d", len(events))},
		{"tasks_queued", fmt.Sprintf("%d", queued)},
	}
	if err := writeTable([]string{"metric", "value"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}

	return 0
}
