package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"citypulse.nyc/pulse/internal/catalog"
	"citypulse.nyc/pulse/internal/cli"
	"citypulse.nyc/pulse/internal/db"
	"citypulse.nyc/pulse/internal/globaltime"
	"citypulse.nyc/pulse/internal/logging"
	"citypulse.nyc/pulse/internal/router"
)

const defaultRouteCandidateLimit = 200

func runRoute(args []string) int {
	fs := flag.NewFlagSet("route", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	userID := fs.String("user", "", "User to run the scheduling cycle for")
	windowName := fs.String("window", "", "Delivery window: morning, midday or evening")
	limit := fs.Int("limit", defaultRouteCandidateLimit, "Maximum candidate items to route")
	dryRun := fs.Bool("dry-run", false, "Route without recording sends")
	timeout := fs.Duration("timeout", 60*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if strings.TrimSpace(*userID) == "" {
		fmt.Fprintln(os.Stderr, "--user is required")
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
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

	window := catalog.Window(strings.TrimSpace(strings.ToLower(*windowName)))
	if window == "" {
		window = currentWindow(cat, cfg.Location())
	}
	if _, ok := cat.Window(window); !ok {
		fmt.Fprintf(os.Stderr, "Unknown window %q\n", window)
		return 2
	}

	accepted := db.NewAcceptedStore(pool)
	history := db.NewHistoryStore(pool)

	now := globaltime.UTC()
	historyLookback := time.Duration(cfg.HistoryLookbackHours) * time.Hour
	items, err := accepted.ListRoutable(ctx, now.Add(-historyLookback), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load routable items: %v\n", err)
		return 1
	}

	r := router.New(history, history, cat, logger, router.Options{
		Location:        cfg.Location(),
		HistoryLookback: historyLookback,
	})

	if *dryRun {
		set, err := r.RouteMultiple(ctx, *userID, items, window, now)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Routing failed: %v\n", err)
			return 1
		}
		bucket := r.BuildSlotContent(set.Include, window, now)
		return printRouteResult(outputFormat, window, bucket, len(items))
	}

	bucket, err := r.RunCycle(ctx, *userID, items, window, now)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Scheduling cycle failed: %v\n", err)
		return 1
	}
	return printRouteResult(outputFormat, window, bucket, len(items))
}

// currentWindow picks the latest window whose clock time has passed today,
// wrapping to the last window overnight.
func currentWindow(cat *catalog.Catalog, loc *time.Location) catalog.Window {
	local := globaltime.UTC().In(loc)
	minutesNow := local.Hour()*60 + local.Minute()

	order := cat.WindowOrder()
	current := order[len(order)-1]
	for _, w := range order {
		policy, ok := cat.Window(w)
		if !ok {
			continue
		}
		clock, err := time.Parse("15:04", policy.Clock)
		if err != nil {
			continue
		}
		if clock.Hour()*60+clock.Minute() <= minutesNow {
			current = w
		}
	}
	return current
}

func printRouteResult(outputFormat string, window catalog.Window, bucket router.SlotBucket, candidates int) int {
	if outputFormat == outputFormatJSON {
		if err := printJSON(map[string]any{
			"window":      window,
			"candidates":  candidates,
			"kept":        bucket.Kept,
			"dropped":     len(bucket.Dropped),
			"deferred":    len(bucket.Deferred),
			"immediate":   len(bucket.Immediate),
			"should_send": bucket.ShouldSend,
			"reason":      bucket.Reason,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := [][]string{
		{"window", string(window)},
		{"candidates", fmt.Sprintf("%d", candidates)},
		{"kept", fmt.Sprintf("%d", len(bucket.Kept))},
		{"dropped", fmt.Sprintf("%d", len(bucket.Dropped))},
		{"deferred", fmt.Sprintf("%d", len(bucket.Deferred))},
		{"immediate", fmt.Sprintf("%d", len(bucket.Immediate))},
		{"should_send", fmt.Sprintf("%t", bucket.ShouldSend)},
	}
	if bucket.Reason != "" {
		rows = append(rows, []string{"reason", bucket.Reason})
	}
	if err := writeTable([]string{"metric", "value"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}

	if len(bucket.Kept) > 0 {
		fmt.Println()
		keptRows := make([][]string, 0, len(bucket.Kept))
		for _, item := range bucket.Kept {
			keptRows = append(keptRows, []string{item.ID, item.Type, fmt.Sprintf("%d", item.Priority)})
		}
		if err := writeTable([]string{"item_id", "content_type", "priority"}, keptRows); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render kept table: %v\n", err)
			return 1
		}
	}

	return 0
}
