package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"citypulse.nyc/pulse/internal/catalog"
)

func runCatalog(args []string) int {
	fs := flag.NewFlagSet("catalog", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	cat, err := catalog.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load catalog: %v\n", err)
		return 1
	}

	types := cat.ContentTypes()
	if outputFormat == outputFormatJSON {
		if err := printJSON(map[string]any{
			"windows":       cat.WindowOrder(),
			"content_types": types,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(types))
	for _, t := range types {
		windows := make([]string, 0, len(t.PreferredWindows))
		for _, w := range t.PreferredWindows {
			windows = append(windows, string(w))
		}
		rows = append(rows, []string{
			t.Slug,
			string(t.Urgency),
			strings.Join(windows, ","),
			fmt.Sprintf("%d", t.DefaultPriority),
			t.InverseOf,
		})
	}
	if err := writeTable([]string{"slug", "urgency", "windows", "priority", "inverse_of"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}

	return 0
}
