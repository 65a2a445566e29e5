package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/shelf/internal/cli"
	"horse.fit/shelf/internal/config"
	"horse.fit/shelf/internal/db"
	"horse.fit/shelf/internal/logging"
)

func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "stats does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("stats command failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	stats, err := pool.QueryCatalogStats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query catalog stats: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	platformRows := make([][]string, 0, len(stats.Platforms)+1)
	for _, row := range stats.Platforms {
		platformRows = append(platformRows, []string{
			row.Platform,
			fmt.Sprintf("%d", row.Raw),
			fmt.Sprintf("%d", row.Products),
			fmt.Sprintf("%d", row.Canonical),
			fmt.Sprintf("%d", row.Discarded),
			fmt.Sprintf("%d", row.Curated),
		})
	}
	platformRows = append(platformRows, []string{
		"TOTAL",
		fmt.Sprintf("%d", stats.Totals.Raw),
		fmt.Sprintf("%d", stats.Totals.Products),
		fmt.Sprintf("%d", stats.Totals.Canonical),
		fmt.Sprintf("%d", stats.Totals.Discarded),
		fmt.Sprintf("%d", stats.Totals.Curated),
	})

	if err := writeTable([]string{"platform", "raw", "products", "canonical", "discarded", "curated"}, platformRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render platform table: %v\n", err)
		return 1
	}

	fmt.Println()
	backlogRows := [][]string{
		{"raw_pending", fmt.Sprintf("%d", stats.Backlog.RawPending)},
		{"raw_rejected", fmt.Sprintf("%d", stats.Backlog.RawRejected)},
		{"products_pending", fmt.Sprintf("%d", stats.Backlog.ProductsPending)},
	}
	if err := writeTable([]string{"metric", "value"}, backlogRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render backlog table: %v\n", err)
		return 1
	}

	return 0
}
