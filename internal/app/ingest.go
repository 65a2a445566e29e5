package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/shelf/internal/cli"
	"horse.fit/shelf/internal/config"
	"horse.fit/shelf/internal/db"
	"horse.fit/shelf/internal/ingest"
	"horse.fit/shelf/internal/logging"
	productschema "horse.fit/shelf/schema"
)

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 20*time.Second, "Command timeout")
	payload := fs.String("payload", "", "Product payload JSON")
	payloadFile := fs.String("payload-file", "", "Path to payload JSON file, or - for stdin (overrides --payload)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
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

	payloadJSON, err := loadJSONInput(*payload, *payloadFile, "payload")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid payload: %v\n", err)
		return 2
	}

	item, err := productschema.ValidateProductPayload(payloadJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid payload: %v\n", err)
		return 2
	}

	var scrapedAt *time.Time
	if item.ScrapedAt != nil {
		ts, parseErr := time.Parse(time.RFC3339, strings.TrimSpace(*item.ScrapedAt))
		if parseErr != nil {
			fmt.Fprintf(os.Stderr, "Invalid payload: scraped_at: %v\n", parseErr)
			return 2
		}
		utc := ts.UTC()
		scrapedAt = &utc
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("database connection failed")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	svc := ingest.NewService(pool, logger)
	result, err := svc.IngestOne(ctx, ingest.Request{
		Platform:     item.Platform,
		ExternalID:   item.ExternalID,
		SourceSpider: item.SourceSpider,
		ScrapedAt:    scrapedAt,
		RawPayload:   payloadJSON,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		return 1
	}

	fmt.Printf("run_id=%d status=%s inserted=%t payload_hash=%s\n", result.RunID, result.Status, result.Inserted, result.PayloadHashHex)
	fmt.Printf("run_uuid=%s\n", result.RunUUID)
	if result.RawProductID != nil {
		fmt.Printf("raw_product_id=%d\n", *result.RawProductID)
	}
	if result.RawProductUUID != nil {
		fmt.Printf("raw_product_uuid=%s\n", *result.RawProductUUID)
	}
	return 0
}
