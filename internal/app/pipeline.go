package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/shelf/internal/cli"
	"horse.fit/shelf/internal/config"
	"horse.fit/shelf/internal/db"
	"horse.fit/shelf/internal/globaltime"
	"horse.fit/shelf/internal/logging"
	"horse.fit/shelf/internal/pipeline"
)

func runNormalize(args []string) int {
	fs := flag.NewFlagSet("normalize", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 60*time.Second, "Command timeout")
	limit := fs.Int("limit", 1000, "Maximum pending raw products to normalize")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
		return 2
	}

	svc, cleanup, logger, code := buildService(envLoader, *timeout)
	if code != 0 {
		return code
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	startedAt := globaltime.UTC()
	result, err := svc.NormalizePending(ctx, *limit)
	if recordErr := svc.RecordRun(ctx, "normalize", startedAt, result, err); recordErr != nil {
		logger.Warn().Err(recordErr).Msg("failed to record normalize run")
	}
	if err != nil {
		logger.Error().Err(err).Int("limit", *limit).Msg("normalize failed")
		fmt.Fprintf(os.Stderr, "Normalize failed: %v\n", err)
		return 1
	}

	logger.Info().
		Int("limit", *limit).
		Int("processed", result.Processed).
		Int("admitted", result.Admitted).
		Int("curated", result.Curated).
		Int("rejected", result.Rejected).
		Msg("normalize completed")
	fmt.Printf(
		"normalize processed=%d admitted=%d curated=%d rejected=%d limit=%d\n",
		result.Processed, result.Admitted, result.Curated, result.Rejected, *limit,
	)
	for rule, count := range result.RejectedByRule {
		fmt.Printf("rejected rule=%s count=%d\n", rule, count)
	}
	return 0
}

func runDedup(args []string) int {
	fs := flag.NewFlagSet("dedup", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 90*time.Second, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	svc, cleanup, logger, code := buildService(envLoader, *timeout)
	if code != 0 {
		return code
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	startedAt := globaltime.UTC()
	result, err := svc.DedupBatch(ctx)
	if recordErr := svc.RecordRun(ctx, "dedup", startedAt, result, err); recordErr != nil {
		logger.Warn().Err(recordErr).Msg("failed to record dedup run")
	}
	if err != nil {
		logger.Error().Err(err).Msg("dedup failed")
		fmt.Fprintf(os.Stderr, "Dedup failed: %v\n", err)
		return 1
	}

	logger.Info().
		Int("processed", result.Processed).
		Int("groups", result.Groups).
		Int("duplicates", result.DuplicatesFound).
		Int("canonical", result.CanonicalCount).
		Msg("dedup completed")
	fmt.Printf(
		"dedup processed=%d groups=%d duplicates=%d canonical=%d\n",
		result.Processed, result.Groups, result.DuplicatesFound, result.CanonicalCount,
	)
	return 0
}

func runProcess(args []string) int {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")
	normalizeLimit := fs.Int("normalize-limit", 1000, "Maximum raw products to normalize per cycle")
	untilEmpty := fs.Bool("until-empty", true, "Repeat cycles until no work remains")
	maxCycles := fs.Int("max-cycles", 25, "Maximum normalize+dedup cycles when --until-empty=true")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *normalizeLimit <= 0 {
		fmt.Fprintln(os.Stderr, "--normalize-limit must be > 0")
		return 2
	}
	if *maxCycles <= 0 {
		fmt.Fprintln(os.Stderr, "--max-cycles must be > 0")
		return 2
	}

	svc, cleanup, logger, code := buildService(envLoader, *timeout)
	if code != 0 {
		return code
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	startedAt := globaltime.UTC()
	summary := pipeline.BatchSummary{RejectedByRule: make(map[string]int)}
	cyclesRun := 0
	drained := false

	var runErr error
	for cycle := 1; cycle <= *maxCycles; cycle++ {
		normalizeResult, err := svc.NormalizePending(ctx, *normalizeLimit)
		if err != nil {
			logger.Error().Err(err).Int("cycle", cycle).Msg("normalize stage failed")
			fmt.Fprintf(os.Stderr, "Process failed during normalize cycle %d: %v\n", cycle, err)
			runErr = err
			break
		}

		dedupResult, err := svc.DedupBatch(ctx)
		if err != nil {
			logger.Error().Err(err).Int("cycle", cycle).Msg("dedup stage failed")
			fmt.Fprintf(os.Stderr, "Process failed during dedup cycle %d: %v\n", cycle, err)
			runErr = err
			break
		}

		cyclesRun = cycle
		summary.Admitted += normalizeResult.Admitted
		for rule, count := range normalizeResult.RejectedByRule {
			summary.RejectedByRule[rule] += count
		}
		summary.DuplicatesFound += dedupResult.DuplicatesFound
		summary.CanonicalCount += dedupResult.CanonicalCount

		fmt.Printf(
			"cycle=%d normalize_processed=%d admitted=%d rejected=%d dedup_processed=%d duplicates=%d canonical=%d\n",
			cycle,
			normalizeResult.Processed,
			normalizeResult.Admitted,
			normalizeResult.Rejected,
			dedupResult.Processed,
			dedupResult.DuplicatesFound,
			dedupResult.CanonicalCount,
		)

		noProgress := normalizeResult.Processed == 0 && dedupResult.Processed == 0
		if !*untilEmpty {
			drained = noProgress
			break
		}
		if noProgress {
			drained = true
			break
		}
	}

	if recordErr := svc.RecordRun(ctx, "process", startedAt, summary, runErr); recordErr != nil {
		logger.Warn().Err(recordErr).Msg("failed to record process run")
	}
	if runErr != nil {
		return 1
	}

	logger.Info().
		Int("cycles", cyclesRun).
		Bool("drained", drained).
		Int("admitted", summary.Admitted).
		Int("duplicates_found", summary.DuplicatesFound).
		Int("canonical_count", summary.CanonicalCount).
		Msg("process completed")

	fmt.Printf(
		"process_total cycles=%d drained=%t admitted=%d duplicates=%d canonical=%d\n",
		cyclesRun,
		drained,
		summary.Admitted,
		summary.DuplicatesFound,
		summary.CanonicalCount,
	)
	for rule, count := range summary.RejectedByRule {
		fmt.Printf("rejected rule=%s count=%d\n", rule, count)
	}

	if *untilEmpty && !drained {
		fmt.Fprintf(
			os.Stderr,
			"Process stopped after max cycles (%d) before draining queue; rerun with higher --max-cycles or limits\n",
			*maxCycles,
		)
		return 1
	}
	return 0
}

// buildService loads config, logging, rules and the database pool shared by
// the pipeline commands. The returned cleanup closes the pool. A non-zero
// code means setup failed and the command should exit with it.
func buildService(envLoader *cli.EnvLoader, timeout time.Duration) (*pipeline.Service, func(), zerolog.Logger, int) {
	noop := func() {}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, noop, zerolog.Logger{}, 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return nil, noop, zerolog.Logger{}, 1
	}

	opts, err := pipelineOptions(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid pipeline configuration: %v\n", err)
		return nil, noop, logger, 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return nil, noop, logger, 1
	}

	svc := pipeline.NewService(pool, logger, opts)
	cleanup := func() {
		_ = pool.Close()
	}
	return svc, cleanup, logger, 0
}
