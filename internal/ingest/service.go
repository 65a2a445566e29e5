package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/shelf/internal/db"
	"horse.fit/shelf/internal/globaltime"
)

const maxIngestErrorLength = 4000

type Service struct {
	pool   *db.Pool
	logger zerolog.Logger
}

// Request carries one scraped payload into the raw store. Platform,
// ExternalID, SourceSpider and ScrapedAt are taken from the payload
// envelope by the caller; RawPayload is stored byte-identical after
// canonicalization.
type Request struct {
	Platform     string
	ExternalID   string
	SourceSpider string
	ScrapedAt    *time.Time
	RawPayload   json.RawMessage
}

type Result struct {
	RunID          int64
	RunUUID        string
	RawProductID   *int64
	RawProductUUID *string
	Inserted       bool
	PayloadHashHex string
	Status         string
}

func NewService(pool *db.Pool, logger zerolog.Logger) *Service {
	return &Service{
		pool:   pool,
		logger: logger,
	}
}

func (s *Service) IngestOne(ctx context.Context, req Request) (Result, error) {
	if s == nil || s.pool == nil {
		return Result{}, fmt.Errorf("ingest service is not initialized")
	}

	platform := strings.TrimSpace(strings.ToLower(req.Platform))
	if platform == "" {
		return Result{}, fmt.Errorf("platform is required")
	}

	externalID := strings.TrimSpace(req.ExternalID)
	if externalID == "" {
		return Result{}, fmt.Errorf("external_id is required")
	}

	sourceSpider := strings.TrimSpace(req.SourceSpider)
	if sourceSpider == "" {
		sourceSpider = platform
	}

	payloadCanonical, err := canonicalizeJSON(req.RawPayload)
	if err != nil {
		return Result{}, fmt.Errorf("canonicalize raw payload: %w", err)
	}
	payloadHash := sha256.Sum256(payloadCanonical)

	runStart := globaltime.UTC()
	runID, runUUID, err := s.insertRun(ctx, sourceSpider, runStart)
	if err != nil {
		return Result{}, fmt.Errorf("insert ingest run: %w", err)
	}

	insertResult, ingestErr := s.insertRawProductTx(
		ctx,
		runID,
		platform,
		externalID,
		sourceSpider,
		normalizeNullableTime(req.ScrapedAt),
		string(payloadCanonical),
		payloadHash[:],
		globaltime.UTC(),
	)
	if ingestErr != nil {
		failedAt := globaltime.UTC()
		markErr := s.markRunFailed(ctx, runID, ingestErr, failedAt)
		if markErr != nil {
			return Result{}, fmt.Errorf("ingest tx failed (%v); failed to mark run failed: %w", ingestErr, markErr)
		}
		return Result{}, ingestErr
	}

	itemsInserted := 0
	if insertResult.inserted {
		itemsInserted = 1
	}

	finishedAt := globaltime.UTC()
	if err := s.markRunCompleted(ctx, runID, itemsInserted, finishedAt); err != nil {
		return Result{}, fmt.Errorf("mark ingest run completed: %w", err)
	}

	s.logger.Info().
		Int64("run_id", runID).
		Str("platform", platform).
		Str("external_id", externalID).
		Bool("inserted", insertResult.inserted).
		Msg("ingest completed")

	return Result{
		RunID:          runID,
		RunUUID:        runUUID,
		RawProductID:   insertResult.rawProductID,
		RawProductUUID: insertResult.rawProductUUID,
		Inserted:       insertResult.inserted,
		PayloadHashHex: hex.EncodeToString(payloadHash[:]),
		Status:         "completed",
	}, nil
}

type insertTxResult struct {
	rawProductID   *int64
	rawProductUUID *string
	inserted       bool
}

func (s *Service) insertRun(ctx context.Context, sourceSpider string, runStart time.Time) (int64, string, error) {
	const q = `
INSERT INTO catalog.ingest_runs (
	source_spider,
	started_at,
	status,
	items_fetched,
	items_inserted,
	created_at,
	updated_at
)
VALUES ($1, $2, 'running', 0, 0, $2, $2)
RETURNING run_id, ingest_run_uuid
`

	var runID int64
	var runUUID string
	err := s.pool.QueryRow(ctx, q, sourceSpider, runStart).Scan(&runID, &runUUID)
	if err != nil {
		return 0, "", err
	}
	return runID, runUUID, nil
}

func (s *Service) insertRawProductTx(
	ctx context.Context,
	runID int64,
	platform string,
	externalID string,
	sourceSpider string,
	scrapedAt *time.Time,
	rawPayload string,
	payloadHash []byte,
	now time.Time,
) (insertTxResult, error) {
	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return insertTxResult{}, fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	const insertRaw = `
INSERT INTO catalog.raw_products (
	run_id,
	platform,
	external_id,
	source_spider,
	scraped_at,
	raw_payload,
	payload_hash,
	status,
	fetched_at,
	created_at,
	updated_at
)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, 'pending', $8, $8, $8)
ON CONFLICT (platform, external_id, payload_hash) DO NOTHING
RETURNING raw_product_id, raw_product_uuid
`

	var rawProductID int64
	var rawProductUUID string
	inserted := true
	err = tx.QueryRow(
		ctx,
		insertRaw,
		runID,
		platform,
		externalID,
		sourceSpider,
		scrapedAt,
		rawPayload,
		payloadHash,
		now,
	).Scan(&rawProductID, &rawProductUUID)
	if err != nil {
		if db.IsNoRows(err) {
			inserted = false
		} else {
			return insertTxResult{}, fmt.Errorf("insert raw_products: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return insertTxResult{}, fmt.Errorf("commit transaction: %w", err)
	}

	if !inserted {
		return insertTxResult{inserted: false}, nil
	}

	return insertTxResult{
		rawProductID:   &rawProductID,
		rawProductUUID: &rawProductUUID,
		inserted:       true,
	}, nil
}

func (s *Service) markRunCompleted(ctx context.Context, runID int64, itemsInserted int, finishedAt time.Time) error {
	const q = `
UPDATE catalog.ingest_runs
SET
	status = 'completed',
	items_fetched = 1,
	items_inserted = $2,
	finished_at = $3,
	updated_at = $3,
	error_message = NULL
WHERE run_id = $1
`
	_, err := s.pool.Exec(ctx, q, runID, itemsInserted, finishedAt)
	return err
}

func (s *Service) markRunFailed(ctx context.Context, runID int64, cause error, finishedAt time.Time) error {
	const q = `
UPDATE catalog.ingest_runs
SET
	status = 'failed',
	error_message = $2,
	finished_at = $3,
	updated_at = $3
WHERE run_id = $1
`

	msg := strings.TrimSpace(cause.Error())
	if len(msg) > maxIngestErrorLength {
		msg = msg[:maxIngestErrorLength]
	}

	_, err := s.pool.Exec(ctx, q, runID, msg, finishedAt)
	return err
}

func canonicalizeJSON(raw []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("JSON payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("JSON contains trailing content")
	}

	canonical, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal canonical JSON: %w", err)
	}
	return canonical, nil
}

func normalizeNullableTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	normalized := t.UTC()
	return &normalized
}
