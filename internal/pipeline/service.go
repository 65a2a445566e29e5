package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/shelf/internal/db"
	"horse.fit/shelf/internal/globaltime"
	"horse.fit/shelf/internal/rules"
	productschema "horse.fit/shelf/schema"
)

// Raw rows rejected before curation get one of these ledger rules in
// addition to the curation rule names.
const (
	RuleInvalidPayload   = "invalid_payload"
	RuleIncompleteRecord = "incomplete_record"
)

type Service struct {
	pool       *db.Pool
	logger     zerolog.Logger
	normalizer *Normalizer
	filter     *Filter
	grouper    *Grouper
}

// Options carries the tunables resolved from configuration.
type Options struct {
	Rules     *rules.Set
	Policy    MultiValuePolicy
	Threshold float64
	Mode      GroupingMode
	Workers   int
}

type NormalizeResult struct {
	Processed      int
	Admitted       int
	Curated        int
	Rejected       int
	RejectedByRule map[string]int
}

type DedupResult struct {
	Processed       int
	Groups          int
	DuplicatesFound int
	CanonicalCount  int
}

func NewService(pool *db.Pool, logger zerolog.Logger, opts Options) *Service {
	return &Service{
		pool:       pool,
		logger:     logger,
		normalizer: NewNormalizer(opts.Rules, opts.Policy),
		filter:     NewFilter(opts.Rules.Curation),
		grouper:    NewGrouper(opts.Threshold, opts.Mode, opts.Workers),
	}
}

type rawProductRow struct {
	RawProductID int64
	Platform     string
	ExternalID   string
	SourceSpider string
	ScrapedAt    *time.Time
	RawPayload   []byte
	FetchedAt    time.Time
}

// NormalizePending claims pending raw products one per transaction and runs
// them through the normalizer and the curation filter. Admitted records are
// upserted into catalog.products with status pending so the next dedup pass
// picks them up; rejects keep their raw row with the rule that fired.
func (s *Service) NormalizePending(ctx context.Context, limit int) (NormalizeResult, error) {
	if s == nil || s.pool == nil {
		return NormalizeResult{}, fmt.Errorf("pipeline service is not initialized")
	}

	result := NormalizeResult{RejectedByRule: make(map[string]int)}
	if limit <= 0 {
		return result, nil
	}

	for result.Processed < limit {
		tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
		if err != nil {
			return result, fmt.Errorf("begin normalize tx: %w", err)
		}

		row, found, err := claimOnePendingRawProductTx(ctx, tx)
		if err != nil {
			_ = tx.Rollback(ctx)
			return result, err
		}
		if !found {
			if err := tx.Commit(ctx); err != nil {
				_ = tx.Rollback(ctx)
				return result, fmt.Errorf("commit empty normalize tx: %w", err)
			}
			break
		}

		outcome, err := s.normalizeOneTx(ctx, tx, row)
		if err != nil {
			_ = tx.Rollback(ctx)
			return result, err
		}

		if err := tx.Commit(ctx); err != nil {
			_ = tx.Rollback(ctx)
			return result, fmt.Errorf("commit normalize tx: %w", err)
		}

		result.Processed++
		if outcome.rule != "" {
			result.Rejected++
			result.RejectedByRule[outcome.rule]++
			continue
		}
		result.Admitted++
		if outcome.curated {
			result.Curated++
		}
	}

	return result, nil
}

type normalizeOutcome struct {
	rule    string
	curated bool
}

func (s *Service) normalizeOneTx(ctx context.Context, tx db.Tx, row rawProductRow) (normalizeOutcome, error) {
	payload, err := productschema.ValidateProductPayload(row.RawPayload)
	if err != nil {
		s.logger.Warn().
			Err(err).
			Int64("raw_product_id", row.RawProductID).
			Msg("payload failed schema validation")
		if err := markRawRejectedTx(ctx, tx, row.RawProductID, RuleInvalidPayload); err != nil {
			return normalizeOutcome{}, err
		}
		return normalizeOutcome{rule: RuleInvalidPayload}, nil
	}

	raw := RawRecord{
		Platform:     row.Platform,
		ExternalID:   row.ExternalID,
		SourceSpider: row.SourceSpider,
		ScrapedAt:    resolveScrapedAt(payload.ScrapedAt, row),
		Fields:       payload.Fields,
	}

	record, err := s.normalizer.Normalize(raw)
	if err != nil {
		var incomplete *IncompleteRecordError
		if !errors.As(err, &incomplete) {
			return normalizeOutcome{}, fmt.Errorf("normalize raw_product_id=%d: %w", row.RawProductID, err)
		}
		s.logger.Debug().
			Int64("raw_product_id", row.RawProductID).
			Strs("missing", incomplete.Missing).
			Msg("record incomplete, rejecting")
		if err := markRawRejectedTx(ctx, tx, row.RawProductID, RuleIncompleteRecord); err != nil {
			return normalizeOutcome{}, err
		}
		return normalizeOutcome{rule: RuleIncompleteRecord}, nil
	}

	decision := s.filter.Evaluate(record)
	if !decision.Admit {
		s.logger.Debug().
			Err(decision.Err()).
			Int64("raw_product_id", row.RawProductID).
			Msg("record failed curation")
		if err := markRawRejectedTx(ctx, tx, row.RawProductID, decision.Rule); err != nil {
			return normalizeOutcome{}, err
		}
		return normalizeOutcome{rule: decision.Rule}, nil
	}
	record.IsCurated = decision.Curated

	if err := upsertProductTx(ctx, tx, row.RawProductID, record); err != nil {
		return normalizeOutcome{}, err
	}
	if err := markRawNormalizedTx(ctx, tx, row.RawProductID); err != nil {
		return normalizeOutcome{}, err
	}

	return normalizeOutcome{curated: decision.Curated}, nil
}

// DedupBatch loads the pending products plus the existing canonical records
// for the platforms involved, groups duplicates in memory and persists the
// verdicts in a single transaction: survivors become canonical, losers are
// discarded with a reference to the survivor.
func (s *Service) DedupBatch(ctx context.Context) (DedupResult, error) {
	if s == nil || s.pool == nil {
		return DedupResult{}, fmt.Errorf("pipeline service is not initialized")
	}

	pending, err := s.loadProducts(ctx, "pending", nil)
	if err != nil {
		return DedupResult{}, err
	}
	if len(pending) == 0 {
		return DedupResult{}, nil
	}

	platforms := make([]string, 0, 4)
	seen := make(map[string]struct{}, 4)
	for _, p := range pending {
		if _, ok := seen[p.record.Platform]; !ok {
			seen[p.record.Platform] = struct{}{}
			platforms = append(platforms, p.record.Platform)
		}
	}
	sort.Strings(platforms)

	canonical, err := s.loadProducts(ctx, "canonical", platforms)
	if err != nil {
		return DedupResult{}, err
	}

	// Existing canonicals come first so they count as first seen for
	// exact-score ties against the incoming batch.
	stored := append(canonical, pending...)
	records := make([]Record, len(stored))
	for i, p := range stored {
		records[i] = p.record
	}

	groups := s.grouper.Group(records)

	inGroup := make(map[int]bool, len(records))
	for _, group := range groups {
		for _, idx := range group {
			inGroup[idx] = true
		}
	}

	tx, err := s.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return DedupResult{}, fmt.Errorf("begin dedup tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var result DedupResult
	result.Processed = len(pending)

	for _, group := range groups {
		result.Groups++
		winner := SelectCanonical(records, group)
		if err := markCanonicalTx(ctx, tx, stored[winner].productID); err != nil {
			return DedupResult{}, err
		}
		result.CanonicalCount++
		for _, idx := range group {
			if idx == winner {
				continue
			}
			result.DuplicatesFound++
			reason := fmt.Sprintf("duplicate_of:%d", stored[winner].productID)
			if err := markDiscardedTx(ctx, tx, stored[idx].productID, reason); err != nil {
				return DedupResult{}, err
			}
		}
	}

	// Singletons from the batch are canonical by default.
	for i := len(canonical); i < len(stored); i++ {
		if inGroup[i] {
			continue
		}
		if err := markCanonicalTx(ctx, tx, stored[i].productID); err != nil {
			return DedupResult{}, err
		}
		result.CanonicalCount++
	}

	if err := tx.Commit(ctx); err != nil {
		return DedupResult{}, fmt.Errorf("commit dedup tx: %w", err)
	}

	s.logger.Info().
		Int("processed", result.Processed).
		Int("groups", result.Groups).
		Int("duplicates", result.DuplicatesFound).
		Int("canonical", result.CanonicalCount).
		Msg("dedup batch completed")

	return result, nil
}

// RecordRun appends a catalog.pipeline_runs summary row.
func (s *Service) RecordRun(ctx context.Context, stage string, startedAt time.Time, summary any, runErr error) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("pipeline service is not initialized")
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}

	status := "completed"
	var errMsg *string
	if runErr != nil {
		status = "failed"
		msg := strings.TrimSpace(runErr.Error())
		errMsg = &msg
	}

	const q = `
INSERT INTO catalog.pipeline_runs (
	stage,
	started_at,
	finished_at,
	status,
	summary,
	error_message
)
VALUES ($1, $2, $3, $4, $5::jsonb, $6)
`
	finishedAt := globaltime.UTC()
	if _, err := s.pool.Exec(ctx, q, stage, startedAt.UTC(), finishedAt, status, string(payload), errMsg); err != nil {
		return fmt.Errorf("insert pipeline run: %w", err)
	}
	return nil
}

func claimOnePendingRawProductTx(ctx context.Context, tx db.Tx) (rawProductRow, bool, error) {
	const q = `
SELECT
	rp.raw_product_id,
	rp.platform,
	rp.external_id,
	rp.source_spider,
	rp.scraped_at,
	rp.raw_payload,
	rp.fetched_at
FROM catalog.raw_products rp
WHERE rp.status = 'pending'
ORDER BY rp.raw_product_id
LIMIT 1
FOR UPDATE SKIP LOCKED
`

	var row rawProductRow
	err := tx.QueryRow(ctx, q).Scan(
		&row.RawProductID,
		&row.Platform,
		&row.ExternalID,
		&row.SourceSpider,
		&row.ScrapedAt,
		&row.RawPayload,
		&row.FetchedAt,
	)
	if err != nil {
		if err == db.ErrNoRows {
			return rawProductRow{}, false, nil
		}
		return rawProductRow{}, false, fmt.Errorf("claim raw_product: %w", err)
	}
	return row, true, nil
}

func markRawRejectedTx(ctx context.Context, tx db.Tx, rawProductID int64, rule string) error {
	const q = `
UPDATE catalog.raw_products
SET
	status = 'rejected',
	reject_rule = $2,
	updated_at = $3
WHERE raw_product_id = $1
`
	if _, err := tx.Exec(ctx, q, rawProductID, rule, globaltime.UTC()); err != nil {
		return fmt.Errorf("mark raw_product %d rejected: %w", rawProductID, err)
	}
	return nil
}

func markRawNormalizedTx(ctx context.Context, tx db.Tx, rawProductID int64) error {
	const q = `
UPDATE catalog.raw_products
SET
	status = 'normalized',
	reject_rule = NULL,
	updated_at = $2
WHERE raw_product_id = $1
`
	if _, err := tx.Exec(ctx, q, rawProductID, globaltime.UTC()); err != nil {
		return fmt.Errorf("mark raw_product %d normalized: %w", rawProductID, err)
	}
	return nil
}

func upsertProductTx(ctx context.Context, tx db.Tx, rawProductID int64, record Record) error {
	images, err := json.Marshal(record.Images)
	if err != nil {
		return fmt.Errorf("marshal images: %w", err)
	}
	specs, err := json.Marshal(record.Specifications)
	if err != nil {
		return fmt.Errorf("marshal specifications: %w", err)
	}
	variations, err := json.Marshal(record.Variations)
	if err != nil {
		return fmt.Errorf("marshal variations: %w", err)
	}

	var previousPrice *float64
	const selectPrice = `
SELECT pr.current_price
FROM catalog.products pr
WHERE pr.platform = $1 AND pr.external_id = $2
`
	err = tx.QueryRow(ctx, selectPrice, record.Platform, record.ExternalID).Scan(&previousPrice)
	if err != nil && err != db.ErrNoRows {
		return fmt.Errorf("read previous price: %w", err)
	}

	var discount *float64
	if record.DiscountPercentage > 0 {
		discount = &record.DiscountPercentage
	}

	var scrapedAt *time.Time
	if !record.ScrapedAt.IsZero() {
		ts := record.ScrapedAt.UTC()
		scrapedAt = &ts
	}

	now := globaltime.UTC()
	const upsert = `
INSERT INTO catalog.products (
	raw_product_id,
	platform,
	external_id,
	source_spider,
	title,
	description,
	brand,
	model,
	category,
	subcategory,
	current_price,
	original_price,
	discount_percentage,
	currency,
	rating,
	review_count,
	availability,
	product_url,
	language,
	images,
	specifications,
	variations,
	fingerprint,
	is_curated,
	status,
	discard_reason,
	scraped_at,
	created_at,
	updated_at
)
VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
	$11, $12, $13, $14, $15, $16, $17, $18, $19,
	$20::jsonb, $21::jsonb, $22::jsonb,
	$23, $24, 'pending', NULL, $25, $26, $26
)
ON CONFLICT (platform, external_id) DO UPDATE
SET
	raw_product_id = EXCLUDED.raw_product_id,
	source_spider = EXCLUDED.source_spider,
	title = EXCLUDED.title,
	description = EXCLUDED.description,
	brand = EXCLUDED.brand,
	model = EXCLUDED.model,
	category = EXCLUDED.category,
	subcategory = EXCLUDED.subcategory,
	current_price = EXCLUDED.current_price,
	original_price = EXCLUDED.original_price,
	discount_percentage = EXCLUDED.discount_percentage,
	currency = EXCLUDED.currency,
	rating = EXCLUDED.rating,
	review_count = EXCLUDED.review_count,
	availability = EXCLUDED.availability,
	product_url = EXCLUDED.product_url,
	language = EXCLUDED.language,
	images = EXCLUDED.images,
	specifications = EXCLUDED.specifications,
	variations = EXCLUDED.variations,
	fingerprint = EXCLUDED.fingerprint,
	is_curated = EXCLUDED.is_curated,
	status = 'pending',
	discard_reason = NULL,
	scraped_at = EXCLUDED.scraped_at,
	updated_at = EXCLUDED.updated_at
RETURNING product_id
`

	var productID int64
	err = tx.QueryRow(
		ctx,
		upsert,
		rawProductID,
		record.Platform,
		record.ExternalID,
		record.SourceSpider,
		record.Title,
		record.Description,
		record.Brand,
		record.Model,
		record.Category,
		record.Subcategory,
		record.CurrentPrice,
		record.OriginalPrice,
		discount,
		record.Currency,
		record.Rating,
		record.ReviewCount,
		string(record.Availability),
		record.ProductURL,
		record.Language,
		string(images),
		string(specs),
		string(variations),
		Fingerprint(record),
		record.IsCurated,
		scrapedAt,
		now,
	).Scan(&productID)
	if err != nil {
		return fmt.Errorf("upsert product %s/%s: %w", record.Platform, record.ExternalID, err)
	}

	if record.CurrentPrice != nil && (previousPrice == nil || *previousPrice != *record.CurrentPrice) {
		const insertPrice = `
INSERT INTO catalog.price_history (product_id, price, currency, observed_at)
VALUES ($1, $2, $3, $4)
`
		if _, err := tx.Exec(ctx, insertPrice, productID, *record.CurrentPrice, record.Currency, now); err != nil {
			return fmt.Errorf("insert price history: %w", err)
		}
	}

	return nil
}

type storedProduct struct {
	productID int64
	record    Record
}

// loadProducts reads records back out of catalog.products in batch order:
// scraped_at then external_id, with never-scraped rows last.
func (s *Service) loadProducts(ctx context.Context, status string, platforms []string) ([]storedProduct, error) {
	const q = `
SELECT
	pr.product_id,
	pr.platform,
	pr.external_id,
	pr.source_spider,
	pr.title,
	pr.description,
	pr.brand,
	pr.model,
	pr.category,
	pr.subcategory,
	pr.current_price,
	pr.original_price,
	pr.discount_percentage,
	pr.currency,
	pr.rating,
	pr.review_count,
	pr.availability,
	pr.product_url,
	pr.language,
	pr.images,
	pr.specifications,
	pr.variations,
	pr.is_curated,
	pr.scraped_at
FROM catalog.products pr
WHERE pr.status = $1
  AND ($2::text[] IS NULL OR pr.platform = ANY($2))
ORDER BY pr.scraped_at ASC NULLS LAST, pr.external_id ASC, pr.product_id ASC
`

	var platformFilter any
	if len(platforms) > 0 {
		platformFilter = "{" + strings.Join(platforms, ",") + "}"
	}

	rows, err := s.pool.Query(ctx, q, status, platformFilter)
	if err != nil {
		return nil, fmt.Errorf("query %s products: %w", status, err)
	}
	defer rows.Close()

	products := make([]storedProduct, 0, 64)
	for rows.Next() {
		var (
			p          storedProduct
			discount   *float64
			images     []byte
			specs      []byte
			variations []byte
			scrapedAt  *time.Time
		)
		if err := rows.Scan(
			&p.productID,
			&p.record.Platform,
			&p.record.ExternalID,
			&p.record.SourceSpider,
			&p.record.Title,
			&p.record.Description,
			&p.record.Brand,
			&p.record.Model,
			&p.record.Category,
			&p.record.Subcategory,
			&p.record.CurrentPrice,
			&p.record.OriginalPrice,
			&discount,
			&p.record.Currency,
			&p.record.Rating,
			&p.record.ReviewCount,
			(*string)(&p.record.Availability),
			&p.record.ProductURL,
			&p.record.Language,
			&images,
			&specs,
			&variations,
			&p.record.IsCurated,
			&scrapedAt,
		); err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		if discount != nil {
			p.record.DiscountPercentage = *discount
		}
		if scrapedAt != nil {
			p.record.ScrapedAt = scrapedAt.UTC()
		}
		if len(images) > 0 {
			if err := json.Unmarshal(images, &p.record.Images); err != nil {
				return nil, fmt.Errorf("decode images for product %d: %w", p.productID, err)
			}
		}
		if len(specs) > 0 {
			if err := json.Unmarshal(specs, &p.record.Specifications); err != nil {
				return nil, fmt.Errorf("decode specifications for product %d: %w", p.productID, err)
			}
		}
		if len(variations) > 0 {
			if err := json.Unmarshal(variations, &p.record.Variations); err != nil {
				return nil, fmt.Errorf("decode variations for product %d: %w", p.productID, err)
			}
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s product rows: %w", status, err)
	}

	return products, nil
}

func markCanonicalTx(ctx context.Context, tx db.Tx, productID int64) error {
	const q = `
UPDATE catalog.products
SET
	status = 'canonical',
	discard_reason = NULL,
	updated_at = $2
WHERE product_id = $1
`
	if _, err := tx.Exec(ctx, q, productID, globaltime.UTC()); err != nil {
		return fmt.Errorf("mark product %d canonical: %w", productID, err)
	}
	return nil
}

func markDiscardedTx(ctx context.Context, tx db.Tx, productID int64, reason string) error {
	const q = `
UPDATE catalog.products
SET
	status = 'discarded',
	discard_reason = $2,
	updated_at = $3
WHERE product_id = $1
`
	if _, err := tx.Exec(ctx, q, productID, reason, globaltime.UTC()); err != nil {
		return fmt.Errorf("mark product %d discarded: %w", productID, err)
	}
	return nil
}

func resolveScrapedAt(scrapedAt *string, row rawProductRow) time.Time {
	if scrapedAt != nil {
		if ts, err := time.Parse(time.RFC3339, strings.TrimSpace(*scrapedAt)); err == nil {
			return ts.UTC()
		}
	}
	if row.ScrapedAt != nil {
		return row.ScrapedAt.UTC()
	}
	return row.FetchedAt.UTC()
}
