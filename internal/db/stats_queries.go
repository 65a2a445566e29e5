package db

import (
	"context"
	"fmt"
)

// StatsPlatformCount stores per-platform pipeline counts.
type StatsPlatformCount struct {
	Platform  string `json:"platform"`
	Raw       int64  `json:"raw"`
	Products  int64  `json:"products"`
	Canonical int64  `json:"canonical"`
	Discarded int64  `json:"discarded"`
	Curated   int64  `json:"curated"`
}

// StatsTotals stores totals across platforms.
type StatsTotals struct {
	Raw       int64 `json:"raw"`
	Products  int64 `json:"products"`
	Canonical int64 `json:"canonical"`
	Discarded int64 `json:"discarded"`
	Curated   int64 `json:"curated"`
}

// StatsBacklog stores the pending counters the process loop drains.
type StatsBacklog struct {
	RawPending      int64 `json:"raw_pending"`
	RawRejected     int64 `json:"raw_rejected"`
	ProductsPending int64 `json:"products_pending"`
}

// CatalogStats is the read model returned by the stats command.
type CatalogStats struct {
	Platforms []StatsPlatformCount `json:"platforms"`
	Totals    StatsTotals          `json:"totals"`
	Backlog   StatsBacklog         `json:"backlog"`
}

// QueryCatalogStats returns per-platform and total counts plus backlog depth.
func (p *Pool) QueryCatalogStats(ctx context.Context) (*CatalogStats, error) {
	stats := &CatalogStats{
		Platforms: make([]StatsPlatformCount, 0, 8),
	}

	const countsQuery = `
WITH raw_counts AS (
	SELECT rp.platform, COUNT(*)::BIGINT AS raw
	FROM catalog.raw_products rp
	GROUP BY rp.platform
),
product_counts AS (
	SELECT
		pr.platform,
		COUNT(*)::BIGINT AS products,
		COUNT(*) FILTER (WHERE pr.status = 'canonical')::BIGINT AS canonical,
		COUNT(*) FILTER (WHERE pr.status = 'discarded')::BIGINT AS discarded,
		COUNT(*) FILTER (WHERE pr.is_curated)::BIGINT AS curated
	FROM catalog.products pr
	GROUP BY pr.platform
)
SELECT
	COALESCE(r.platform, pr.platform) AS platform,
	COALESCE(r.raw, 0) AS raw,
	COALESCE(pr.products, 0) AS products,
	COALESCE(pr.canonical, 0) AS canonical,
	COALESCE(pr.discarded, 0) AS discarded,
	COALESCE(pr.curated, 0) AS curated
FROM raw_counts r
FULL OUTER JOIN product_counts pr
	ON pr.platform = r.platform
ORDER BY 1
`

	rows, err := p.Query(ctx, countsQuery)
	if err != nil {
		return nil, fmt.Errorf("query stats platform counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row StatsPlatformCount
		if err := rows.Scan(&row.Platform, &row.Raw, &row.Products, &row.Canonical, &row.Discarded, &row.Curated); err != nil {
			return nil, fmt.Errorf("scan stats platform row: %w", err)
		}
		stats.Platforms = append(stats.Platforms, row)
		stats.Totals.Raw += row.Raw
		stats.Totals.Products += row.Products
		stats.Totals.Canonical += row.Canonical
		stats.Totals.Discarded += row.Discarded
		stats.Totals.Curated += row.Curated
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats platform rows: %w", err)
	}

	const backlogQuery = `
SELECT
	(SELECT COUNT(*) FROM catalog.raw_products rp WHERE rp.status = 'pending') AS raw_pending,
	(SELECT COUNT(*) FROM catalog.raw_products rp WHERE rp.status = 'rejected') AS raw_rejected,
	(SELECT COUNT(*) FROM catalog.products pr WHERE pr.status = 'pending') AS products_pending
`

	if err := p.QueryRow(ctx, backlogQuery).Scan(
		&stats.Backlog.RawPending,
		&stats.Backlog.RawRejected,
		&stats.Backlog.ProductsPending,
	); err != nil {
		return nil, fmt.Errorf("query stats backlog: %w", err)
	}

	return stats, nil
}
