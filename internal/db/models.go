package db

import (
	"encoding/json"
	"time"
)

// IngestRun maps catalog.ingest_runs. One row per ingest invocation.
type IngestRun struct {
	RunID         int64      `gorm:"column:run_id;primaryKey;autoIncrement"`
	IngestRunUUID string     `gorm:"column:ingest_run_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	SourceSpider  string     `gorm:"column:source_spider;type:text;not null"`
	StartedAt     time.Time  `gorm:"column:started_at;type:timestamptz;not null;default:now()"`
	FinishedAt    *time.Time `gorm:"column:finished_at;type:timestamptz"`
	Status        string     `gorm:"column:status;type:text;not null;default:running"`
	ItemsFetched  int        `gorm:"column:items_fetched;type:integer;not null;default:0"`
	ItemsInserted int        `gorm:"column:items_inserted;type:integer;not null;default:0"`
	ErrorMessage  *string    `gorm:"column:error_message;type:text"`
	CreatedAt     time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (IngestRun) TableName() string { return "catalog.ingest_runs" }

// RawProduct maps catalog.raw_products: scraped payloads exactly as they
// arrived, keyed by platform, external id and payload hash so replayed
// scrapes of the same content collapse to one row.
type RawProduct struct {
	RawProductID   int64           `gorm:"column:raw_product_id;primaryKey;autoIncrement"`
	RawProductUUID string          `gorm:"column:raw_product_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	RunID          int64           `gorm:"column:run_id;type:bigint;not null"`
	Platform       string          `gorm:"column:platform;type:text;not null;uniqueIndex:uq_raw_products_identity,priority:1"`
	ExternalID     string          `gorm:"column:external_id;type:text;not null;uniqueIndex:uq_raw_products_identity,priority:2"`
	SourceSpider   string          `gorm:"column:source_spider;type:text;not null"`
	ScrapedAt      *time.Time      `gorm:"column:scraped_at;type:timestamptz"`
	RawPayload     json.RawMessage `gorm:"column:raw_payload;type:jsonb;not null"`
	PayloadHash    []byte          `gorm:"column:payload_hash;type:bytea;not null;uniqueIndex:uq_raw_products_identity,priority:3"`
	Status         string          `gorm:"column:status;type:text;not null;default:pending"`
	RejectRule     *string         `gorm:"column:reject_rule;type:text"`
	FetchedAt      time.Time       `gorm:"column:fetched_at;type:timestamptz;not null;default:now()"`
	CreatedAt      time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (RawProduct) TableName() string { return "catalog.raw_products" }

// Product maps catalog.products: the normalized record per
// (platform, external_id). Re-normalizing a fresher payload updates the
// row in place.
type Product struct {
	ProductID          int64           `gorm:"column:product_id;primaryKey;autoIncrement"`
	ProductUUID        string          `gorm:"column:product_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	RawProductID       int64           `gorm:"column:raw_product_id;type:bigint;not null"`
	Platform           string          `gorm:"column:platform;type:text;not null;uniqueIndex:uq_products_identity,priority:1"`
	ExternalID         string          `gorm:"column:external_id;type:text;not null;uniqueIndex:uq_products_identity,priority:2"`
	SourceSpider       string          `gorm:"column:source_spider;type:text;not null"`
	Title              string          `gorm:"column:title;type:text;not null"`
	Description        string          `gorm:"column:description;type:text;not null;default:''"`
	Brand              string          `gorm:"column:brand;type:text;not null;default:''"`
	Model              string          `gorm:"column:model;type:text;not null;default:''"`
	Category           string          `gorm:"column:category;type:text;not null;default:''"`
	Subcategory        string          `gorm:"column:subcategory;type:text;not null;default:''"`
	CurrentPrice       *float64        `gorm:"column:current_price;type:double precision"`
	OriginalPrice      *float64        `gorm:"column:original_price;type:double precision"`
	DiscountPercentage *float64        `gorm:"column:discount_percentage;type:double precision"`
	Currency           string          `gorm:"column:currency;type:text;not null;default:USD"`
	Rating             *float64        `gorm:"column:rating;type:double precision"`
	ReviewCount        *int            `gorm:"column:review_count;type:integer"`
	Availability       string          `gorm:"column:availability;type:text;not null;default:unknown"`
	ProductURL         string          `gorm:"column:product_url;type:text;not null"`
	Language           string          `gorm:"column:language;type:text;not null;default:und"`
	Images             json.RawMessage `gorm:"column:images;type:jsonb"`
	Specifications     json.RawMessage `gorm:"column:specifications;type:jsonb"`
	Variations         json.RawMessage `gorm:"column:variations;type:jsonb"`
	Fingerprint        string          `gorm:"column:fingerprint;type:text;not null"`
	IsCurated          bool            `gorm:"column:is_curated;type:boolean;not null;default:false"`
	Status             string          `gorm:"column:status;type:text;not null;default:pending"`
	DiscardReason      *string         `gorm:"column:discard_reason;type:text"`
	ScrapedAt          *time.Time      `gorm:"column:scraped_at;type:timestamptz"`
	CreatedAt          time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Product) TableName() string { return "catalog.products" }

// PriceHistory maps catalog.price_history. A row is appended whenever a
// product's current price changes between normalize passes.
type PriceHistory struct {
	PriceHistoryID int64     `gorm:"column:price_history_id;primaryKey;autoIncrement"`
	ProductID      int64     `gorm:"column:product_id;type:bigint;not null;index"`
	Price          float64   `gorm:"column:price;type:double precision;not null"`
	Currency       string    `gorm:"column:currency;type:text;not null"`
	ObservedAt     time.Time `gorm:"column:observed_at;type:timestamptz;not null;default:now()"`
}

func (PriceHistory) TableName() string { return "catalog.price_history" }

// PipelineRun maps catalog.pipeline_runs: one summary row per normalize,
// dedup or process invocation.
type PipelineRun struct {
	PipelineRunID   int64           `gorm:"column:pipeline_run_id;primaryKey;autoIncrement"`
	PipelineRunUUID string          `gorm:"column:pipeline_run_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Stage           string          `gorm:"column:stage;type:text;not null"`
	StartedAt       time.Time       `gorm:"column:started_at;type:timestamptz;not null;default:now()"`
	FinishedAt      *time.Time      `gorm:"column:finished_at;type:timestamptz"`
	Status          string          `gorm:"column:status;type:text;not null;default:running"`
	Summary         json.RawMessage `gorm:"column:summary;type:jsonb"`
	ErrorMessage    *string         `gorm:"column:error_message;type:text"`
}

func (PipelineRun) TableName() string { return "catalog.pipeline_runs" }

func autoMigrateModels() []any {
	return []any{
		&IngestRun{},
		&RawProduct{},
		&Product{},
		&PriceHistory{},
		&PipelineRun{},
	}
}
