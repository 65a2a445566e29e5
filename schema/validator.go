package productschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed product_item.schema.json
var productItemSchemaJSON string

// ProductPayload is the v1 envelope produced by the scraping layer. The
// fields map is intentionally loose: values arrive as scalars or as
// single-element arrays depending on the extractor that emitted them.
type ProductPayload struct {
	PayloadVersion string                     `json:"payload_version"`
	Platform       string                     `json:"platform"`
	ExternalID     string                     `json:"external_id"`
	SourceSpider   string                     `json:"source_spider,omitempty"`
	ScrapedAt      *string                    `json:"scraped_at,omitempty"`
	Fields         map[string]json.RawMessage `json:"fields"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

func ValidateProductPayload(payload json.RawMessage) (*ProductPayload, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var item ProductPayload
	if err := json.Unmarshal(normalized, &item); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&item); err != nil {
		return nil, err
	}

	return &item, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("product_item.schema.json", strings.NewReader(productItemSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("product_item.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func validateSemantics(item *ProductPayload) error {
	if item == nil {
		return fmt.Errorf("payload is nil")
	}

	if strings.TrimSpace(item.PayloadVersion) != "v1" {
		return fmt.Errorf("payload_version must be v1")
	}
	if strings.TrimSpace(item.Platform) == "" {
		return fmt.Errorf("platform must not be empty")
	}
	if strings.TrimSpace(item.ExternalID) == "" {
		return fmt.Errorf("external_id must not be empty")
	}
	if len(item.Fields) == 0 {
		return fmt.Errorf("fields must not be empty")
	}

	if item.ScrapedAt != nil {
		if _, err := time.Parse(time.RFC3339, strings.TrimSpace(*item.ScrapedAt)); err != nil {
			return fmt.Errorf("scraped_at must be RFC3339: %w", err)
		}
	}

	if raw, ok := item.Fields["product_url"]; ok {
		var asString string
		if err := json.Unmarshal(raw, &asString); err == nil && strings.TrimSpace(asString) != "" {
			if _, err := url.ParseRequestURI(strings.TrimSpace(asString)); err != nil {
				return fmt.Errorf("fields.product_url is not a valid URI: %w", err)
			}
		}
	}

	return nil
}
