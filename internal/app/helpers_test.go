package app

import (
	"os"
	"path/filepath"
	"testing"

	"horse.fit/shelf/internal/config"
	"horse.fit/shelf/internal/pipeline"
)

func TestParseOutputFormat(t *testing.T) {
	t.Parallel()

	format, err := parseOutputFormat("", outputFormatTable)
	if err != nil || format != outputFormatTable {
		t.Fatalf("parseOutputFormat(empty) = %q, %v", format, err)
	}
	format, err = parseOutputFormat(" JSON ", outputFormatTable)
	if err != nil || format != outputFormatJSON {
		t.Fatalf("parseOutputFormat(json) = %q, %v", format, err)
	}
	if _, err := parseOutputFormat("yaml", outputFormatTable); err == nil {
		t.Fatalf("parseOutputFormat(yaml) should fail")
	}
}

func TestLoadJSONInputInline(t *testing.T) {
	t.Parallel()

	raw, err := loadJSONInput(`{"a": 1}`, "", "payload")
	if err != nil {
		t.Fatalf("loadJSONInput() failed: %v", err)
	}
	if string(raw) != `{"a": 1}` {
		t.Fatalf("loadJSONInput() = %s", raw)
	}

	if _, err := loadJSONInput("", "", "payload"); err == nil {
		t.Fatalf("loadJSONInput(empty) should fail")
	}
	if _, err := loadJSONInput("{broken", "", "payload"); err == nil {
		t.Fatalf("loadJSONInput(broken) should fail")
	}
}

func TestLoadJSONInputFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "payload.json")
	if err := os.WriteFile(path, []byte(`{"a": 1}`), 0o644); err != nil {
		t.Fatalf("write payload file: %v", err)
	}

	raw, err := loadJSONInput("", path, "payload")
	if err != nil {
		t.Fatalf("loadJSONInput(file) failed: %v", err)
	}
	if string(raw) != `{"a": 1}` {
		t.Fatalf("loadJSONInput(file) = %s", raw)
	}

	if _, err := loadJSONInput("", filepath.Join(t.TempDir(), "absent.json"), "payload"); err == nil {
		t.Fatalf("loadJSONInput(missing file) should fail")
	}
}

func TestPipelineOptions(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		SimilarityThreshold: 0.9,
		GroupingMode:        "transitive",
		MultiValuePolicy:    "reject",
		DedupWorkers:        4,
	}

	opts, err := pipelineOptions(cfg)
	if err != nil {
		t.Fatalf("pipelineOptions() failed: %v", err)
	}
	if opts.Threshold != 0.9 {
		t.Fatalf("Threshold = %v", opts.Threshold)
	}
	if opts.Mode != pipeline.GroupTransitive {
		t.Fatalf("Mode = %q", opts.Mode)
	}
	if opts.Policy != pipeline.MultiValueReject {
		t.Fatalf("Policy = %q", opts.Policy)
	}
	if opts.Rules == nil {
		t.Fatalf("Rules not loaded")
	}
}

func TestPipelineOptionsBadGroupingMode(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{GroupingMode: "clustered"}
	if _, err := pipelineOptions(cfg); err == nil {
		t.Fatalf("pipelineOptions(bad mode) should fail")
	}
}
