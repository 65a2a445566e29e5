package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"horse.fit/shelf/internal/config"
	"horse.fit/shelf/internal/pipeline"
	"horse.fit/shelf/internal/rules"
)

const (
	outputFormatTable = "table"
	outputFormatJSON  = "json"
)

func parseOutputFormat(raw, defaultFormat string) (string, error) {
	format := strings.TrimSpace(strings.ToLower(raw))
	if format == "" {
		format = strings.TrimSpace(strings.ToLower(defaultFormat))
	}
	switch format {
	case outputFormatTable, outputFormatJSON:
		return format, nil
	default:
		return "", fmt.Errorf("--format must be table or json")
	}
}

func loadJSONInput(inline, filePath, label string) (json.RawMessage, error) {
	if strings.TrimSpace(filePath) != "" {
		var raw []byte
		var err error
		if strings.TrimSpace(filePath) == "-" {
			raw, err = io.ReadAll(os.Stdin)
		} else {
			raw, err = os.ReadFile(strings.TrimSpace(filePath))
		}
		if err != nil {
			return nil, fmt.Errorf("read %s file: %w", label, err)
		}
		if !json.Valid(raw) {
			return nil, fmt.Errorf("%s file is not valid JSON", label)
		}
		return json.RawMessage(raw), nil
	}

	trimmed := strings.TrimSpace(inline)
	if trimmed == "" {
		return nil, fmt.Errorf("%s is empty", label)
	}
	if !json.Valid([]byte(trimmed)) {
		return nil, fmt.Errorf("%s is not valid JSON", label)
	}
	return json.RawMessage(trimmed), nil
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func writeTable(headers []string, rows [][]string) error {
	writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(writer, strings.Join(headers, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(writer, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return writer.Flush()
}

// pipelineOptions resolves the rule set and the dedup tunables from config.
func pipelineOptions(cfg *config.Config) (pipeline.Options, error) {
	ruleSet, err := rules.Load(cfg.RulesFile)
	if err != nil {
		return pipeline.Options{}, fmt.Errorf("load curation rules: %w", err)
	}

	policy, err := pipeline.ParseMultiValuePolicy(cfg.MultiValuePolicy)
	if err != nil {
		return pipeline.Options{}, err
	}

	mode, err := pipeline.ParseGroupingMode(cfg.GroupingMode)
	if err != nil {
		return pipeline.Options{}, err
	}

	return pipeline.Options{
		Rules:     ruleSet,
		Policy:    policy,
		Threshold: cfg.SimilarityThreshold,
		Mode:      mode,
		Workers:   cfg.DedupWorkers,
	}, nil
}
