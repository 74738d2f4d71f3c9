package source

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/spigell/jobmatch/internal/jobs"
)

// ErrUnexpectedShape is returned when a file holds neither a list of records nor
// an object wrapping one.
var ErrUnexpectedShape = errors.New("unexpected document shape")

// wrapperKeys are accepted top-level keys holding the posting list.
var wrapperKeys = []string{"items", "postings", "jobs"}

// LoadPostingRecords reads raw posting records from a JSON or YAML file.
func LoadPostingRecords(path string) ([]jobs.Record, error) {
	var doc any
	if err := readDocument(path, &doc); err != nil {
		return nil, err
	}

	return recordsFrom(doc)
}

// LoadResume reads and decodes a resume from a JSON or YAML file.
func LoadResume(path string) (*jobs.Resume, error) {
	var doc any
	if err := readDocument(path, &doc); err != nil {
		return nil, err
	}

	record, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("resume %s: %w: want an object, got %T", path, ErrUnexpectedShape, doc)
	}

	resume, err := jobs.DecodeResume(record)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", path, err)
	}
	return resume, nil
}

// ParseRecords decodes raw posting records from JSON or YAML bytes.
func ParseRecords(data []byte) ([]jobs.Record, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse records: %w", err)
	}
	return recordsFrom(doc)
}

func readDocument(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	// JSON is a subset of YAML, one decoder serves both.
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func recordsFrom(doc any) ([]jobs.Record, error) {
	switch v := doc.(type) {
	case nil:
		return nil, nil
	case []any:
		return toRecords(v)
	case map[string]any:
		for _, key := range wrapperKeys {
			if items, ok := v[key]; ok {
				list, ok := items.([]any)
				if !ok && items != nil {
					return nil, fmt.Errorf("%w: %q is %T", ErrUnexpectedShape, key, items)
				}
				return toRecords(list)
			}
		}
		return nil, fmt.Errorf("%w: object without items", ErrUnexpectedShape)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnexpectedShape, doc)
	}
}

// toRecords keeps the position of every element so rejected records can be
// reported by index. Non-object elements become empty records.
func toRecords(items []any) ([]jobs.Record, error) {
	records := make([]jobs.Record, 0, len(items))
	for _, item := range items {
		record, ok := item.(map[string]any)
		if !ok {
			record = jobs.Record{}
		}
		records = append(records, record)
	}
	return records, nil
}
