// Package sources provides read access to hive result directories
// stored in a backend (local filesystem, static HTTP endpoints, or
// S3). A directory contains a listing.jsonl run index, per-run detail
// files under results/, log files, and an optional hive.json metadata
// blob.
package sources

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/ethpandaops/resultoor/pkg/hive"
)

// listingFile is the run index inside every result directory.
const listingFile = "listing.jsonl"

// metaFile is the optional per-directory metadata blob.
const metaFile = "hive.json"

// maxListingLine bounds a single listing.jsonl line.
const maxListingLine = 4 * 1024 * 1024

// Directory is one discoverable result directory.
type Directory struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// DirectoryMeta is the loosely-typed hive.json metadata blob. Fields
// are optional and weakly typed in the wild, so decoding tolerates
// type variance instead of failing.
type DirectoryMeta struct {
	Name      string   `mapstructure:"name" json:"name,omitempty"`
	Branch    string   `mapstructure:"branch" json:"branch,omitempty"`
	Workflows []string `mapstructure:"workflows" json:"workflows,omitempty"`
}

// Reader provides read access to result directories without exposing
// the underlying storage details.
type Reader interface {
	// Directories returns all configured result directories, sorted
	// by name.
	Directories() []Directory

	// ListRuns parses the directory's listing.jsonl into run records.
	// A missing listing yields an empty slice, not an error.
	ListRuns(ctx context.Context, directory string) ([]hive.RunRecord, error)

	// GetTestDetail reads and decodes results/{fileName} for one run.
	// Returns (nil, nil) when the file does not exist.
	GetTestDetail(
		ctx context.Context, directory, fileName string,
	) (*hive.TestDetail, error)

	// GetFile reads an arbitrary file relative to the directory root.
	// Returns (nil, nil) when the file does not exist.
	GetFile(ctx context.Context, directory, name string) ([]byte, error)
}

// parseListing decodes listing.jsonl data into sanitized run records.
// Malformed lines are skipped so a single bad entry cannot take down
// the whole directory; the skipped count is returned for logging.
func parseListing(data []byte) ([]hive.RunRecord, int) {
	runs := make([]hive.RunRecord, 0, 64)
	skipped := 0

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), maxListingLine)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var run hive.RunRecord
		if err := json.Unmarshal(line, &run); err != nil {
			skipped++

			continue
		}

		run.Sanitize()
		runs = append(runs, run)
	}

	if scanner.Err() != nil {
		skipped++
	}

	return runs, skipped
}

// parseTestDetail decodes a per-run detail file.
func parseTestDetail(data []byte) (*hive.TestDetail, error) {
	var detail hive.TestDetail
	if err := json.Unmarshal(data, &detail); err != nil {
		return nil, fmt.Errorf("decoding test detail: %w", err)
	}

	if detail.TestCases == nil {
		detail.TestCases = map[string]hive.TestCase{}
	}

	return &detail, nil
}

// LoadMeta reads and decodes the directory's hive.json through the
// given reader. Returns (nil, nil) when no metadata file exists.
func LoadMeta(
	ctx context.Context, r Reader, directory string,
) (*DirectoryMeta, error) {
	data, err := r.GetFile(ctx, directory, metaFile)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", metaFile, err)
	}

	if data == nil {
		return nil, nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", metaFile, err)
	}

	var meta DirectoryMeta

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &meta,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, fmt.Errorf("building metadata decoder: %w", err)
	}

	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decoding metadata fields: %w", err)
	}

	return &meta, nil
}
