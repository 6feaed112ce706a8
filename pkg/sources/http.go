package sources

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ethpandaops/resultoor/pkg/config"
	"github.com/ethpandaops/resultoor/pkg/hive"
)

const httpFetchTimeout = 30 * time.Second

// Compile-time interface check.
var _ Reader = (*httpReader)(nil)

type httpReader struct {
	// urls maps directory names to base URLs.
	urls   map[string]string
	client *http.Client
}

// NewHTTPReader creates a Reader that fetches result files from
// static JSON endpoints.
func NewHTTPReader(cfg *config.HTTPSourceConfig) Reader {
	urls := make(map[string]string, len(cfg.DiscoveryPaths))
	maps.Copy(urls, cfg.DiscoveryPaths)

	for name, u := range urls {
		urls[name] = strings.TrimRight(u, "/")
	}

	return &httpReader{
		urls:   urls,
		client: &http.Client{Timeout: httpFetchTimeout},
	}
}

// Directories returns the configured directories sorted by name.
func (r *httpReader) Directories() []Directory {
	dirs := make([]Directory, 0, len(r.urls))
	for name, u := range r.urls {
		dirs = append(dirs, Directory{Name: name, Address: u})
	}

	sort.Slice(dirs, func(i, j int) bool {
		return dirs[i].Name < dirs[j].Name
	})

	return dirs
}

// ListRuns fetches {base}/listing.jsonl. A missing listing yields an
// empty slice.
func (r *httpReader) ListRuns(
	ctx context.Context, directory string,
) ([]hive.RunRecord, error) {
	data, err := r.GetFile(ctx, directory, listingFile)
	if err != nil {
		return nil, err
	}

	if data == nil {
		return []hive.RunRecord{}, nil
	}

	runs, _ := parseListing(data)

	return runs, nil
}

// GetTestDetail fetches {base}/results/{fileName}.
func (r *httpReader) GetTestDetail(
	ctx context.Context, directory, fileName string,
) (*hive.TestDetail, error) {
	data, err := r.GetFile(ctx, directory, "results/"+fileName)
	if err != nil {
		return nil, err
	}

	if data == nil {
		return nil, nil
	}

	return parseTestDetail(data)
}

// GetFile fetches {base}/{name}. Returns (nil, nil) on 404.
func (r *httpReader) GetFile(
	ctx context.Context, directory, name string,
) ([]byte, error) {
	base, ok := r.urls[directory]
	if !ok {
		return nil, fmt.Errorf("unknown directory: %q", directory)
	}

	if !isCleanRelPath(name) {
		return nil, fmt.Errorf("invalid file path: %q", name)
	}

	url := base + "/" + name

	req, err := http.NewRequestWithContext(
		ctx, http.MethodGet, url, nil,
	)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(
			"fetching %s: unexpected status %d", url, resp.StatusCode,
		)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}

	return data, nil
}
