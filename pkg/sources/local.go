package sources

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ethpandaops/resultoor/pkg/config"
	"github.com/ethpandaops/resultoor/pkg/hive"
)

// Compile-time interface check.
var _ Reader = (*localReader)(nil)

type localReader struct {
	// paths maps directory names to absolute filesystem roots.
	paths map[string]string
}

// NewLocalReader creates a Reader backed by local filesystem
// directories.
func NewLocalReader(cfg *config.LocalSourceConfig) Reader {
	paths := make(map[string]string, len(cfg.DiscoveryPaths))
	maps.Copy(paths, cfg.DiscoveryPaths)

	return &localReader{paths: paths}
}

// Directories returns the configured directories sorted by name.
func (r *localReader) Directories() []Directory {
	dirs := make([]Directory, 0, len(r.paths))
	for name, root := range r.paths {
		dirs = append(dirs, Directory{Name: name, Address: root})
	}

	sort.Slice(dirs, func(i, j int) bool {
		return dirs[i].Name < dirs[j].Name
	})

	return dirs
}

// ListRuns parses {root}/listing.jsonl. A missing listing yields an
// empty slice.
func (r *localReader) ListRuns(
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

// GetTestDetail reads {root}/results/{fileName}.
func (r *localReader) GetTestDetail(
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

// GetFile reads {root}/{name}. Returns (nil, nil) when the file does
// not exist.
func (r *localReader) GetFile(
	_ context.Context, directory, name string,
) ([]byte, error) {
	root, ok := r.paths[directory]
	if !ok {
		return nil, fmt.Errorf("unknown directory: %q", directory)
	}

	if !isCleanRelPath(name) {
		return nil, fmt.Errorf("invalid file path: %q", name)
	}

	p := filepath.Join(root, filepath.FromSlash(name))

	data, err := os.ReadFile(p) //nolint:gosec // roots come from config
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading file %s: %w", p, err)
	}

	return data, nil
}

// isCleanRelPath rejects empty, absolute, or traversal paths.
func isCleanRelPath(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") {
		return false
	}

	if strings.Contains(name, "..") {
		return false
	}

	return true
}
