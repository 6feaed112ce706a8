package api

import (
	"fmt"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/resultoor/pkg/config"
)

// localFileServer serves result and log files directly from the local
// filesystem. Request paths start with a directory name followed by a
// path relative to that directory's root.
type localFileServer struct {
	log   logrus.FieldLogger
	roots map[string]string
}

// newLocalFileServer creates a new local file server from the given config.
func newLocalFileServer(
	log logrus.FieldLogger,
	cfg *config.LocalSourceConfig,
) *localFileServer {
	roots := make(map[string]string, len(cfg.DiscoveryPaths))
	for name, root := range cfg.DiscoveryPaths {
		roots[name] = filepath.Clean(root)
	}

	return &localFileServer{
		log:   log.WithField("component", "local-file-server"),
		roots: roots,
	}
}

// ServeFile resolves filePath against its directory's root and serves
// it via http.ServeFile. Returns an error when the path is disallowed
// or not found.
func (l *localFileServer) ServeFile(
	w http.ResponseWriter,
	r *http.Request,
	filePath string,
) error {
	if !isAllowedFilePath(filePath) {
		return fmt.Errorf("path %q is not allowed", filePath)
	}

	directory, rel, ok := strings.Cut(filePath, "/")
	if !ok || rel == "" {
		return fmt.Errorf("path %q has no file component", filePath)
	}

	root, ok := l.roots[directory]
	if !ok {
		return fmt.Errorf("unknown directory: %q", directory)
	}

	full := filepath.Join(root, filepath.FromSlash(rel))

	// The resolved path must stay under the directory root.
	if !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes its root", filePath)
	}

	if _, err := os.Stat(full); err != nil {
		return fmt.Errorf("file %q not found", filePath)
	}

	http.ServeFile(w, r, full)

	return nil
}

// isAllowedFilePath rejects empty, absolute, unclean, or traversal
// request paths.
func isAllowedFilePath(filePath string) bool {
	if filePath == "" {
		return false
	}

	if strings.Contains(filePath, "..") {
		return false
	}

	if filepath.IsAbs(filePath) {
		return false
	}

	return path.Clean(filePath) == filePath
}
