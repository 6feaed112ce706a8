package sources

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/resultoor/pkg/config"
)

func setupResultDir(t *testing.T) string {
	t.Helper()

	root := t.TempDir()

	listing := `{"name":"devp2p/discv4","fileName":"run-1.json","ntests":10,"passes":10,"fails":0,"clients":["geth"]}
not json at all
{"name":"devp2p/discv4","fileName":"run-2.json","ntests":10,"passes":8,"fails":2,"clients":["geth"]}
`
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "listing.jsonl"), []byte(listing), 0o600,
	))

	require.NoError(t, os.MkdirAll(filepath.Join(root, "results"), 0o700))

	detail := `{
		"name": "devp2p/discv4",
		"testCases": {
			"1": {"name": "Ping", "summaryResult": {"pass": true}}
		}
	}`
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "results", "run-1.json"), []byte(detail), 0o600,
	))

	meta := `{"name": "mainnet", "branch": "master", "workflows": [123, "456"]}`
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "hive.json"), []byte(meta), 0o600,
	))

	return root
}

func TestLocalReaderListRuns(t *testing.T) {
	root := setupResultDir(t)
	reader := NewLocalReader(&config.LocalSourceConfig{
		Enabled:        true,
		DiscoveryPaths: map[string]string{"mainnet": root},
	})

	runs, err := reader.ListRuns(context.Background(), "mainnet")
	require.NoError(t, err)

	// The malformed line is skipped, the two valid ones survive.
	require.Len(t, runs, 2)
	assert.Equal(t, "run-1.json", runs[0].FileName)
	assert.Equal(t, "run-2.json", runs[1].FileName)
	assert.Equal(t, 10, runs[0].Passes)
}

func TestLocalReaderListRunsMissingListing(t *testing.T) {
	reader := NewLocalReader(&config.LocalSourceConfig{
		Enabled:        true,
		DiscoveryPaths: map[string]string{"empty": t.TempDir()},
	})

	runs, err := reader.ListRuns(context.Background(), "empty")
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestLocalReaderGetTestDetail(t *testing.T) {
	root := setupResultDir(t)
	reader := NewLocalReader(&config.LocalSourceConfig{
		Enabled:        true,
		DiscoveryPaths: map[string]string{"mainnet": root},
	})

	detail, err := reader.GetTestDetail(
		context.Background(), "mainnet", "run-1.json",
	)
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, "devp2p/discv4", detail.Name)
	assert.True(t, detail.TestCases["1"].SummaryResult.Pass)

	missing, err := reader.GetTestDetail(
		context.Background(), "mainnet", "run-999.json",
	)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLocalReaderUnknownDirectory(t *testing.T) {
	reader := NewLocalReader(&config.LocalSourceConfig{
		Enabled:        true,
		DiscoveryPaths: map[string]string{"mainnet": t.TempDir()},
	})

	_, err := reader.ListRuns(context.Background(), "nope")
	assert.Error(t, err)
}

func TestLocalReaderRejectsTraversal(t *testing.T) {
	root := setupResultDir(t)
	reader := NewLocalReader(&config.LocalSourceConfig{
		Enabled:        true,
		DiscoveryPaths: map[string]string{"mainnet": root},
	})

	for _, name := range []string{"", "/etc/passwd", "../outside", "a/../../b"} {
		_, err := reader.GetFile(context.Background(), "mainnet", name)
		assert.Error(t, err, "path %q should be rejected", name)
	}
}

func TestLocalReaderDirectoriesSorted(t *testing.T) {
	reader := NewLocalReader(&config.LocalSourceConfig{
		Enabled: true,
		DiscoveryPaths: map[string]string{
			"zeta":  t.TempDir(),
			"alpha": t.TempDir(),
			"mid":   t.TempDir(),
		},
	})

	dirs := reader.Directories()
	require.Len(t, dirs, 3)
	assert.Equal(t, "alpha", dirs[0].Name)
	assert.Equal(t, "mid", dirs[1].Name)
	assert.Equal(t, "zeta", dirs[2].Name)
}

func TestLoadMetaWeakTyping(t *testing.T) {
	root := setupResultDir(t)
	reader := NewLocalReader(&config.LocalSourceConfig{
		Enabled:        true,
		DiscoveryPaths: map[string]string{"mainnet": root},
	})

	meta, err := LoadMeta(context.Background(), reader, "mainnet")
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, "mainnet", meta.Name)
	assert.Equal(t, "master", meta.Branch)

	// Numeric workflow IDs coerce to strings.
	assert.Equal(t, []string{"123", "456"}, meta.Workflows)
}

func TestLoadMetaMissing(t *testing.T) {
	reader := NewLocalReader(&config.LocalSourceConfig{
		Enabled:        true,
		DiscoveryPaths: map[string]string{"bare": t.TempDir()},
	})

	meta, err := LoadMeta(context.Background(), reader, "bare")
	require.NoError(t, err)
	assert.Nil(t, meta)
}
