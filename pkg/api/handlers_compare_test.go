package api

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/resultoor/pkg/config"
)

type compareResponse struct {
	By   string `json:"by"`
	Runs []struct {
		FileName string `json:"fileName"`
	} `json:"runs"`
	Rows []struct {
		ID      string         `json:"id"`
		Name    string         `json:"name"`
		Details map[string]any `json:"details"`
	} `json:"rows"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	TotalPages int `json:"total_pages"`
}

func TestCompare(t *testing.T) {
	_, router := setupServer(t, nil)

	var resp compareResponse

	rec := doJSON(
		t, router, http.MethodGet,
		"/api/v1/directories/mainnet/runs/compare?runs=run-1,run-2",
		nil, &resp,
	)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "id", resp.By)
	require.Len(t, resp.Runs, 2)
	assert.Equal(t, 2, resp.Total)

	// Both cases disagree across the two runs, so both rows carry
	// failures and sort by name within the failing block.
	require.Len(t, resp.Rows, 2)
	assert.Equal(t, "Findnode", resp.Rows[0].Name)
	assert.Equal(t, "Ping", resp.Rows[1].Name)
	assert.Len(t, resp.Rows[0].Details, 2)
}

func TestCompareByName(t *testing.T) {
	_, router := setupServer(t, nil)

	var resp compareResponse

	rec := doJSON(
		t, router, http.MethodGet,
		"/api/v1/directories/mainnet/runs/compare?runs=run-1,run-2&by=name",
		nil, &resp,
	)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "name", resp.By)
	assert.Len(t, resp.Rows, 2)
}

func TestCompareSearch(t *testing.T) {
	_, router := setupServer(t, nil)

	var resp compareResponse

	rec := doJSON(
		t, router, http.MethodGet,
		"/api/v1/directories/mainnet/runs/compare?runs=run-1,run-2&search=ping",
		nil, &resp,
	)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "Ping", resp.Rows[0].Name)
	assert.Equal(t, 1, resp.Total)
}

func TestCompareRejectsMissingRunsParam(t *testing.T) {
	_, router := setupServer(t, nil)

	rec := doJSON(
		t, router, http.MethodGet,
		"/api/v1/directories/mainnet/runs/compare", nil, nil,
	)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompareUnknownRun(t *testing.T) {
	_, router := setupServer(t, nil)

	rec := doJSON(
		t, router, http.MethodGet,
		"/api/v1/directories/mainnet/runs/compare?runs=run-1,run-99",
		nil, nil,
	)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCompareSkipsRunsWithoutDetail(t *testing.T) {
	_, router := setupServer(t, nil)

	// run-3 is listed but has no detail file; the comparison proceeds
	// with the runs that resolved.
	var resp compareResponse

	rec := doJSON(
		t, router, http.MethodGet,
		"/api/v1/directories/mainnet/runs/compare?runs=run-1,run-3",
		nil, &resp,
	)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resp.Runs, 2)
	require.Len(t, resp.Rows, 2)

	for _, row := range resp.Rows {
		assert.Len(t, row.Details, 1)
	}
}

func TestCompareCorruptDetailSkipped(t *testing.T) {
	root := t.TempDir()
	writeRunFixtures(t, root)

	require.NoError(t, os.WriteFile(
		filepath.Join(root, "results", "run-2.json"),
		[]byte("{not json"), 0o600,
	))

	_, router := setupServer(t, func(cfg *config.APIConfig) {
		cfg.Sources.Local.DiscoveryPaths = map[string]string{"mainnet": root}
	})

	var resp compareResponse

	rec := doJSON(
		t, router, http.MethodGet,
		"/api/v1/directories/mainnet/runs/compare?runs=run-1,run-2",
		nil, &resp,
	)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, resp.Rows, 2)

	for _, row := range resp.Rows {
		assert.Len(t, row.Details, 1)
	}
}
