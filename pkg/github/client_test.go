package github

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/resultoor/pkg/config"
)

func newTestClient(
	t *testing.T, handler http.Handler, tokenFn TokenSource,
) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	client, err := NewClient(log, &config.GitHubConfig{
		BaseURL:           srv.URL,
		Token:             "config-token",
		CacheTTL:          "60s",
		RequestsPerMinute: 6000,
	}, tokenFn)
	require.NoError(t, err)

	return client, srv
}

func TestListWorkflowRuns(t *testing.T) {
	var calls atomic.Int64

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		assert.Equal(t,
			"/repos/ethereum/hive/actions/workflows/ci.yml/runs",
			r.URL.Path,
		)
		assert.Equal(t, "Bearer config-token", r.Header.Get("Authorization"))

		_, _ = w.Write([]byte(`{
			"total_count": 1,
			"workflow_runs": [
				{"id": 42, "name": "ci", "status": "completed",
				 "conclusion": "success", "head_branch": "master"}
			]
		}`))
	})

	client, _ := newTestClient(t, handler, nil)

	runs, err := client.ListWorkflowRuns(
		context.Background(), "ethereum", "hive", "ci.yml", "",
	)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, int64(42), runs[0].ID)
	assert.Equal(t, "success", runs[0].Conclusion)

	// A second identical call is served from cache.
	_, err = client.ListWorkflowRuns(
		context.Background(), "ethereum", "hive", "ci.yml", "",
	)
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())
}

func TestListRunJobs(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t,
			"/repos/ethereum/hive/actions/runs/42/jobs", r.URL.Path,
		)

		_, _ = w.Write([]byte(`{
			"total_count": 2,
			"jobs": [
				{"id": 1, "run_id": 42, "name": "build", "conclusion": "success"},
				{"id": 2, "run_id": 42, "name": "test", "conclusion": "failure"}
			]
		}`))
	})

	client, _ := newTestClient(t, handler, nil)

	jobs, err := client.ListRunJobs(
		context.Background(), "ethereum", "hive", 42, "",
	)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "failure", jobs[1].Conclusion)
}

func TestTokenPrecedence(t *testing.T) {
	var seen atomic.Value

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"workflow_runs": []}`))
	})

	stored := TokenSource(func(context.Context) string {
		return "stored-token"
	})

	client, _ := newTestClient(t, handler, stored)

	// Persisted setting beats the config fallback.
	_, err := client.ListWorkflowRuns(
		context.Background(), "o", "r", "a.yml", "",
	)
	require.NoError(t, err)
	assert.Equal(t, "Bearer stored-token", seen.Load())

	// Request override beats everything.
	_, err = client.ListWorkflowRuns(
		context.Background(), "o", "r", "b.yml", "override-token",
	)
	require.NoError(t, err)
	assert.Equal(t, "Bearer override-token", seen.Load())
}

func TestRateLimitError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", "1700000000")
		w.WriteHeader(http.StatusForbidden)
	})

	client, _ := newTestClient(t, handler, nil)

	_, err := client.ListWorkflowRuns(
		context.Background(), "o", "r", "ci.yml", "",
	)
	require.Error(t, err)

	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, int64(1700000000), rle.Reset.Unix())
}

func TestForbiddenWithoutRateLimitIsGeneric(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "4999")
		w.WriteHeader(http.StatusForbidden)
	})

	client, _ := newTestClient(t, handler, nil)

	_, err := client.ListWorkflowRuns(
		context.Background(), "o", "r", "ci.yml", "",
	)
	require.Error(t, err)

	var rle *RateLimitError
	assert.False(t, errors.As(err, &rle))
	assert.Contains(t, err.Error(), "status 403")
}

func TestErrorsNotCached(t *testing.T) {
	var calls atomic.Int64

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)

			return
		}

		_, _ = w.Write([]byte(`{"workflow_runs": [{"id": 1}]}`))
	})

	client, _ := newTestClient(t, handler, nil)

	_, err := client.ListWorkflowRuns(
		context.Background(), "o", "r", "ci.yml", "",
	)
	require.Error(t, err)

	runs, err := client.ListWorkflowRuns(
		context.Background(), "o", "r", "ci.yml", "",
	)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
