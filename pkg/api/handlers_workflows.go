package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ethpandaops/resultoor/pkg/github"
)

// githubTokenHeader carries a per-request token override for workflow
// fetches, taking precedence over persisted and configured tokens.
const githubTokenHeader = "X-GitHub-Token"

// handleWorkflowRuns proxies the recent runs of one GitHub Actions
// workflow.
func (s *server) handleWorkflowRuns(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	repo := chi.URLParam(r, "repo")
	workflow := chi.URLParam(r, "workflow")

	runs, err := s.github.ListWorkflowRuns(
		r.Context(), owner, repo, workflow,
		r.Header.Get(githubTokenHeader),
	)
	if err != nil {
		s.writeGitHubError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"workflow_runs": runs,
	})
}

// handleWorkflowJobs proxies the jobs of one workflow run.
func (s *server) handleWorkflowJobs(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	repo := chi.URLParam(r, "repo")

	runID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"run id must be an integer"})

		return
	}

	jobs, err := s.github.ListRunJobs(
		r.Context(), owner, repo, runID,
		r.Header.Get(githubTokenHeader),
	)
	if err != nil {
		s.writeGitHubError(w, err)

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"jobs": jobs,
	})
}

// writeGitHubError distinguishes quota exhaustion from other upstream
// failures so the UI can prompt for a token.
func (s *server) writeGitHubError(w http.ResponseWriter, err error) {
	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		resp := map[string]any{
			"error":        "github rate limit exceeded",
			"rate_limited": true,
		}

		if !rle.Reset.IsZero() {
			resp["reset_at"] = rle.Reset.UTC().Format(time.RFC3339)
		}

		writeJSON(w, http.StatusTooManyRequests, resp)

		return
	}

	s.log.WithError(err).Warn("GitHub workflow fetch failed")

	writeJSON(w, http.StatusBadGateway,
		errorResponse{"github fetch failed"})
}
