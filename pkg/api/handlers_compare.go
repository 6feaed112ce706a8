package api

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/resultoor/pkg/engine"
	"github.com/ethpandaops/resultoor/pkg/hive"
)

// compareFetchConcurrency bounds parallel detail fetches for one
// comparison request.
const compareFetchConcurrency = 4

// handleCompare builds the cross-run comparison matrix for the
// selected runs.
//
// Query parameters: runs (comma-joined run ids, fileName without
// extension), by (id or name), search (row name filter), page and
// limit.
func (s *server) handleCompare(w http.ResponseWriter, r *http.Request) {
	directory := chi.URLParam(r, "directory")
	q := r.URL.Query()

	ids := engine.DecodeRunIDs(q.Get("runs"))
	if len(ids) == 0 {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"runs parameter is required"})

		return
	}

	groupBy := engine.CompareByID

	if by := q.Get("by"); by != "" {
		if !engine.ValidCompareMode(by) {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"compare mode must be id or name"})

			return
		}

		groupBy = engine.CompareMode(by)
	}

	listing, err := s.reader.ListRuns(r.Context(), directory)
	if err != nil {
		s.log.WithError(err).
			WithField("directory", directory).
			Warn("Failed to list runs")

		writeJSON(w, http.StatusBadGateway,
			errorResponse{"listing runs failed"})

		return
	}

	byFileName := make(map[string]hive.RunRecord, len(listing))
	for _, run := range listing {
		byFileName[run.FileName] = run
	}

	selected := make([]hive.RunRecord, 0, len(ids))

	for _, id := range ids {
		run, ok := byFileName[id+detailExtension]
		if !ok {
			writeJSON(w, http.StatusNotFound,
				errorResponse{"unknown run: " + id})

			return
		}

		selected = append(selected, run)
	}

	details := s.fetchDetails(r, directory, selected)

	rows := engine.BuildMatrix(selected, details, groupBy)
	page := engine.FilterRows(rows, q.Get("search"), pageFromQuery(r))

	runs := make([]runView, 0, len(selected))
	for _, run := range selected {
		runs = append(runs, toRunView(run))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"by":          groupBy,
		"runs":        runs,
		"rows":        page.Rows,
		"total":       page.Total,
		"page":        page.Page,
		"total_pages": page.TotalPages,
	})
}

// fetchDetails fetches the selected runs' detail files concurrently.
// A failed or missing detail omits that run from the matrix instead
// of failing the comparison.
func (s *server) fetchDetails(
	r *http.Request,
	directory string,
	selected []hive.RunRecord,
) map[string]*hive.TestDetail {
	var (
		mu      sync.Mutex
		details = make(map[string]*hive.TestDetail, len(selected))
	)

	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(compareFetchConcurrency)

	for _, run := range selected {
		g.Go(func() error {
			detail, err := s.reader.GetTestDetail(
				ctx, directory, run.FileName,
			)
			if err != nil || detail == nil {
				if err != nil {
					s.log.WithError(err).
						WithField("file_name", run.FileName).
						Warn("Skipping run with failed detail fetch")
				}

				return nil //nolint:nilerr // skip and continue
			}

			mu.Lock()
			details[run.FileName] = detail
			mu.Unlock()

			return nil
		})
	}

	_ = g.Wait()

	return details
}
