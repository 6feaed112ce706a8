package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ethpandaops/resultoor/pkg/api/indexstore"
	"github.com/ethpandaops/resultoor/pkg/engine"
	"github.com/ethpandaops/resultoor/pkg/hive"
	"github.com/ethpandaops/resultoor/pkg/sources"
)

// detailExtension is appended to a run's URL identifier to recover
// its backing file name. Runs are addressed in URLs by fileName
// without the extension.
const detailExtension = ".json"

// runView is a RunRecord enriched with its derived status and pass
// rate for rendering.
type runView struct {
	hive.RunRecord

	Status   hive.StatusBucket `json:"status"`
	PassRate float64           `json:"passRate"`
}

func toRunView(run hive.RunRecord) runView {
	return runView{
		RunRecord: run,
		Status:    hive.Status(&run),
		PassRate:  run.PassRate(),
	}
}

// handleListDirectories returns the configured result directories.
func (s *server) handleListDirectories(
	w http.ResponseWriter, _ *http.Request,
) {
	writeJSON(w, http.StatusOK, map[string]any{
		"directories": s.reader.Directories(),
	})
}

// handleDirectoryMeta returns the directory's hive.json metadata.
func (s *server) handleDirectoryMeta(
	w http.ResponseWriter, r *http.Request,
) {
	directory := chi.URLParam(r, "directory")

	meta, err := sources.LoadMeta(r.Context(), s.reader, directory)
	if err != nil {
		s.log.WithError(err).
			WithField("directory", directory).
			Warn("Failed to load directory metadata")

		writeJSON(w, http.StatusBadGateway,
			errorResponse{"loading directory metadata failed"})

		return
	}

	if meta == nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"no metadata for directory"})

		return
	}

	writeJSON(w, http.StatusOK, meta)
}

// handleListRuns returns one filtered, sorted, paginated page of the
// directory's runs.
//
// Query parameters: name and client (substring filters), test (exact
// name), clients and status (repeatable set filters), sort and order,
// page and limit.
func (s *server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	directory := chi.URLParam(r, "directory")

	runs, err := s.reader.ListRuns(r.Context(), directory)
	if err != nil {
		s.log.WithError(err).
			WithField("directory", directory).
			Warn("Failed to list runs")

		writeJSON(w, http.StatusBadGateway,
			errorResponse{"listing runs failed"})

		return
	}

	q := r.URL.Query()

	filters := engine.Filters{
		NameContains:   q.Get("name"),
		ClientContains: q.Get("client"),
		NameExact:      q.Get("test"),
	}

	for _, c := range q["clients"] {
		if c != "" {
			filters.Clients = append(filters.Clients, c)
		}
	}

	for _, st := range q["status"] {
		if !hive.ValidStatus(st) {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"unknown status bucket: " + st})

			return
		}

		filters.Statuses = append(
			filters.Statuses, hive.StatusBucket(st),
		)
	}

	sortBy := engine.DefaultSort(engine.SortByDate)

	if field := q.Get("sort"); field != "" {
		if !engine.ValidSortField(field) {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"unknown sort field: " + field})

			return
		}

		sortBy = engine.DefaultSort(engine.SortField(field))
	}

	switch q.Get("order") {
	case "":
	case "asc":
		sortBy.Descending = false
	case "desc":
		sortBy.Descending = true
	default:
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"order must be asc or desc"})

		return
	}

	result := engine.Apply(runs, filters, sortBy, pageFromQuery(r))

	items := make([]runView, 0, len(result.Items))
	for _, run := range result.Items {
		items = append(items, toRunView(run))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":       items,
		"total":       result.Total,
		"page":        result.Page,
		"total_pages": result.TotalPages,
	})
}

// handleGroupedRuns returns the directory's runs partitioned by test
// name or client set, deduplicated to the most recent run per (test,
// client-set) pair.
func (s *server) handleGroupedRuns(w http.ResponseWriter, r *http.Request) {
	directory := chi.URLParam(r, "directory")

	mode := engine.GroupByTest

	if by := r.URL.Query().Get("by"); by != "" {
		if !engine.ValidGroupMode(by) {
			writeJSON(w, http.StatusBadRequest,
				errorResponse{"group mode must be test or client"})

			return
		}

		mode = engine.GroupMode(by)
	}

	runs, err := s.reader.ListRuns(r.Context(), directory)
	if err != nil {
		s.log.WithError(err).
			WithField("directory", directory).
			Warn("Failed to list runs")

		writeJSON(w, http.StatusBadGateway,
			errorResponse{"listing runs failed"})

		return
	}

	groups := engine.Group(runs, mode)

	out := make(map[string][]runView, len(groups))

	for key, members := range groups {
		views := make([]runView, 0, len(members))
		for _, run := range members {
			views = append(views, toRunView(run))
		}

		out[key] = views
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"by":     mode,
		"groups": out,
	})
}

// handleRunDetail returns the full test-case breakdown for one run.
// The run is addressed by its fileName without extension.
func (s *server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	directory := chi.URLParam(r, "directory")
	fileName := chi.URLParam(r, "run") + detailExtension

	detail, err := s.reader.GetTestDetail(r.Context(), directory, fileName)
	if err != nil {
		s.log.WithError(err).
			WithField("file_name", fileName).
			Warn("Failed to fetch test detail")

		writeJSON(w, http.StatusBadGateway,
			errorResponse{"fetching test detail failed"})

		return
	}

	if detail == nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"run not found"})

		return
	}

	writeJSON(w, http.StatusOK, detail)
}

// handleRunDiff returns the run together with its pass delta against
// the immediately preceding run of the same test identity. The diff
// is null for a first-ever run.
func (s *server) handleRunDiff(w http.ResponseWriter, r *http.Request) {
	directory := chi.URLParam(r, "directory")
	fileName := chi.URLParam(r, "run") + detailExtension

	runs, err := s.reader.ListRuns(r.Context(), directory)
	if err != nil {
		s.log.WithError(err).
			WithField("directory", directory).
			Warn("Failed to list runs")

		writeJSON(w, http.StatusBadGateway,
			errorResponse{"listing runs failed"})

		return
	}

	var run *hive.RunRecord

	for i := range runs {
		if runs[i].FileName == fileName {
			run = &runs[i]

			break
		}
	}

	if run == nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"run not found"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run":  toRunView(*run),
		"diff": engine.Diff(run, runs),
	})
}

// handleCaseHistory returns the indexed outcomes of one named test
// case across the directory's runs.
func (s *server) handleCaseHistory(w http.ResponseWriter, r *http.Request) {
	directory := chi.URLParam(r, "directory")
	caseName := chi.URLParam(r, "case")

	history, err := s.indexStore.ListCaseHistory(
		r.Context(), directory, caseName,
	)
	if err != nil {
		s.log.WithError(err).
			WithField("case", caseName).
			Warn("Failed to list case history")

		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing case history failed"})

		return
	}

	if history == nil {
		history = []indexstore.CaseResult{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"case":    caseName,
		"history": history,
	})
}

// pageFromQuery reads page and limit query parameters. Invalid or
// missing values fall back to defaults; limits outside the allowed
// page sizes fall back to the default size.
func pageFromQuery(r *http.Request) engine.Page {
	q := r.URL.Query()

	number := 1
	if n, err := strconv.Atoi(q.Get("page")); err == nil && n > 0 {
		number = n
	}

	size := engine.DefaultPageSize
	if n, err := strconv.Atoi(q.Get("limit")); err == nil {
		size = engine.NormalizePageSize(n)
	}

	return engine.Page{Number: number, Size: size}
}
