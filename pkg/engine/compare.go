package engine

import (
	"sort"
	"strings"

	"github.com/ethpandaops/resultoor/pkg/hive"
)

// CompareMode selects how comparison rows are correlated across runs.
type CompareMode string

const (
	// CompareByID correlates test cases by their stable case id.
	CompareByID CompareMode = "id"

	// CompareByName correlates test cases by display name, for runs
	// whose case ids are not stable across executions.
	CompareByName CompareMode = "name"
)

// ValidCompareMode reports whether m names a known compare mode.
func ValidCompareMode(m string) bool {
	return CompareMode(m) == CompareByID || CompareMode(m) == CompareByName
}

// ComparisonRow is one row of the comparison matrix: a single test
// case with its per-run outcomes. Details holds an entry per selected
// run (keyed by the run's fileName) only where the case occurred.
type ComparisonRow struct {
	ID      string                   `json:"id"`
	Name    string                   `json:"name"`
	Details map[string]hive.TestCase `json:"details"`
}

// FailCount returns the number of runs in which this row's case failed.
func (r *ComparisonRow) FailCount() int {
	n := 0

	for _, tc := range r.Details {
		if !tc.SummaryResult.Pass {
			n++
		}
	}

	return n
}

// Unanimous reports whether every populated result agrees. Rows with
// at most one populated detail are trivially unanimous.
func (r *ComparisonRow) Unanimous() bool {
	if len(r.Details) <= 1 {
		return true
	}

	return r.FailCount() == 0 || r.FailCount() == len(r.Details)
}

// BuildMatrix produces the comparison matrix for the selected runs
// from their fetched details. Runs without an entry in details (e.g. a
// failed detail fetch) are simply absent from every row. Rows are
// sorted to surface failures and divergent outcomes first: rows with
// at least one failure precede rows with none, higher failure counts
// precede lower ones, non-unanimous rows precede unanimous ones, and
// remaining ties order by case-insensitive name.
func BuildMatrix(
	selected []hive.RunRecord,
	details map[string]*hive.TestDetail,
	groupBy CompareMode,
) []ComparisonRow {
	var rows []ComparisonRow

	if groupBy == CompareByName {
		rows = buildRowsByName(selected, details)
	} else {
		rows = buildRowsByID(selected, details)
	}

	sortRows(rows)

	return rows
}

// buildRowsByID builds one row per distinct test-case id across all
// details. The display name resolves from the first selected run whose
// detail contains the id.
func buildRowsByID(
	selected []hive.RunRecord,
	details map[string]*hive.TestDetail,
) []ComparisonRow {
	index := make(map[string]*ComparisonRow)

	var order []string

	for _, run := range selected {
		detail := details[run.FileName]
		if detail == nil {
			continue
		}

		for _, id := range sortedCaseIDs(detail) {
			tc := detail.TestCases[id]

			row, ok := index[id]
			if !ok {
				row = &ComparisonRow{
					ID:      id,
					Name:    tc.Name,
					Details: make(map[string]hive.TestCase),
				}
				index[id] = row
				order = append(order, id)
			}

			row.Details[run.FileName] = tc
		}
	}

	rows := make([]ComparisonRow, 0, len(order))
	for _, id := range order {
		rows = append(rows, *index[id])
	}

	return rows
}

// buildRowsByName builds one row per distinct test-case name. A row's
// entry for a run is the case in that run's detail whose name matches,
// regardless of id.
func buildRowsByName(
	selected []hive.RunRecord,
	details map[string]*hive.TestDetail,
) []ComparisonRow {
	index := make(map[string]*ComparisonRow)

	var order []string

	for _, run := range selected {
		detail := details[run.FileName]
		if detail == nil {
			continue
		}

		for _, id := range sortedCaseIDs(detail) {
			tc := detail.TestCases[id]

			row, ok := index[tc.Name]
			if !ok {
				row = &ComparisonRow{
					ID:      tc.Name,
					Name:    tc.Name,
					Details: make(map[string]hive.TestCase),
				}
				index[tc.Name] = row
				order = append(order, tc.Name)
			}

			if _, ok := row.Details[run.FileName]; !ok {
				row.Details[run.FileName] = tc
			}
		}
	}

	rows := make([]ComparisonRow, 0, len(order))
	for _, name := range order {
		rows = append(rows, *index[name])
	}

	return rows
}

// sortedCaseIDs returns the detail's case ids in sorted order so that
// matrix construction is deterministic regardless of map iteration.
func sortedCaseIDs(detail *hive.TestDetail) []string {
	ids := make([]string, 0, len(detail.TestCases))
	for id := range detail.TestCases {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}

func sortRows(rows []ComparisonRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := &rows[i], &rows[j]

		aFails, bFails := a.FailCount(), b.FailCount()

		if (aFails > 0) != (bFails > 0) {
			return aFails > 0
		}

		if aFails != bFails {
			return aFails > bFails
		}

		if a.Unanimous() != b.Unanimous() {
			return !a.Unanimous()
		}

		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})
}

// RowPage is one page of filtered comparison rows.
type RowPage struct {
	Rows       []ComparisonRow `json:"rows"`
	Total      int             `json:"total"`
	Page       int             `json:"page"`
	TotalPages int             `json:"total_pages"`
}

// FilterRows applies a free-text search on row names followed by
// pagination, after matrix construction and sorting. Pagination
// behaves exactly like Apply's.
func FilterRows(
	rows []ComparisonRow, search string, page Page,
) RowPage {
	filtered := rows

	if search != "" {
		needle := strings.ToLower(search)
		filtered = make([]ComparisonRow, 0, len(rows))

		for _, row := range rows {
			if strings.Contains(strings.ToLower(row.Name), needle) {
				filtered = append(filtered, row)
			}
		}
	}

	size := NormalizePageSize(page.Size)
	total := len(filtered)
	totalPages := (total + size - 1) / size

	number := page.Number
	if number < 1 {
		number = 1
	}

	if totalPages > 0 && number > totalPages {
		number = totalPages
	}

	start := (number - 1) * size
	if start > total {
		start = total
	}

	end := start + size
	if end > total {
		end = total
	}

	return RowPage{
		Rows:       filtered[start:end],
		Total:      total,
		Page:       number,
		TotalPages: totalPages,
	}
}

// EncodeRunIDs joins run identifiers into a single URL parameter value.
func EncodeRunIDs(ids []string) string {
	return strings.Join(ids, ",")
}

// DecodeRunIDs parses a run-id URL parameter back into identifiers.
// Empty segments are dropped and the order is normalized by sorting,
// so encode/decode round-trips preserve the multiset of ids.
func DecodeRunIDs(param string) []string {
	parts := strings.Split(param, ",")
	ids := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}

	sort.Strings(ids)

	return ids
}
