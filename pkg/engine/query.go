package engine

import (
	"sort"
	"strings"

	"github.com/ethpandaops/resultoor/pkg/hive"
)

// SortField names a sortable run column.
type SortField string

// Sortable fields.
const (
	SortByDate   SortField = "date"
	SortByName   SortField = "name"
	SortByTotal  SortField = "total"
	SortByPass   SortField = "pass"
	SortByFail   SortField = "fail"
	SortByStatus SortField = "status"
)

// ValidSortField reports whether f names a known sort field.
func ValidSortField(f string) bool {
	switch SortField(f) {
	case SortByDate, SortByName, SortByTotal,
		SortByPass, SortByFail, SortByStatus:
		return true
	}

	return false
}

// Sort selects the active sort column and direction.
type Sort struct {
	Field      SortField
	Descending bool
}

// DefaultSort returns the sensible default direction for a freshly
// selected field: ascending for name, descending for everything else.
func DefaultSort(field SortField) Sort {
	return Sort{Field: field, Descending: field != SortByName}
}

// Toggled returns the sort that results from clicking field while s is
// active: the direction flips when the field is already active, and
// resets to the field's default otherwise.
func (s Sort) Toggled(field SortField) Sort {
	if s.Field == field {
		s.Descending = !s.Descending

		return s
	}

	return DefaultSort(field)
}

// Filters are the optional run predicates. All set filters must match
// for a run to pass.
type Filters struct {
	// NameContains is a case-insensitive substring match on the test
	// name.
	NameContains string

	// ClientContains is a case-insensitive substring match on the
	// joined client string.
	ClientContains string

	// NameExact is an exact match on the full test name.
	NameExact string

	// Clients selects runs where any participating client is in the
	// set.
	Clients []string

	// Statuses selects runs whose status bucket is in the set.
	Statuses []hive.StatusBucket
}

// Matches reports whether run satisfies every active filter.
func (f *Filters) Matches(run *hive.RunRecord) bool {
	if f.NameContains != "" && !strings.Contains(
		strings.ToLower(run.Name), strings.ToLower(f.NameContains),
	) {
		return false
	}

	if f.ClientContains != "" && !strings.Contains(
		strings.ToLower(strings.Join(run.Clients, ",")),
		strings.ToLower(f.ClientContains),
	) {
		return false
	}

	if f.NameExact != "" && run.Name != f.NameExact {
		return false
	}

	if len(f.Clients) > 0 && !anyClientIn(run.Clients, f.Clients) {
		return false
	}

	if len(f.Statuses) > 0 {
		status := hive.Status(run)
		found := false

		for _, s := range f.Statuses {
			if s == status {
				found = true

				break
			}
		}

		if !found {
			return false
		}
	}

	return true
}

func anyClientIn(clients, selected []string) bool {
	for _, c := range clients {
		for _, s := range selected {
			if c == s {
				return true
			}
		}
	}

	return false
}

// PageSizes are the allowed pagination sizes.
var PageSizes = []int{10, 25, 50, 100}

// DefaultPageSize is used when no explicit page size is requested.
const DefaultPageSize = 25

// NormalizePageSize coerces size to the nearest allowed value: exact
// matches pass through, everything else falls back to the default.
func NormalizePageSize(size int) int {
	for _, s := range PageSizes {
		if size == s {
			return s
		}
	}

	return DefaultPageSize
}

// Page selects a pagination window.
type Page struct {
	Number int
	Size   int
}

// Result is the output of Apply: one page of the filtered and sorted
// run list plus enough bookkeeping to render pagination controls.
type Result struct {
	Items      []hive.RunRecord `json:"items"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	TotalPages int              `json:"total_pages"`
}

// Apply composes filter, sort, and paginate in strict order: sorting
// and pagination never see runs excluded by the filters. The page
// number is clamped to the valid range, so concatenating pages
// 1..TotalPages always reproduces the full filtered list exactly.
func Apply(
	runs []hive.RunRecord, filters Filters, sortBy Sort, page Page,
) Result {
	filtered := make([]hive.RunRecord, 0, len(runs))

	for i := range runs {
		if filters.Matches(&runs[i]) {
			filtered = append(filtered, runs[i])
		}
	}

	sortRuns(filtered, sortBy)

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

	return Result{
		Items:      filtered[start:end],
		Total:      total,
		Page:       number,
		TotalPages: totalPages,
	}
}

// sortRuns sorts runs in place by the active field. The sort is stable
// so equal keys preserve their filtered input order.
func sortRuns(runs []hive.RunRecord, sortBy Sort) {
	less := lessFunc(sortBy.Field)

	sort.SliceStable(runs, func(i, j int) bool {
		if sortBy.Descending {
			return less(&runs[j], &runs[i])
		}

		return less(&runs[i], &runs[j])
	})
}

func lessFunc(field SortField) func(a, b *hive.RunRecord) bool {
	switch field {
	case SortByName:
		return func(a, b *hive.RunRecord) bool {
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		}
	case SortByTotal:
		return func(a, b *hive.RunRecord) bool {
			return a.NTests < b.NTests
		}
	case SortByPass:
		return func(a, b *hive.RunRecord) bool {
			return a.Passes < b.Passes
		}
	case SortByFail:
		return func(a, b *hive.RunRecord) bool {
			return a.Fails < b.Fails
		}
	case SortByStatus:
		return func(a, b *hive.RunRecord) bool {
			return a.PassRate() < b.PassRate()
		}
	default:
		return func(a, b *hive.RunRecord) bool {
			return a.Start.Before(b.Start)
		}
	}
}
