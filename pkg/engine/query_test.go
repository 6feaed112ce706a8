package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/resultoor/pkg/engine"
	"github.com/ethpandaops/resultoor/pkg/hive"
)

func sampleRuns() []hive.RunRecord {
	return []hive.RunRecord{
		{
			Name: "devp2p/discv4", Clients: []string{"geth"},
			NTests: 10, Passes: 10, Fails: 0,
			Start: t0, FileName: "r1.json",
		},
		{
			Name: "devp2p/discv4", Clients: []string{"reth"},
			NTests: 10, Passes: 8, Fails: 2,
			Start: t0.Add(time.Hour), FileName: "r2.json",
		},
		{
			Name: "sync", Clients: []string{"geth", "besu"},
			NTests: 20, Passes: 4, Fails: 16,
			Start: t0.Add(2 * time.Hour), FileName: "r3.json",
		},
		{
			Name: "engine-api", Clients: []string{"besu"},
			NTests: 5, Passes: 3, Fails: 2, Timeout: true,
			Start: t0.Add(3 * time.Hour), FileName: "r4.json",
		},
	}
}

func TestFilters_Matches(t *testing.T) {
	runs := sampleRuns()

	tests := []struct {
		name    string
		filters engine.Filters
		want    []string // matching fileNames
	}{
		{
			name:    "no filters matches everything",
			filters: engine.Filters{},
			want:    []string{"r1.json", "r2.json", "r3.json", "r4.json"},
		},
		{
			name:    "name substring is case-insensitive",
			filters: engine.Filters{NameContains: "DISCV"},
			want:    []string{"r1.json", "r2.json"},
		},
		{
			name:    "client substring",
			filters: engine.Filters{ClientContains: "bes"},
			want:    []string{"r3.json", "r4.json"},
		},
		{
			name:    "exact name requires the full name",
			filters: engine.Filters{NameExact: "discv4"},
			want:    []string{},
		},
		{
			name:    "exact name match",
			filters: engine.Filters{NameExact: "devp2p/discv4"},
			want:    []string{"r1.json", "r2.json"},
		},
		{
			name:    "selected clients match any participant",
			filters: engine.Filters{Clients: []string{"geth"}},
			want:    []string{"r1.json", "r3.json"},
		},
		{
			name: "status buckets",
			filters: engine.Filters{
				Statuses: []hive.StatusBucket{
					hive.StatusError, hive.StatusTimeout,
				},
			},
			want: []string{"r3.json", "r4.json"},
		},
		{
			name: "all filters compose with AND",
			filters: engine.Filters{
				NameContains: "discv4",
				Clients:      []string{"geth", "reth"},
				Statuses: []hive.StatusBucket{
					hive.StatusFailed,
				},
			},
			want: []string{"r2.json"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := []string{}

			for i := range runs {
				if tt.filters.Matches(&runs[i]) {
					got = append(got, runs[i].FileName)
				}
			}

			assert.Equal(t, tt.want, got)
		})
	}
}

// Every item in the result satisfies all active predicates, and the
// result is a subset of the input.
func TestApply_FilterComposition(t *testing.T) {
	runs := sampleRuns()
	filters := engine.Filters{
		NameContains: "d",
		Clients:      []string{"geth", "reth", "besu"},
	}

	res := engine.Apply(runs, filters,
		engine.DefaultSort(engine.SortByDate),
		engine.Page{Number: 1, Size: 100})

	byFile := make(map[string]hive.RunRecord, len(runs))
	for _, r := range runs {
		byFile[r.FileName] = r
	}

	for i := range res.Items {
		_, inInput := byFile[res.Items[i].FileName]
		require.True(t, inInput)
		assert.True(t, filters.Matches(&res.Items[i]))
	}
}

func TestApply_Sort(t *testing.T) {
	runs := sampleRuns()

	tests := []struct {
		name string
		sort engine.Sort
		want []string
	}{
		{
			name: "date descending",
			sort: engine.DefaultSort(engine.SortByDate),
			want: []string{"r4.json", "r3.json", "r2.json", "r1.json"},
		},
		{
			name: "name ascending by default",
			sort: engine.DefaultSort(engine.SortByName),
			want: []string{"r1.json", "r2.json", "r4.json", "r3.json"},
		},
		{
			name: "fails descending",
			sort: engine.DefaultSort(engine.SortByFail),
			want: []string{"r3.json", "r2.json", "r4.json", "r1.json"},
		},
		{
			name: "status sorts by pass rate",
			sort: engine.Sort{Field: engine.SortByStatus},
			want: []string{"r3.json", "r4.json", "r2.json", "r1.json"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := engine.Apply(runs, engine.Filters{}, tt.sort,
				engine.Page{Number: 1, Size: 100})

			got := make([]string, 0, len(res.Items))
			for _, r := range res.Items {
				got = append(got, r.FileName)
			}

			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSort_Toggled(t *testing.T) {
	s := engine.DefaultSort(engine.SortByDate)
	assert.True(t, s.Descending)

	// Clicking the active field flips the direction.
	s = s.Toggled(engine.SortByDate)
	assert.False(t, s.Descending)

	// Selecting a new field resets to its default.
	s = s.Toggled(engine.SortByName)
	assert.Equal(t, engine.SortByName, s.Field)
	assert.False(t, s.Descending)

	s = s.Toggled(engine.SortByFail)
	assert.True(t, s.Descending)
}

// Concatenating all pages reproduces the full filtered-and-sorted list
// exactly.
func TestApply_PaginationCoverage(t *testing.T) {
	runs := make([]hive.RunRecord, 0, 57)
	for i := 0; i < 57; i++ {
		runs = append(runs, hive.RunRecord{
			Name:     "suite/test",
			Clients:  []string{"geth"},
			NTests:   i,
			Start:    t0.Add(time.Duration(i) * time.Minute),
			FileName: time.Duration(i).String() + ".json",
		})
	}

	full := engine.Apply(runs, engine.Filters{},
		engine.DefaultSort(engine.SortByDate),
		engine.Page{Number: 1, Size: 100})

	var collected []hive.RunRecord

	page := 1
	for {
		res := engine.Apply(runs, engine.Filters{},
			engine.DefaultSort(engine.SortByDate),
			engine.Page{Number: page, Size: 10})
		require.Equal(t, 57, res.Total)
		require.Equal(t, 6, res.TotalPages)

		collected = append(collected, res.Items...)

		if page == res.TotalPages {
			break
		}

		page++
	}

	assert.Equal(t, full.Items, collected)
}

func TestApply_PageClamping(t *testing.T) {
	runs := sampleRuns()

	// Out-of-range pages clamp to the valid window.
	res := engine.Apply(runs, engine.Filters{},
		engine.DefaultSort(engine.SortByDate),
		engine.Page{Number: 99, Size: 10})
	assert.Equal(t, 1, res.Page)
	assert.Len(t, res.Items, 4)

	res = engine.Apply(runs, engine.Filters{},
		engine.DefaultSort(engine.SortByDate),
		engine.Page{Number: -3, Size: 10})
	assert.Equal(t, 1, res.Page)

	// A filter that excludes everything still yields page 1.
	res = engine.Apply(runs,
		engine.Filters{NameExact: "does-not-exist"},
		engine.DefaultSort(engine.SortByDate),
		engine.Page{Number: 5, Size: 10})
	assert.Equal(t, 1, res.Page)
	assert.Zero(t, res.Total)
	assert.Zero(t, res.TotalPages)
	assert.Empty(t, res.Items)
}

func TestNormalizePageSize(t *testing.T) {
	assert.Equal(t, 10, engine.NormalizePageSize(10))
	assert.Equal(t, 100, engine.NormalizePageSize(100))
	assert.Equal(t, engine.DefaultPageSize, engine.NormalizePageSize(0))
	assert.Equal(t, engine.DefaultPageSize, engine.NormalizePageSize(33))
	assert.Equal(t, engine.DefaultPageSize, engine.NormalizePageSize(-5))
}

func TestValidSortField(t *testing.T) {
	for _, f := range []string{
		"date", "name", "total", "pass", "fail", "status",
	} {
		assert.True(t, engine.ValidSortField(f), f)
	}

	assert.False(t, engine.ValidSortField("clients"))
}
