package engine

import (
	"sort"

	"github.com/ethpandaops/resultoor/pkg/hive"
)

// PassDiff is the change in passes between a run and its immediate
// predecessor with the same test identity.
type PassDiff struct {
	// Value is the absolute change in passing test count.
	Value int `json:"value"`

	// Percentage is the change in pass rate, in percentage points.
	Percentage float64 `json:"percentage"`
}

// PreviousRun returns the run in history with the same test identity
// as run and the latest start time strictly earlier than run's start,
// or nil when no such run exists. History may contain run itself and
// runs of unrelated identities; both are ignored.
func PreviousRun(
	run *hive.RunRecord, history []hive.RunRecord,
) *hive.RunRecord {
	identity := run.IdentityKey()

	sorted := make([]hive.RunRecord, len(history))
	copy(sorted, history)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.After(sorted[j].Start)
	})

	for i := range sorted {
		candidate := &sorted[i]

		if !candidate.Start.Before(run.Start) {
			continue
		}

		if candidate.IdentityKey() == identity {
			return candidate
		}
	}

	return nil
}

// Diff computes the pass-count and pass-rate delta between run and its
// immediate same-identity predecessor in history. It returns nil when
// no predecessor exists: a first-ever run has no diff, not a zero one.
func Diff(
	run *hive.RunRecord, history []hive.RunRecord,
) *PassDiff {
	prev := PreviousRun(run, history)
	if prev == nil {
		return nil
	}

	return &PassDiff{
		Value:      run.Passes - prev.Passes,
		Percentage: run.PassRate() - prev.PassRate(),
	}
}
