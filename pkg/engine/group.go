// Package engine implements the pure data transformations served by
// the API: grouping, history diffing, filtering/sorting/pagination,
// and cross-run comparison matrices. All functions are synchronous,
// side-effect free, and take every input as an explicit parameter so
// results can be memoized by the caller.
package engine

import (
	"github.com/ethpandaops/resultoor/pkg/hive"
)

// GroupMode selects the partition key for Group.
type GroupMode string

const (
	// GroupByTest partitions runs by test name (directory prefix
	// stripped) and keeps the latest run per client set within each
	// partition.
	GroupByTest GroupMode = "test"

	// GroupByClient partitions runs by client-set key and keeps the
	// latest run per test name within each partition.
	GroupByClient GroupMode = "client"
)

// ValidGroupMode reports whether m names a known group mode.
func ValidGroupMode(m string) bool {
	return GroupMode(m) == GroupByTest || GroupMode(m) == GroupByClient
}

// Group partitions runs by the mode's partition key and deduplicates
// each partition down to the most recent run per sub-key. Every input
// run belongs to exactly one partition; within a partition, older runs
// sharing a sub-key are discarded. Runs with an identical start time
// break the tie in favor of the run appearing later in the input
// slice, which keeps the output deterministic for a given input order.
func Group(
	runs []hive.RunRecord, mode GroupMode,
) map[string][]hive.RunRecord {
	// partition key -> sub-key -> surviving run
	latest := make(map[string]map[string]hive.RunRecord)

	for _, run := range runs {
		var key, subKey string

		switch mode {
		case GroupByClient:
			key = run.ClientSetKey()
			subKey = run.BaseName()
		default:
			key = run.BaseName()
			subKey = run.ClientSetKey()
		}

		sub, ok := latest[key]
		if !ok {
			sub = make(map[string]hive.RunRecord)
			latest[key] = sub
		}

		prev, ok := sub[subKey]
		if !ok || !run.Start.Before(prev.Start) {
			sub[subKey] = run
		}
	}

	out := make(map[string][]hive.RunRecord, len(latest))

	for key, sub := range latest {
		group := make([]hive.RunRecord, 0, len(sub))
		for _, run := range sub {
			group = append(group, run)
		}

		out[key] = group
	}

	return out
}
