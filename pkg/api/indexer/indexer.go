package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ethpandaops/resultoor/pkg/api/indexstore"
	"github.com/ethpandaops/resultoor/pkg/hive"
	"github.com/ethpandaops/resultoor/pkg/sources"
)

// defaultConcurrency is the number of runs indexed in parallel when
// no explicit concurrency value is configured.
const defaultConcurrency = 4

// Indexer is a background service that periodically scans the result
// sources and upserts run and test-case data into the index store.
type Indexer interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Indexer = (*indexer)(nil)

type indexer struct {
	log         logrus.FieldLogger
	store       indexstore.Store
	reader      sources.Reader
	interval    time.Duration
	concurrency int
	done        chan struct{}
	wg          sync.WaitGroup
	dbMu        sync.Mutex // serializes DB writes to avoid SQLite contention
}

// NewIndexer creates a new background indexer.
func NewIndexer(
	log logrus.FieldLogger,
	store indexstore.Store,
	reader sources.Reader,
	interval time.Duration,
	concurrency int,
) Indexer {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	return &indexer{
		log:         log.WithField("component", "indexer"),
		store:       store,
		reader:      reader,
		interval:    interval,
		concurrency: concurrency,
		done:        make(chan struct{}),
	}
}

// Start launches a background goroutine that runs an immediate indexing
// pass and then ticks at the configured interval. The first pass is
// asynchronous so the caller (the API server) is not blocked.
func (idx *indexer) Start(ctx context.Context) error {
	idx.log.WithFields(logrus.Fields{
		"interval":    idx.interval.String(),
		"concurrency": idx.concurrency,
	}).Info("Starting indexer")

	idx.wg.Add(1)

	go func() {
		defer idx.wg.Done()

		// Run one pass immediately.
		idx.runPass(ctx)

		ticker := time.NewTicker(idx.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				idx.runPass(ctx)
			case <-idx.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop signals the indexer goroutine to stop and waits for it.
func (idx *indexer) Stop() error {
	close(idx.done)
	idx.wg.Wait()

	idx.log.Info("Indexer stopped")

	return nil
}

// runPass executes one full indexing pass across all directories.
func (idx *indexer) runPass(ctx context.Context) {
	start := time.Now()
	dirs := idx.reader.Directories()

	idx.log.WithField("directories", len(dirs)).
		Info("Indexing pass started")

	for _, dir := range dirs {
		select {
		case <-ctx.Done():
			return
		case <-idx.done:
			return
		default:
		}

		if err := idx.indexDirectory(ctx, dir.Name); err != nil {
			idx.log.WithError(err).
				WithField("directory", dir.Name).
				Warn("Indexing pass failed for directory")
		}
	}

	idx.log.WithField("duration", time.Since(start).Round(time.Millisecond)).
		Info("Indexing pass completed")
}

// indexDirectory performs incremental indexing for a single result
// directory. New listing entries are indexed with a bounded worker
// pool; entries that are already indexed are skipped.
func (idx *indexer) indexDirectory(
	ctx context.Context, directory string,
) error {
	runs, err := idx.reader.ListRuns(ctx, directory)
	if err != nil {
		return fmt.Errorf("listing source runs: %w", err)
	}

	indexedNames, err := idx.store.ListRunFileNames(ctx, directory)
	if err != nil {
		return fmt.Errorf("listing indexed runs: %w", err)
	}

	indexedSet := make(map[string]struct{}, len(indexedNames))
	for _, name := range indexedNames {
		indexedSet[name] = struct{}{}
	}

	var tasks []hive.RunRecord

	for _, run := range runs {
		if run.FileName == "" {
			continue
		}

		if _, ok := indexedSet[run.FileName]; ok {
			continue
		}

		tasks = append(tasks, run)
	}

	dirLog := idx.log.WithField("directory", directory)

	dirLog.WithFields(logrus.Fields{
		"source_runs":  len(runs),
		"indexed_runs": len(indexedNames),
		"new_runs":     len(tasks),
	}).Info("Scanning directory")

	if len(tasks) == 0 {
		return nil
	}

	// Process runs concurrently with bounded parallelism.
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(idx.concurrency)

	var indexed atomic.Int64

	for _, task := range tasks {
		g.Go(func() error {
			// Check for cancellation before starting work.
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			case <-idx.done:
				return nil
			default:
			}

			if err := idx.indexRun(gCtx, directory, task); err != nil {
				dirLog.WithError(err).
					WithField("file_name", task.FileName).
					Warn("Failed to index run")

				return nil //nolint:nilerr // log and continue
			}

			indexed.Add(1)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("indexing runs: %w", err)
	}

	if count := indexed.Load(); count > 0 {
		dirLog.WithField("count", count).
			Info("Directory indexing complete")
	}

	return nil
}

// indexRun upserts one listing entry and, when its detail file is
// available, the per-case outcomes extracted from it.
func (idx *indexer) indexRun(
	ctx context.Context, directory string, run hive.RunRecord,
) error {
	detail, err := idx.reader.GetTestDetail(ctx, directory, run.FileName)
	if err != nil {
		idx.log.WithError(err).
			WithField("file_name", run.FileName).
			Debug("Failed to read detail file, indexing listing entry only")

		detail = nil
	}

	versionsJSON := ""

	if len(run.Versions) > 0 {
		if b, mErr := json.Marshal(run.Versions); mErr == nil {
			versionsJSON = string(b)
		}
	}

	row := &indexstore.Run{
		Directory:    directory,
		FileName:     run.FileName,
		Name:         run.BaseName(),
		NTests:       run.NTests,
		Passes:       run.Passes,
		Fails:        run.Fails,
		Timeout:      run.Timeout,
		Start:        run.Start,
		ClientsKey:   run.ClientSetKey(),
		VersionsJSON: versionsJSON,
		HasDetail:    detail != nil,
		IndexedAt:    time.Now().UTC(),
	}

	// Serialize DB writes to avoid SQLite BUSY errors under concurrency.
	idx.dbMu.Lock()
	defer idx.dbMu.Unlock()

	if err := idx.store.UpsertRun(ctx, row); err != nil {
		return fmt.Errorf("upserting run: %w", err)
	}

	if detail == nil {
		return nil
	}

	if err := idx.indexCaseResults(
		ctx, directory, run.FileName, detail,
	); err != nil {
		idx.log.WithError(err).
			WithField("file_name", run.FileName).
			Warn("Failed to index case results")
	}

	return nil
}

// indexCaseResults replaces the run's per-case rows with the outcomes
// from its detail file.
func (idx *indexer) indexCaseResults(
	ctx context.Context,
	directory, fileName string,
	detail *hive.TestDetail,
) error {
	if err := idx.store.DeleteCaseResultsForRun(
		ctx, directory, fileName,
	); err != nil {
		return fmt.Errorf("deleting old case results: %w", err)
	}

	results := make([]*indexstore.CaseResult, 0, len(detail.TestCases))

	for caseID, tc := range detail.TestCases {
		results = append(results, &indexstore.CaseResult{
			Directory: directory,
			FileName:  fileName,
			CaseID:    caseID,
			Name:      tc.Name,
			Pass:      tc.SummaryResult.Pass,
			Start:     tc.Start,
			End:       tc.End,
		})
	}

	if err := idx.store.BulkUpsertCaseResults(ctx, results); err != nil {
		return fmt.Errorf("bulk inserting case results: %w", err)
	}

	return nil
}
