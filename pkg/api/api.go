// Package api implements the HTTP API serving hive run listings,
// grouped summaries, diffs, cross-run comparisons, and CI workflow
// status to the dashboard frontend.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/resultoor/pkg/api/indexer"
	"github.com/ethpandaops/resultoor/pkg/api/indexstore"
	"github.com/ethpandaops/resultoor/pkg/api/store"
	"github.com/ethpandaops/resultoor/pkg/config"
	"github.com/ethpandaops/resultoor/pkg/github"
	"github.com/ethpandaops/resultoor/pkg/sources"
)

const (
	shutdownTimeout        = 10 * time.Second
	sessionCleanupInterval = 15 * time.Minute
)

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log         logrus.FieldLogger
	cfg         *config.APIConfig
	store       store.Store
	reader      sources.Reader
	github      *github.Client
	presigner   *s3Presigner
	localServer *localFileServer
	indexStore  indexstore.Store
	indexer     indexer.Indexer
	httpServer  *http.Server
	wg          sync.WaitGroup
	done        chan struct{}
}

// NewServer creates a new API server.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.APIConfig,
) Server {
	return &server{
		log:  log.WithField("component", "api"),
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

// Start initializes the store and sources, seeds config data, and
// starts the HTTP server.
func (s *server) Start(ctx context.Context) error {
	// Create and start the database store.
	s.store = store.NewStore(s.log, &s.cfg.Database)
	if err := s.store.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	// Seed users from config.
	if s.cfg.Auth.Basic.Enabled {
		if err := s.store.SeedUsers(
			ctx, s.cfg.Auth.Basic.Users,
		); err != nil {
			return fmt.Errorf("seeding users: %w", err)
		}
	}

	// Build the result source reader.
	reader, err := sources.New(&s.cfg.Sources)
	if err != nil {
		return fmt.Errorf("building source reader: %w", err)
	}

	s.reader = reader

	// The GitHub client resolves a token persisted through the
	// settings API before falling back to the configured one.
	ghClient, err := github.NewClient(
		s.log, &s.cfg.GitHub, s.persistedGitHubToken,
	)
	if err != nil {
		return fmt.Errorf("building github client: %w", err)
	}

	s.github = ghClient

	// Initialize S3 presigner if configured.
	if s.cfg.Sources.S3 != nil && s.cfg.Sources.S3.Enabled {
		presigner, err := newS3Presigner(s.log, s.cfg.Sources.S3)
		if err != nil {
			return fmt.Errorf("initializing s3 presigner: %w", err)
		}

		s.presigner = presigner

		s.log.Info("S3 presigned URL generation enabled")
	}

	// Initialize local file server if configured.
	if s.cfg.Sources.Local != nil && s.cfg.Sources.Local.Enabled {
		s.localServer = newLocalFileServer(s.log, s.cfg.Sources.Local)

		s.log.Info("Local file serving enabled")
	}

	// Prepare the indexing service (store + indexer) before building
	// the router so that the index endpoints are wired, but do NOT
	// start the background indexer yet.
	if s.cfg.Indexing != nil && s.cfg.Indexing.Enabled {
		if err := s.prepareIndexing(ctx); err != nil {
			return fmt.Errorf("preparing indexing: %w", err)
		}
	}

	// Build router and start HTTP server.
	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start session cleanup goroutine.
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(sessionCleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.store.DeleteExpiredSessions(ctx); err != nil {
					s.log.WithError(err).
						Warn("Failed to clean expired sessions")
				}
			case <-s.done:
				return
			}
		}
	}()

	// Bind the listener synchronously so port conflicts surface here.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	// Start HTTP server.
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.cfg.Server.Listen).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	// Start the background indexer AFTER the API is listening so that
	// the server is reachable while the first (potentially slow) pass runs.
	if s.indexer != nil {
		if err := s.indexer.Start(ctx); err != nil {
			return fmt.Errorf("starting indexer: %w", err)
		}
	}

	return nil
}

// Stop gracefully shuts down the HTTP server and closes the stores.
func (s *server) Stop() error {
	close(s.done)

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.indexer != nil {
		if err := s.indexer.Stop(); err != nil {
			s.log.WithError(err).Warn("Indexer stop error")
		}
	}

	if s.indexStore != nil {
		if err := s.indexStore.Stop(); err != nil {
			s.log.WithError(err).Warn("Index store stop error")
		}
	}

	if s.store != nil {
		if err := s.store.Stop(); err != nil {
			return fmt.Errorf("stopping store: %w", err)
		}
	}

	s.log.Info("API server stopped")

	return nil
}

// persistedGitHubToken reads the GitHub token stored via the settings
// API, if any.
func (s *server) persistedGitHubToken(ctx context.Context) string {
	token, err := s.store.GetSetting(ctx, store.SettingGitHubToken)
	if err != nil {
		s.log.WithError(err).Warn("Failed to read persisted github token")

		return ""
	}

	return token
}

const defaultIndexingInterval = 60 * time.Second

// prepareIndexing creates the index store and indexer without starting
// the background goroutine. Call indexer.Start() separately after the
// HTTP server is listening.
func (s *server) prepareIndexing(ctx context.Context) error {
	s.indexStore = indexstore.NewStore(
		s.log, &s.cfg.Indexing.Database,
	)

	if err := s.indexStore.Start(ctx); err != nil {
		return fmt.Errorf("starting index store: %w", err)
	}

	interval := defaultIndexingInterval

	if s.cfg.Indexing.Interval != "" {
		d, err := time.ParseDuration(s.cfg.Indexing.Interval)
		if err != nil {
			return fmt.Errorf("parsing indexing interval: %w", err)
		}

		interval = d
	}

	s.indexer = indexer.NewIndexer(
		s.log, s.indexStore, s.reader, interval, s.cfg.Indexing.Concurrency,
	)

	s.log.Info("Indexing service enabled")

	return nil
}
