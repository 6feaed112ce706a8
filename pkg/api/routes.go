package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints.
		r.Get("/health", s.handleHealth)
		r.Get("/config", s.handleConfig)

		// Auth endpoints.
		r.Route("/auth", func(r chi.Router) {
			if s.cfg.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(
					s.cfg.Server.RateLimit.Auth,
				))
			}

			r.Post("/login", s.handleLogin)
			r.Post("/logout", s.handleLogout)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAuth)
				r.Get("/me", s.handleMe)
			})
		})

		// Read endpoints: directories, runs, comparisons, workflows,
		// and file serving.
		r.Group(func(r chi.Router) {
			if !s.cfg.Auth.AnonymousRead {
				r.Use(s.requireAuth)
			}

			if s.cfg.Server.RateLimit.Enabled {
				r.Use(s.rateLimitMiddleware(
					s.cfg.Server.RateLimit.Public,
				))
			}

			r.Get("/directories", s.handleListDirectories)
			r.Get("/directories/{directory}/meta", s.handleDirectoryMeta)

			r.Route("/directories/{directory}/runs", func(r chi.Router) {
				r.Get("/", s.handleListRuns)
				r.Get("/grouped", s.handleGroupedRuns)
				r.Get("/compare", s.handleCompare)
				r.Get("/{run}", s.handleRunDetail)
				r.Get("/{run}/diff", s.handleRunDiff)
			})

			// Per-case history requires the index.
			if s.indexStore != nil {
				r.Get("/directories/{directory}/cases/{case}/history",
					s.handleCaseHistory)
			}

			r.Get("/workflows/{owner}/{repo}/{workflow}/runs",
				s.handleWorkflowRuns)
			r.Get("/workflows/{owner}/{repo}/runs/{id}/jobs",
				s.handleWorkflowJobs)

			r.Get("/files/*", s.handleFileRequest)
			r.Head("/files/*", s.handleFileRequest)
		})

		// Settings: reads for any authenticated user, writes for admins.
		r.Route("/settings", func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/github-token", s.handleGetGitHubToken)

			r.Group(func(r chi.Router) {
				r.Use(s.requireRole("admin"))
				r.Put("/github-token", s.handlePutGitHubToken)
			})
		})
	})

	return r
}

// corsMiddleware returns a CORS handler configured from the API config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", githubTokenHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}

	origins := s.cfg.Server.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Reflect the requesting origin so credentials work from any origin.
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
