package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethpandaops/resultoor/pkg/api/indexstore"
	"github.com/ethpandaops/resultoor/pkg/api/store"
	"github.com/ethpandaops/resultoor/pkg/config"
	"github.com/ethpandaops/resultoor/pkg/github"
	"github.com/ethpandaops/resultoor/pkg/sources"
)

// setupServer builds a server over a temp-dir local source and an
// in-memory store, returning the server and its router.
func setupServer(t *testing.T, mutate func(*config.APIConfig)) (*server, http.Handler) {
	t.Helper()

	root := t.TempDir()
	writeRunFixtures(t, root)

	cfg := &config.APIConfig{
		Server: config.APIServerConfig{Listen: "127.0.0.1:0"},
		Auth: config.APIAuthConfig{
			SessionTTL:    "1h",
			AnonymousRead: true,
			Basic: config.BasicAuthConfig{
				Enabled: true,
				Users: []config.BasicAuthUser{
					{Username: "admin", Password: "pw", Role: "admin"},
					{Username: "viewer", Password: "pw", Role: "readonly"},
				},
			},
		},
		Database: config.APIDatabaseConfig{
			Driver: "sqlite",
			SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
		},
		Sources: config.SourcesConfig{
			Local: &config.LocalSourceConfig{
				Enabled:        true,
				DiscoveryPaths: map[string]string{"mainnet": root},
			},
		},
		GitHub: config.GitHubConfig{},
	}

	if mutate != nil {
		mutate(cfg)
	}

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	srv := &server{
		log:  log,
		cfg:  cfg,
		done: make(chan struct{}),
	}

	srv.store = store.NewStore(log, &cfg.Database)
	require.NoError(t, srv.store.Start(context.Background()))
	t.Cleanup(func() { _ = srv.store.Stop() })

	require.NoError(t, srv.store.SeedUsers(
		context.Background(), cfg.Auth.Basic.Users,
	))

	reader, err := sources.New(&cfg.Sources)
	require.NoError(t, err)

	srv.reader = reader

	ghClient, err := github.NewClient(log, &cfg.GitHub, nil)
	require.NoError(t, err)

	srv.github = ghClient

	srv.localServer = newLocalFileServer(log, cfg.Sources.Local)

	return srv, srv.buildRouter()
}

// writeRunFixtures populates root with a listing and detail files.
func writeRunFixtures(t *testing.T, root string) {
	t.Helper()

	listing := "" +
		`{"name":"devp2p/discv4","fileName":"run-1.json","ntests":10,"passes":8,"fails":2,"clients":["geth"],"start":"2024-01-01T00:00:00Z"}` + "\n" +
		`{"name":"devp2p/discv4","fileName":"run-2.json","ntests":10,"passes":9,"fails":1,"clients":["geth"],"start":"2024-01-02T00:00:00Z"}` + "\n" +
		`{"name":"sync","fileName":"run-3.json","ntests":4,"passes":4,"fails":0,"clients":["geth","reth"],"start":"2024-01-03T00:00:00Z"}` + "\n"

	require.NoError(t, os.WriteFile(
		filepath.Join(root, "listing.jsonl"), []byte(listing), 0o600,
	))

	require.NoError(t, os.MkdirAll(filepath.Join(root, "results"), 0o700))

	details := map[string]string{
		"run-1.json": `{"name":"devp2p/discv4","testCases":{
			"1":{"name":"Ping","summaryResult":{"pass":true}},
			"2":{"name":"Findnode","summaryResult":{"pass":false}}}}`,
		"run-2.json": `{"name":"devp2p/discv4","testCases":{
			"1":{"name":"Ping","summaryResult":{"pass":false}},
			"2":{"name":"Findnode","summaryResult":{"pass":true}}}}`,
	}

	for name, body := range details {
		require.NoError(t, os.WriteFile(
			filepath.Join(root, "results", name), []byte(body), 0o600,
		))
	}
}

// doJSON performs a request against the router and decodes the JSON
// response body into out.
func doJSON(
	t *testing.T,
	router http.Handler,
	method, target string,
	body []byte,
	out any,
) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if out != nil {
		require.NoError(
			t, json.Unmarshal(rec.Body.Bytes(), out),
			"body: %s", rec.Body.String(),
		)
	}

	return rec
}

func TestHealth(t *testing.T) {
	_, router := setupServer(t, nil)

	var resp map[string]string

	rec := doJSON(t, router, http.MethodGet, "/api/v1/health", nil, &resp)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", resp["status"])
}

func TestConfigEndpoint(t *testing.T) {
	_, router := setupServer(t, nil)

	var resp struct {
		Auth struct {
			BasicEnabled  bool `json:"basic_enabled"`
			AnonymousRead bool `json:"anonymous_read"`
		} `json:"auth"`
		Sources struct {
			Directories []string `json:"directories"`
		} `json:"sources"`
	}

	rec := doJSON(t, router, http.MethodGet, "/api/v1/config", nil, &resp)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Auth.BasicEnabled)
	assert.True(t, resp.Auth.AnonymousRead)
	assert.Equal(t, []string{"mainnet"}, resp.Sources.Directories)
}

func TestLoginLogout(t *testing.T) {
	_, router := setupServer(t, nil)

	body := []byte(`{"username":"admin","password":"pw"}`)

	var resp loginResponse

	rec := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", body, &resp)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", resp.User.Username)
	assert.Equal(t, "admin", resp.User.Role)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, sessionCookieName, cookies[0].Name)

	// The session authenticates /auth/me.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(cookies[0])

	meRec := httptest.NewRecorder()
	router.ServeHTTP(meRec, req)
	assert.Equal(t, http.StatusOK, meRec.Code)
}

func TestLoginBadCredentials(t *testing.T) {
	_, router := setupServer(t, nil)

	body := []byte(`{"username":"admin","password":"wrong"}`)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/auth/login", body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeRequiresAuth(t *testing.T) {
	_, router := setupServer(t, nil)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/auth/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReadEndpointsRequireAuthWhenAnonymousReadDisabled(t *testing.T) {
	_, router := setupServer(t, func(cfg *config.APIConfig) {
		cfg.Auth.AnonymousRead = false
	})

	rec := doJSON(
		t, router, http.MethodGet, "/api/v1/directories", nil, nil,
	)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSettingsGitHubToken(t *testing.T) {
	srv, router := setupServer(t, nil)

	login := func(username string) *http.Cookie {
		body := []byte(fmt.Sprintf(
			`{"username":%q,"password":"pw"}`, username,
		))

		rec := doJSON(
			t, router, http.MethodPost, "/api/v1/auth/login", body, nil,
		)
		require.Equal(t, http.StatusOK, rec.Code)

		return rec.Result().Cookies()[0]
	}

	adminCookie := login("admin")
	viewerCookie := login("viewer")

	// Writes require the admin role.
	req := httptest.NewRequest(
		http.MethodPut, "/api/v1/settings/github-token",
		bytes.NewReader([]byte(`{"token":"ghp_abc"}`)),
	)
	req.AddCookie(viewerCookie)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(
		http.MethodPut, "/api/v1/settings/github-token",
		bytes.NewReader([]byte(`{"token":"ghp_abc"}`)),
	)
	req.AddCookie(adminCookie)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// The persisted token feeds the GitHub client's token source.
	assert.Equal(t, "ghp_abc",
		srv.persistedGitHubToken(context.Background()))

	// Any authenticated user may check whether a token is configured.
	req = httptest.NewRequest(
		http.MethodGet, "/api/v1/settings/github-token", nil,
	)
	req.AddCookie(viewerCookie)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp githubTokenResponse

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Configured)
}

func TestCaseHistory(t *testing.T) {
	srv, _ := setupServer(t, nil)

	srv.indexStore = indexstore.NewStore(srv.log, &config.APIDatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteDatabaseConfig{Path: ":memory:"},
	})
	require.NoError(t, srv.indexStore.Start(context.Background()))
	t.Cleanup(func() { _ = srv.indexStore.Stop() })

	require.NoError(t, srv.indexStore.BulkUpsertCaseResults(
		context.Background(), []*indexstore.CaseResult{
			{
				Directory: "mainnet", FileName: "run-1.json",
				CaseID: "1", Name: "Ping", Pass: true,
				Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			},
			{
				Directory: "mainnet", FileName: "run-2.json",
				CaseID: "1", Name: "Ping", Pass: false,
				Start: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			},
		},
	))

	// The history route is only registered when indexing is enabled.
	router := srv.buildRouter()

	var resp struct {
		Case    string `json:"case"`
		History []struct {
			FileName string `json:"FileName"`
			Pass     bool   `json:"Pass"`
		} `json:"history"`
	}

	rec := doJSON(
		t, router, http.MethodGet,
		"/api/v1/directories/mainnet/cases/Ping/history", nil, &resp,
	)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ping", resp.Case)
	require.Len(t, resp.History, 2)

	// Most recent outcome first.
	assert.Equal(t, "run-2.json", resp.History[0].FileName)
	assert.False(t, resp.History[0].Pass)

	var empty struct {
		History []any `json:"history"`
	}

	rec = doJSON(
		t, router, http.MethodGet,
		"/api/v1/directories/mainnet/cases/Unknown/history", nil, &empty,
	)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, empty.History)
}

func TestSessionExpiry(t *testing.T) {
	srv, router := setupServer(t, nil)

	// Create a session that is already expired.
	user, err := srv.store.GetUserByUsername(context.Background(), "admin")
	require.NoError(t, err)

	require.NoError(t, srv.store.CreateSession(
		context.Background(), &store.Session{
			Token:     "expired-token",
			UserID:    user.ID,
			ExpiresAt: time.Now().UTC().Add(-time.Minute),
		},
	))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{
		Name:  sessionCookieName,
		Value: "expired-token",
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
