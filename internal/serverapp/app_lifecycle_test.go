package serverapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taras/graphsheets/internal/config"
	"github.com/taras/graphsheets/internal/logging"
	"github.com/taras/graphsheets/internal/naming"
	"github.com/taras/graphsheets/internal/schema/schematest"
)

func testLogger() *logging.Logger {
	return logging.Discard()
}

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "schema.graphql")
	require.NoError(t, os.WriteFile(path, []byte(schematest.Default), 0o600))

	return &config.Config{
		Schema: config.SchemaConfig{Path: path},
		Store:  config.StoreConfig{Backend: config.BackendMemory},
		Mutation: config.MutationConfig{
			IDFormat: config.IDFormatSequence,
		},
		Server: config.ServerConfig{
			Port:               0,
			ReadTimeout:        time.Second,
			WriteTimeout:       time.Second,
			IdleTimeout:        time.Second,
			ShutdownTimeout:    time.Second,
			HealthCheckTimeout: time.Second,
		},
		Observability: config.ObservabilityConfig{
			ServiceName: "graphsheets",
			Logging:     config.LoggingConfig{Level: "info", Format: "text"},
		},
		Naming: naming.DefaultConfig(),
	}
}

func postGraphQL(t *testing.T, h http.Handler, query string) map[string]any {
	t.Helper()
	body, err := json.Marshal(map[string]any{"query": query})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data   map[string]any `json:"data"`
		Errors []any          `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Empty(t, resp.Errors)
	return resp.Data
}

func TestWaitForStop_SignalWins(t *testing.T) {
	app := &App{logger: testLogger()}
	stop := make(chan os.Signal, 1)
	serverErrors := make(chan error, 1)
	stop <- syscall.SIGTERM

	reason, err := app.WaitForStop(stop, serverErrors)
	require.NoError(t, err)
	assert.Equal(t, "signal", reason)
}

func TestWaitForStop_ServerErrorWins(t *testing.T) {
	app := &App{logger: testLogger()}
	stop := make(chan os.Signal, 1)
	serverErrors := make(chan error, 1)
	serverErrors <- errors.New("boom")

	reason, err := app.WaitForStop(stop, serverErrors)
	require.Error(t, err)
	assert.Equal(t, "server_error", reason)
}

func TestShutdown_Idempotent(t *testing.T) {
	app := &App{logger: testLogger()}
	var calls int32
	app.cleanup.push("test", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, app.Shutdown(ctx))
	require.NoError(t, app.Shutdown(ctx))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCleanupStack_RunsInReverseOrder(t *testing.T) {
	var order []string
	s := cleanupStack{}
	s.push("first", func(context.Context) error { order = append(order, "first"); return nil })
	s.push("second", func(context.Context) error { order = append(order, "second"); return errors.New("ignored") })
	s.push("third", func(context.Context) error { order = append(order, "third"); return nil })

	err := s.run(context.Background(), testLogger())
	assert.Equal(t, []string{"third", "second", "first"}, order)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "second: ignored")
}

func TestWaitForStop_NothingToWaitOn(t *testing.T) {
	app := &App{logger: testLogger()}
	_, err := app.WaitForStop(nil, nil)
	assert.Error(t, err)
}

func TestStart_BeforeInit_Fails(t *testing.T) {
	app := &App{logger: testLogger()}
	_, err := app.Start()
	assert.Error(t, err)
}

func TestStartAndShutdown_HappyPath(t *testing.T) {
	app := &App{
		cfg:        &config.Config{},
		logger:     testLogger(),
		serverAddr: "127.0.0.1:0",
		srv: &http.Server{
			Addr:    "127.0.0.1:0",
			Handler: http.NewServeMux(),
		},
		initialized: true,
	}
	app.cleanup.push("HTTP server", func(ctx context.Context) error {
		return app.srv.Shutdown(ctx)
	})

	_, err := app.Start()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, app.Shutdown(ctx))
}

func TestNew_RequiresConfigAndLogger(t *testing.T) {
	_, err := New(nil, testLogger())
	assert.Error(t, err)
	_, err = New(&config.Config{}, nil)
	assert.Error(t, err)
}

func TestInit_MemoryBackendServesGraphQL(t *testing.T) {
	app, err := New(memoryConfig(t), testLogger())
	require.NoError(t, err)
	require.NoError(t, app.Init(context.Background()))
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	// A second Init is a no-op.
	require.NoError(t, app.Init(context.Background()))

	h := app.Handler()
	require.NotNil(t, h)

	created := postGraphQL(t, h, `mutation {
  createPerson(person: {name: "Lois", products: [{title: "Hat"}]}) {
    id
    name
    products { id title }
  }
}`)
	assert.Equal(t, map[string]any{
		"id":   "1",
		"name": "Lois",
		"products": []any{
			map[string]any{"id": "2", "title": "Hat"},
		},
	}, created["createPerson"])

	read := postGraphQL(t, h, `{ person(id: "1") { name products { title } } }`)
	assert.Equal(t, map[string]any{
		"name":     "Lois",
		"products": []any{map[string]any{"title": "Hat"}},
	}, read["person"])

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy","store":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/graphql", rec.Header().Get("Location"))
}

func TestInitFailure_DoesNotMarkInitialized(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *config.Config)
	}{
		{
			name:   "missing schema file",
			mutate: func(cfg *config.Config) { cfg.Schema.Path = filepath.Join(t.TempDir(), "missing.graphql") },
		},
		{
			name:   "unknown backend",
			mutate: func(cfg *config.Config) { cfg.Store.Backend = "postgres" },
		},
		{
			name:   "unknown id format",
			mutate: func(cfg *config.Config) { cfg.Mutation.IDFormat = "snowflake" },
		},
		{
			name: "sheets credentials missing",
			mutate: func(cfg *config.Config) {
				cfg.Store.Backend = config.BackendSheets
				cfg.Store.Sheets = config.SheetsConfig{
					SpreadsheetID:    "sheet",
					ClientSecretFile: filepath.Join(t.TempDir(), "secret.json"),
					TokenFile:        filepath.Join(t.TempDir(), "token.json"),
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := memoryConfig(t)
			tt.mutate(cfg)

			app, err := New(cfg, testLogger())
			require.NoError(t, err)
			require.Error(t, app.Init(context.Background()))

			app.stateMu.Lock()
			initialized := app.initialized
			app.stateMu.Unlock()
			assert.False(t, initialized)
		})
	}
}
