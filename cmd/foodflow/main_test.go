package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"github.com/neomorfeo/foodflow/internal/adapter/auth"
	"github.com/neomorfeo/foodflow/internal/adapter/fsm"
	handler "github.com/neomorfeo/foodflow/internal/adapter/http"
	"github.com/neomorfeo/foodflow/internal/adapter/sqlite"
	"github.com/neomorfeo/foodflow/internal/app"
	"github.com/neomorfeo/foodflow/internal/domain"
)

// testPublisher is a local EventPublisher for the smoke test.
// The smoke test verifies HTTP wiring, not River.
type testPublisher struct{}

func (p *testPublisher) Publish(_ context.Context, _ domain.Event, _ domain.Donation) error {
	return nil
}

// TestSmoke wires the full stack like run() and verifies it responds.
func TestSmoke(t *testing.T) {
	dbPath := t.TempDir() + "/test.db"

	store, err := sqlite.New(dbPath)
	if err != nil {
		t.Fatalf("database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	validator := fsm.New()
	engine := app.NewLifecycleEngine(store, validator, &testPublisher{})
	feed := app.NewFeedProjector(store, time.Now)
	resolver, err := auth.NewResolver(auth.Config{Secret: []byte("smoke")})
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}

	router := chi.NewMux()
	api := humachi.New(router, huma.DefaultConfig("FoodFlow", "0.1.0"))
	handler.Register(api, handler.Deps{Engine: engine, Feed: feed, Resolver: resolver, Actions: validator})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	token, err := resolver.Issue(domain.Actor{ID: "np-1", Role: domain.RoleNonprofit}, time.Minute)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}

	// Verify the server responds to the available feed.
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+"/api/v1/donations/available", nil)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/v1/donations/available failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var donations []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&donations); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(donations) != 0 {
		t.Errorf("got %d donations, want 0 (empty database)", len(donations))
	}
}

func setRunEnv(t *testing.T, dbPath, port string) {
	t.Helper()
	t.Setenv("DATABASE_PATH", dbPath)
	t.Setenv("PORT", port)
	t.Setenv("JWT_SECRET", "run-secret")
	t.Setenv("OTEL_EXPORTER", "none")
	t.Setenv("OTEL_ENVIRONMENT", "test")
	t.Setenv("EXPIRY_SWEEP_SCHEDULE", "*/1 * * * *")
	t.Setenv("LOG_LEVEL", "error")
}

// TestRun exercises the real run() function end-to-end: OTel, River, HTTP
// server, and graceful shutdown.
func TestRun(t *testing.T) {
	setRunEnv(t, t.TempDir()+"/test-run.db", "19876")

	errCh := make(chan error, 1)
	go func() { errCh <- run() }()

	// Wait for the HTTP server to become ready.
	serverURL := "http://localhost:19876"
	ready := false
	for range 50 {
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, serverURL+"/openapi.json", nil)
		resp, reqErr := http.DefaultClient.Do(req)
		if reqErr == nil {
			resp.Body.Close()
			ready = true
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if !ready {
		t.Fatal("server did not start within 5 seconds")
	}

	// Unauthenticated callers are turned away by the API itself.
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, serverURL+"/api/v1/donations/available", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/v1/donations/available failed: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}

	// Send SIGINT to trigger graceful shutdown.
	proc, err := os.FindProcess(os.Getpid())
	if err != nil {
		t.Fatalf("finding process: %v", err)
	}
	if err := proc.Signal(syscall.SIGINT); err != nil {
		t.Fatalf("sending SIGINT: %v", err)
	}

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("run() returned error: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not exit within 15 seconds")
	}
}

// TestRun_InvalidDB verifies run() returns an error for an invalid database path.
func TestRun_InvalidDB(t *testing.T) {
	setRunEnv(t, "/nonexistent/path/db.sqlite", "19877")

	if err := run(); err == nil {
		t.Fatal("expected error for invalid database path, got nil")
	}
}

// TestRun_MissingSecret verifies run() refuses to start without a token secret.
func TestRun_MissingSecret(t *testing.T) {
	setRunEnv(t, t.TempDir()+"/test-run.db", "19878")
	t.Setenv("JWT_SECRET", "")

	if err := run(); err == nil {
		t.Fatal("expected error for missing JWT_SECRET, got nil")
	}
}

// TestRun_InvalidSchedule verifies run() rejects a malformed sweep schedule.
func TestRun_InvalidSchedule(t *testing.T) {
	setRunEnv(t, t.TempDir()+"/test-run.db", "19879")
	t.Setenv("EXPIRY_SWEEP_SCHEDULE", "whenever")

	if err := run(); err == nil {
		t.Fatal("expected error for invalid sweep schedule, got nil")
	}
}
