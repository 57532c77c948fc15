package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/neomorfeo/foodflow/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.DatabasePath != "foodflow.db" {
		t.Errorf("DatabasePath = %q, want %q", cfg.DatabasePath, "foodflow.db")
	}
	if cfg.JWTIssuer != "foodflow-auth" {
		t.Errorf("JWTIssuer = %q, want %q", cfg.JWTIssuer, "foodflow-auth")
	}
	if cfg.SweepSchedule != "*/1 * * * *" {
		t.Errorf("SweepSchedule = %q, want %q", cfg.SweepSchedule, "*/1 * * * *")
	}
	if cfg.QueueMaxWorkers != 2 {
		t.Errorf("QueueMaxWorkers = %d, want 2", cfg.QueueMaxWorkers)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want %v", cfg.ShutdownTimeout, 10*time.Second)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_PATH", "/tmp/ff.db")
	t.Setenv("EXPIRY_SWEEP_SCHEDULE", "*/5 * * * *")
	t.Setenv("QUEUE_MAX_WORKERS", "4")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want %q", cfg.Port, "9090")
	}
	if cfg.DatabasePath != "/tmp/ff.db" {
		t.Errorf("DatabasePath = %q, want %q", cfg.DatabasePath, "/tmp/ff.db")
	}
	if cfg.SweepSchedule != "*/5 * * * *" {
		t.Errorf("SweepSchedule = %q, want %q", cfg.SweepSchedule, "*/5 * * * *")
	}
	if cfg.QueueMaxWorkers != 4 {
		t.Errorf("QueueMaxWorkers = %d, want 4", cfg.QueueMaxWorkers)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
}

func TestLoad_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatal("expected error when JWT_SECRET is empty")
	}
}

func TestLoad_InvalidWorkers(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("QUEUE_MAX_WORKERS", "0")

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatal("expected error for zero workers")
	}
}

func TestLoad_DotenvFile(t *testing.T) {
	// Registered so t.Setenv restores the variable; cleared so the file applies.
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")
	t.Setenv("JWT_ISSUER", "from-env")

	path := filepath.Join(t.TempDir(), ".env")
	content := "JWT_SECRET=from-file\nJWT_ISSUER=from-file\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing dotenv: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.JWTSecret != "from-file" {
		t.Errorf("JWTSecret = %q, want %q", cfg.JWTSecret, "from-file")
	}
	if cfg.JWTIssuer != "from-env" {
		t.Errorf("JWTIssuer = %q, want %q: the process environment wins", cfg.JWTIssuer, "from-env")
	}
}
