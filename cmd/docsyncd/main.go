package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/loomworks/docsync/internal/durable"
	"github.com/loomworks/docsync/internal/httpapi"
)

func main() {
	logger := buildLogger(os.Getenv("DOCSYNC_LOG_LEVEL"))
	slog.SetDefault(logger)

	addr := os.Getenv("DOCSYNC_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	store, err := buildSectionStoreFromEnv()
	if err != nil {
		logger.Error("failed to initialize section store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := durable.CloseStore(store); closeErr != nil {
			logger.Warn("failed to close section store", "error", closeErr)
		}
	}()

	server := httpapi.NewServerWithConfig(store, httpapi.ServerConfig{
		JWTSecret:       os.Getenv("DOCSYNC_JWT_SECRET"),
		RateLimitMax:    intEnv("DOCSYNC_RATE_LIMIT_MAX", 0),
		RateLimitWindow: durationEnv("DOCSYNC_RATE_LIMIT_WINDOW", time.Minute),
		MaxBodyBytes:    int64Env("DOCSYNC_MAX_BODY_BYTES", 0),
		Logger:          logger,
	})

	logger.Info("docsyncd listening", "addr", addr)
	if err := http.ListenAndServe(addr, server); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// buildSectionStoreFromEnv resolves the storage backend: an explicit DSN wins,
// otherwise DOCSYNC_BACKEND_PROFILE picks a sensible default.
func buildSectionStoreFromEnv() (durable.SectionStore, error) {
	if dsn := strings.TrimSpace(os.Getenv("DOCSYNC_STORE_DSN")); dsn != "" {
		return durable.BuildSectionStoreFromDSN(dsn)
	}
	profileDSN, err := storageProfileDefaultsFromEnv()
	if err != nil {
		return nil, err
	}
	return durable.BuildSectionStoreFromDSN(profileDSN)
}

func storageProfileDefaultsFromEnv() (string, error) {
	profile := strings.ToLower(strings.TrimSpace(os.Getenv("DOCSYNC_BACKEND_PROFILE")))
	dataDir := strings.TrimSpace(os.Getenv("DOCSYNC_DATA_DIR"))
	if dataDir == "" {
		dataDir = ".docsync"
	}
	switch profile {
	case "", "memory", "inmemory":
		return "memory://", nil
	case "durable-local", "local-durable":
		return "file://" + filepath.Join(dataDir, "sections.json"), nil
	case "production", "prod":
		productionDSN := strings.TrimSpace(os.Getenv("DOCSYNC_POSTGRES_DSN"))
		if productionDSN == "" {
			return "", fmt.Errorf("DOCSYNC_POSTGRES_DSN is required when DOCSYNC_BACKEND_PROFILE=%s", profile)
		}
		return productionDSN, nil
	default:
		return "", fmt.Errorf("unsupported DOCSYNC_BACKEND_PROFILE: %s", profile)
	}
}

func buildLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel}))
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid integer env var, using fallback", "name", name, "value", raw, "fallback", fallback)
		return fallback
	}
	return value
}

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		slog.Warn("invalid integer env var, using fallback", "name", name, "value", raw, "fallback", fallback)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		slog.Warn("invalid duration env var, using fallback", "name", name, "value", raw, "fallback", fallback.String())
		return fallback
	}
	return value
}
