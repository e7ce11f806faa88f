package main

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/AryanShah2000/HabitTracker/internal/habit"
	"github.com/AryanShah2000/HabitTracker/internal/httpapi"
	"github.com/AryanShah2000/HabitTracker/internal/server"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if level, err := log.ParseLevel(envOrDefault("HABITD_LOG_LEVEL", "info")); err == nil {
		log.SetLevel(level)
	}

	addr := envOrDefault("HABITD_ADDR", ":8080")
	secret := os.Getenv("HABITD_JWT_SECRET")
	if secret == "" {
		log.Fatal("HABITD_JWT_SECRET is required")
	}

	backend, err := server.BuildStateBackendFromDSN(stateDSNFromEnv())
	if err != nil {
		log.Fatalf("failed to initialize state backend: %v", err)
	}

	catalog := habit.DefaultCatalog()
	if path := strings.TrimSpace(os.Getenv("HABITD_CATALOG_FILE")); path != "" {
		catalog, err = habit.LoadCatalog(path)
		if err != nil {
			log.Fatalf("failed to load goal catalog: %v", err)
		}
	}

	store := server.NewStore(server.StoreOptions{
		Backend: backend,
		Logger:  log.StandardLogger(),
	})
	defer store.Close()

	api := httpapi.NewServerWithConfig(store, httpapi.ServerConfig{
		JWTSecret:    secret,
		TokenTTL:     durationEnv("HABITD_TOKEN_TTL", 24*time.Hour),
		MaxBodyBytes: int64Env("HABITD_MAX_BODY_BYTES", 0),
		Catalog:      catalog,
		Logger:       log.StandardLogger(),
	})

	log.Infof("habitd listening on %s", addr)
	if err := http.ListenAndServe(addr, api); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func stateDSNFromEnv() string {
	if dsn := strings.TrimSpace(os.Getenv("HABITD_STATE_DSN")); dsn != "" {
		return dsn
	}
	if file := strings.TrimSpace(os.Getenv("HABITD_STATE_FILE")); file != "" {
		return file
	}
	return "file://habitd-state.json"
}

func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Warnf("invalid %s=%q, using fallback %d", name, raw, fallback)
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
		log.Warnf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}
