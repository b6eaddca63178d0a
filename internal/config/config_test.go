package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"APP_ENV", "STORE_BACKEND", "ADMIN_TOKEN_TTL", "COOKIE_NAME", "CORS_ORIGINS", "RATE_LIMIT_PER_MIN"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	if cfg.StoreBackend != "postgres" || cfg.CookieName != "admin_session" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.AdminTokenTTL != 24*time.Hour || cfg.RateLimitPerMin != 120 {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.IsProduction() || len(cfg.CORSOrigins) != 0 {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("STORE_BACKEND", "mongo")
	t.Setenv("ADMIN_TOKEN_TTL", "2h")
	t.Setenv("AUTO_MIGRATE", "false")
	t.Setenv("RATE_LIMIT_PER_MIN", "30")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")

	cfg := Load()
	if !cfg.IsProduction() || cfg.StoreBackend != "mongo" || cfg.AutoMigrate {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.AdminTokenTTL != 2*time.Hour || cfg.RateLimitPerMin != 30 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("origins = %v", cfg.CORSOrigins)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("ADMIN_TOKEN_TTL", "forever")
	t.Setenv("RATE_LIMIT_PER_MIN", "lots")
	t.Setenv("AUTO_MIGRATE", "maybe")
	cfg := Load()
	if cfg.AdminTokenTTL != 24*time.Hour || cfg.RateLimitPerMin != 120 || !cfg.AutoMigrate {
		t.Fatalf("cfg = %+v", cfg)
	}
}
