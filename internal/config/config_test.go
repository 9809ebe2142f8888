package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DAUTH_ENV", "development")
	t.Setenv("DATABASE_DSN", "postgres://localhost/dauth?sslmode=disable")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GatewayPort != 8080 {
		t.Errorf("GatewayPort = %d, want 8080", cfg.GatewayPort)
	}
	if cfg.SessionTTL.Minutes() != 8 {
		t.Errorf("SessionTTL = %v, want 8m", cfg.SessionTTL)
	}
	if cfg.WorkPoolSize != 32 {
		t.Errorf("WorkPoolSize = %d, want 32", cfg.WorkPoolSize)
	}
}

func TestLoadRejectsInvalidEnv(t *testing.T) {
	t.Setenv("DAUTH_ENV", "bogus")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid DAUTH_ENV")
	}
}

func TestValidateProductionRequiresSecrets(t *testing.T) {
	cfg := &Config{Env: "production", GatewayPort: 8080, SessionTTL: 1, WorkPoolSize: 1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when SECRET is empty in production")
	}

	cfg.JWTSigningKey = "0123456789abcdef0123456789abcdef"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when X_SHARED_SECRET is empty in production")
	}

	cfg.SharedSecret = "shared"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsBadPort(t *testing.T) {
	cfg := &Config{Env: "development", GatewayPort: 0, SessionTTL: 1, WorkPoolSize: 1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}
