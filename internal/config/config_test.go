package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadFallsBackOnBadNumbers(t *testing.T) {
	t.Setenv("DASHBOARD_CACHE_TTL_SECONDS", "not-a-number")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-5")
	t.Setenv("DEFAULT_STORE_ID", "")

	cfg := Load()
	if cfg.SummaryTTLSeconds != 60 {
		t.Fatalf("summary ttl = %d, want fallback 60", cfg.SummaryTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("token ttl = %d, want fallback 480", cfg.AccessTokenTTLMinutes)
	}
	if cfg.DefaultStoreID != 0 {
		t.Fatalf("default store = %d, want 0 (resolve via repository)", cfg.DefaultStoreID)
	}
}
