package main

import (
	"strings"
	"testing"

	"propos/internal/config"
)

func TestValidateSecurityConfigRejectsShortSecret(t *testing.T) {
	cfg := config.Config{AuthSecret: "short"}
	if err := validateSecurityConfig(cfg); err == nil {
		t.Fatal("expected error for short AUTH_SECRET")
	}

	cfg.AuthSecret = strings.Repeat("x", 32)
	if err := validateSecurityConfig(cfg); err != nil {
		t.Fatalf("unexpected error for 32-char secret: %v", err)
	}
}
