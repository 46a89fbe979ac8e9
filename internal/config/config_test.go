package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.GeminiModel == "" {
		t.Error("expected a default Gemini model")
	}
	if cfg.LLMTimeout != 30*time.Second {
		t.Errorf("expected default LLM timeout 30s, got %s", cfg.LLMTimeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("LLM_TIMEOUT", "45s")
	t.Setenv("CONVERSATION_LOG_ENABLED", "off")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9999" {
		t.Errorf("expected port 9999, got %s", cfg.Port)
	}
	if cfg.LLMTimeout != 45*time.Second {
		t.Errorf("expected 45s timeout, got %s", cfg.LLMTimeout)
	}
	if cfg.ConversationLog.Enabled {
		t.Error("expected conversation logging to be disabled")
	}
}

func TestValidateRejectsEmptyDBPath(t *testing.T) {
	t.Setenv("DB_PATH", "")

	if _, err := Load(); err == nil {
		t.Fatal("Load accepted empty DB_PATH")
	}
}

func TestIsDevelopment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		frontendURL string
		want        bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:3000", true},
		{"https://charla.example.com", false},
	}
	for _, tt := range tests {
		cfg := &Config{FrontendURL: tt.frontendURL}
		if got := cfg.IsDevelopment(); got != tt.want {
			t.Errorf("IsDevelopment(%q) = %v, want %v", tt.frontendURL, got, tt.want)
		}
	}
}
