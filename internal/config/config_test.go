package config

import (
	"strings"
	"testing"
)

const testMasterKey = "0101010101010101010101010101010101010101010101010101010101010101"

func TestLoadConfigRequiresMasterKey(t *testing.T) {
	t.Setenv("CREDENTIAL_MASTER_KEY", "")

	if _, err := LoadConfig(); err == nil {
		t.Error("expected error without CREDENTIAL_MASTER_KEY")
	}

	t.Setenv("CREDENTIAL_MASTER_KEY", "deadbeef")
	if _, err := LoadConfig(); err == nil {
		t.Error("expected error for short master key")
	}
}

func TestLoadConfigParsesCustomProviderExtras(t *testing.T) {
	t.Setenv("CREDENTIAL_MASTER_KEY", testMasterKey)
	t.Setenv("LLM_EXTRA", `{"top_p":0.9,"repetition_penalty":1.1}`)
	t.Setenv("LLM_HEADERS", `{"X-Api-Version":"2024-01"}`)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.LLMExtra["top_p"] != 0.9 {
		t.Errorf("LLMExtra not parsed: %v", cfg.LLMExtra)
	}
	if cfg.LLMHeaders["X-Api-Version"] != "2024-01" {
		t.Errorf("LLMHeaders not parsed: %v", cfg.LLMHeaders)
	}
}

func TestLoadConfigRejectsMalformedExtras(t *testing.T) {
	t.Setenv("CREDENTIAL_MASTER_KEY", testMasterKey)
	t.Setenv("LLM_EXTRA", `not json`)

	_, err := LoadConfig()
	if err == nil || !strings.Contains(err.Error(), "LLM_EXTRA") {
		t.Errorf("expected LLM_EXTRA parse error, got %v", err)
	}
}

func TestLoadConfigValidatesChunkOverlap(t *testing.T) {
	t.Setenv("CREDENTIAL_MASTER_KEY", testMasterKey)
	t.Setenv("MAX_CHUNK_SIZE", "100")
	t.Setenv("CHUNK_OVERLAP", "100")

	if _, err := LoadConfig(); err == nil {
		t.Error("expected error for overlap >= chunk size")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CREDENTIAL_MASTER_KEY", testMasterKey)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.MaxChunkSize != 1000 || cfg.ChunkOverlap != 200 {
		t.Errorf("chunking defaults wrong: %d/%d", cfg.MaxChunkSize, cfg.ChunkOverlap)
	}
	if !cfg.AutoRoute {
		t.Error("auto-routing should default on")
	}
	if cfg.LLMExtra != nil || cfg.LLMHeaders != nil {
		t.Errorf("extras should default empty: %v %v", cfg.LLMExtra, cfg.LLMHeaders)
	}
}
