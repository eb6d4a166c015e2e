package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultDomainsConfig(t *testing.T) {
	cfg := DefaultDomainsConfig()
	if cfg == nil {
		t.Fatal("DefaultDomainsConfig() returned nil")
	}

	settings, ok := cfg.Domains["finra.otc"]
	if !ok {
		t.Fatal("missing domain \"finra.otc\" in default config")
	}
	if !settings.Enabled {
		t.Error("domain \"finra.otc\" should be enabled by default")
	}
	if settings.Description == "" {
		t.Error("domain \"finra.otc\" has no description")
	}
}

func TestLoadDomainsConfigFromPath(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "domains.yaml")

		configContent := `
domains:
  finra.otc:
    enabled: true
    description: "FINRA OTC demo domain"
  test.other:
    enabled: false
    description: "disabled for this deployment"
`
		if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := LoadDomainsConfigFromPath(configPath)
		if err != nil {
			t.Fatalf("LoadDomainsConfigFromPath() error = %v", err)
		}
		if cfg == nil {
			t.Fatal("LoadDomainsConfigFromPath() returned nil")
		}

		if !cfg.IsEnabled("finra.otc") {
			t.Error("finra.otc should be enabled")
		}
		if cfg.IsEnabled("test.other") {
			t.Error("test.other should be disabled")
		}
	})

	t.Run("file not found", func(t *testing.T) {
		_, err := LoadDomainsConfigFromPath("/nonexistent/path/domains.yaml")
		if err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "domains.yaml")

		if err := os.WriteFile(configPath, []byte("invalid: yaml: content:"), 0644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		_, err := LoadDomainsConfigFromPath(configPath)
		if err == nil {
			t.Error("expected error for invalid yaml")
		}
	})
}

func TestLoadDomainsConfigOrDefault(t *testing.T) {
	// config/domains.yaml does not exist relative to the test's working
	// directory, so this should fall back to DefaultDomainsConfig.
	cfg := LoadDomainsConfigOrDefault()
	if cfg == nil {
		t.Fatal("LoadDomainsConfigOrDefault() returned nil")
	}
	if len(cfg.Domains) == 0 {
		t.Error("expected non-empty domains map")
	}
	if !cfg.IsEnabled("finra.otc") {
		t.Error("expected finra.otc enabled in fallback default")
	}
}
