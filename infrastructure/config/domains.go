package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LoadDomainsConfig loads the domain registration table from
// config/domains.yaml — the declarative list of which domain.Register
// calls cmd/spine/main.go is permitted to invoke.
func LoadDomainsConfig() (*DomainsConfig, error) {
	return LoadDomainsConfigFromPath(filepath.Join("config", "domains.yaml"))
}

// LoadDomainsConfigFromPath loads the domain registration table from a
// specific path.
func LoadDomainsConfigFromPath(path string) (*DomainsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read domains config: %w", err)
	}

	var cfg DomainsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse domains config: %w", err)
	}
	return &cfg, nil
}

// LoadDomainsConfigOrDefault loads the domain table, falling back to
// every domain cmd/spine/main.go knows about, all enabled, when no
// config/domains.yaml override exists.
func LoadDomainsConfigOrDefault() *DomainsConfig {
	cfg, err := LoadDomainsConfig()
	if err != nil {
		return DefaultDomainsConfig()
	}
	return cfg
}

// DefaultDomainsConfig enables every domain this build's main.go can
// register.
func DefaultDomainsConfig() *DomainsConfig {
	return &DomainsConfig{
		Domains: map[string]*DomainSettings{
			"finra.otc": {
				Enabled:     true,
				Description: "FINRA OTC trade-report capture, normalize, aggregate",
			},
		},
	}
}
