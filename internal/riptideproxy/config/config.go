// Package config decodes and validates the riptide-proxy system config
// document (the `proxy:` / `engine:` YAML block described in SPEC_FULL.md
// §6), the Go-native replacement for the Python source's Config/Schema
// validation pair.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Proxy holds the `proxy:` section of the system config.
type Proxy struct {
	URL    string `yaml:"url"`
	Ports  Ports  `yaml:"ports"`
	// Autostart enables the WebSocket-driven boot flow (resolver
	// ResolveStatus NOT_STARTED vs NOT_STARTED_AUTOSTART).
	Autostart bool `yaml:"autostart"`
	// Compression toggles RuntimeStorage.UseCompression; carried through
	// for parity with the source's `use_compression` flag, it does not
	// otherwise affect request handling (compressing response bodies is
	// an explicit spec.md Non-goal).
	Compression bool `yaml:"compression"`
	// AutostartRestrict is a CIDR allow-list for the autostart WebSocket
	// endpoint (the Permission Gate, spec.md §4.8). Nil/empty means
	// "allow any client".
	AutostartRestrict []string `yaml:"autostart_restrict"`
}

// Ports holds the two listener ports. HTTPS is 0 to disable the TLS
// listener entirely.
type Ports struct {
	HTTP  int `yaml:"http"`
	HTTPS int `yaml:"https"`
}

// Config is the full system config document.
type Config struct {
	Proxy Proxy `yaml:"proxy"`
	// Engine is a selector string for the container-engine provider
	// (the "engine" collaborator is out of scope per spec.md §1; this is
	// only the name used to pick one at startup).
	Engine string `yaml:"engine"`
}

// Load reads and parses the system config document at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks the minimal set of fields the proxy cannot run without.
func (c *Config) Validate() error {
	if c.Proxy.URL == "" {
		return fmt.Errorf("proxy.url is required")
	}
	if c.Proxy.Ports.HTTP <= 0 {
		return fmt.Errorf("proxy.ports.http must be a positive port number")
	}
	if c.Proxy.Ports.HTTPS < 0 {
		return fmt.Errorf("proxy.ports.https must be 0 (disabled) or a positive port number")
	}
	if c.Engine == "" {
		return fmt.Errorf("engine is required")
	}
	return nil
}
