package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models vigia.yml.
type Config struct {
	Site struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"site"`
	Areas []string `yaml:"areas"`
	Policy struct {
		RequireEvidenceOnCreate bool    `yaml:"require_evidence_on_create"`
		AllowCloseEvidenceURL   bool    `yaml:"allow_close_evidence_url"`
		CloseRequiresOwnership  bool    `yaml:"close_requires_ownership"`
		WarnRatio               float64 `yaml:"warn_ratio"`
	} `yaml:"policy"`
	Storage struct {
		Driver   string `yaml:"driver"`
		Bucket   string `yaml:"bucket"`
		Region   string `yaml:"region"`
		Endpoint string `yaml:"endpoint"`
		// PathStyle forces path-style addressing, needed by MinIO and
		// most self-hosted S3 gateways.
		PathStyle bool `yaml:"path_style"`
	} `yaml:"storage"`
	Mirror struct {
		URL     string `yaml:"url"`
		Token   string `yaml:"token"`
		Enabled bool   `yaml:"enabled"`
	} `yaml:"mirror"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with vg init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Site.ID == "" {
		return fmt.Errorf("config.site.id is required")
	}
	if len(c.Areas) == 0 {
		return fmt.Errorf("config.areas must list at least one area")
	}
	seen := make(map[string]bool, len(c.Areas))
	for _, a := range c.Areas {
		if a == "" {
			return fmt.Errorf("config.areas contains an empty entry")
		}
		if seen[a] {
			return fmt.Errorf("config.areas lists %s twice", a)
		}
		seen[a] = true
	}
	if r := c.Policy.WarnRatio; r < 0 || r > 1 {
		return fmt.Errorf("config.policy.warn_ratio must be within [0,1], got %v", r)
	}
	switch c.Storage.Driver {
	case "", "memory":
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("config.storage.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("config.storage.driver must be 'memory' or 's3'")
	}
	if c.Mirror.Enabled && c.Mirror.URL == "" {
		return fmt.Errorf("config.mirror.url is required when the mirror is enabled")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "vigia.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault(siteID string) string {
	return fmt.Sprintf(defaultTemplate, siteID)
}

// Default returns the default Config struct for a site.
func Default(siteID string) *Config {
	var cfg Config
	cfg.Site.ID = siteID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, siteID))).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `site:
  id: %s
  name: "Observaciones de seguridad"

areas:
  - chancado
  - molienda
  - flotacion
  - planta sx ew
  - mantenimiento
  - laboratorio
  - almacen

policy:
  # Opening evidence is optional unless the site demands a photo up front.
  require_evidence_on_create: false
  # Allow pasting an evidence URL at closure instead of uploading a file.
  allow_close_evidence_url: true
  # When true, only the creator or an admin may close an observation.
  close_requires_ownership: false
  # Share of the due-date window after which an open observation turns amarillo.
  warn_ratio: 0.75

storage:
  driver: memory
  bucket: evidencias

mirror:
  enabled: false
  url: ""
  token: ""
`
