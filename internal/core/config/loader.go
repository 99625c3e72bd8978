package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates it.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if len(c.Pipelines) == 0 {
		c.Pipelines = []PipelineConfig{{Name: "main"}}
	}
	for i := range c.Pipelines {
		if c.Pipelines[i].Concurrency == 0 {
			c.Pipelines[i].Concurrency = 8
		}
		if c.Pipelines[i].PollInterval == 0 {
			c.Pipelines[i].PollInterval = 2 * time.Second
		}
	}
}

// Validate checks the configuration for values the service cannot run with.
func (c *AppConfig) Validate() error {
	if c.Ingestion.RemoteStoreURL == "" {
		return fmt.Errorf("%w: ingestion.remote_store_url is required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.Ingestion.RemoteStoreURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: ingestion.remote_store_url %q must be an http(s) URL",
			ErrInvalidConfig, c.Ingestion.RemoteStoreURL)
	}
	if c.Ingestion.RequestTimeout < 0 || c.Ingestion.RetentionPeriod < 0 {
		return fmt.Errorf("%w: ingestion durations must not be negative", ErrInvalidConfig)
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: logging.format %q must be text or json", ErrInvalidConfig, c.Logging.Format)
	}

	seen := make(map[string]bool, len(c.Pipelines))
	for i, p := range c.Pipelines {
		if p.Name == "" {
			return fmt.Errorf("%w: pipelines[%d].name is required", ErrInvalidConfig, i)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate pipeline name %q", ErrInvalidConfig, p.Name)
		}
		seen[p.Name] = true

		if p.EndCheckpoint > 0 && p.EndCheckpoint < p.StartCheckpoint {
			return fmt.Errorf("%w: pipeline %q end_checkpoint %d is before start_checkpoint %d",
				ErrInvalidConfig, p.Name, p.EndCheckpoint, p.StartCheckpoint)
		}
		if p.Concurrency < 0 || p.PollInterval < 0 || p.FetchTimeout < 0 {
			return fmt.Errorf("%w: pipeline %q has negative settings", ErrInvalidConfig, p.Name)
		}
	}

	return nil
}
