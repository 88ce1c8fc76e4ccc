// Package config loads the relay's YAML configuration.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"sc2tap.ai/internal/terrain"
)

// ErrInvalid wraps every schema or value violation.
var ErrInvalid = errors.New("config: invalid")

//go:embed config.schema.json
var schemaJSON []byte

type Config struct {
	ListenAddr       string `yaml:"listen_addr"`
	UpstreamURL      string `yaml:"upstream_url"`
	ConnectAttempts  int    `yaml:"connect_attempts"`
	ConnectDelayMS   int    `yaml:"connect_delay_ms"`
	SubscriberBuffer int    `yaml:"subscriber_buffer"`

	TileSize float32 `yaml:"tile_size"`
	// MapSize is used until game info reports the real size.
	MapSize [2]int `yaml:"map_size"`

	ViewerAddr  string `yaml:"viewer_addr"`
	DataDir     string `yaml:"data_dir"`
	Record      bool   `yaml:"record"`
	IndexDB     bool   `yaml:"index_db"`
	CatalogPath string `yaml:"catalog_path"`

	Style  terrain.Style `yaml:"style"`
	Log    LogConfig     `yaml:"log"`
	Upload UploadConfig  `yaml:"upload"`
}

// UploadConfig mirrors closed recordings to an S3 compatible bucket when
// Endpoint is set. Credentials come from the environment only.
type UploadConfig struct {
	Endpoint string `yaml:"endpoint"`
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Prefix   string `yaml:"prefix"`
	Workers  int    `yaml:"workers"`

	AccessKeyID     string `yaml:"-"`
	SecretAccessKey string `yaml:"-"`
}

type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

func Defaults() Config {
	return Config{
		ListenAddr:       "127.0.0.1:5000",
		UpstreamURL:      "ws://127.0.0.1:5555/sc2api",
		ConnectAttempts:  6,
		ConnectDelayMS:   2000,
		SubscriberBuffer: 100,
		TileSize:         16,
		MapSize:          [2]int{200, 176},
		ViewerAddr:       "127.0.0.1:8089",
		DataDir:          "./data",
		CatalogPath:      "data/data.json",
		Style:            terrain.DefaultStyle(),
		Log: LogConfig{
			MaxSizeMB:  64,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Upload: UploadConfig{Workers: 1},
	}
}

// ConnectDelay is ConnectDelayMS as a duration.
func (c Config) ConnectDelay() time.Duration {
	return time.Duration(c.ConnectDelayMS) * time.Millisecond
}

// StyleConfig returns the blender style with the configured tile size.
func (c Config) StyleConfig() terrain.Style {
	s := c.Style
	s.TileSize = c.TileSize
	return s
}

// Load reads path over Defaults. The document is checked against the
// embedded schema first, so unknown keys and wrong types are rejected. A
// missing file returns an error satisfying os.IsNotExist.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Defaults(), err
	}
	return Parse(raw)
}

// Parse is Load for an in-memory document.
func Parse(raw []byte) (Config, error) {
	cfg := Defaults()

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return cfg, fmt.Errorf("%w: config.yaml: %v", ErrInvalid, err)
	}
	if doc != nil {
		if err := validateSchema(doc); err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: config.yaml: %v", ErrInvalid, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints the schema cannot express.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.ListenAddr) == "":
		return fmt.Errorf("%w: listen_addr is empty", ErrInvalid)
	case !strings.HasPrefix(c.UpstreamURL, "ws://") && !strings.HasPrefix(c.UpstreamURL, "wss://"):
		return fmt.Errorf("%w: upstream_url must be a ws:// or wss:// url, got %q", ErrInvalid, c.UpstreamURL)
	case c.ConnectAttempts < 1:
		return fmt.Errorf("%w: connect_attempts must be at least 1", ErrInvalid)
	case c.ConnectDelayMS < 0:
		return fmt.Errorf("%w: connect_delay_ms must not be negative", ErrInvalid)
	case c.SubscriberBuffer < 1:
		return fmt.Errorf("%w: subscriber_buffer must be at least 1", ErrInvalid)
	case c.TileSize <= 0:
		return fmt.Errorf("%w: tile_size must be positive", ErrInvalid)
	case c.MapSize[0] < 0 || c.MapSize[1] < 0:
		return fmt.Errorf("%w: map_size must not be negative", ErrInvalid)
	case c.Style.HeightIntensity[0] > c.Style.HeightIntensity[1]:
		return fmt.Errorf("%w: style.height_intensity min exceeds max", ErrInvalid)
	case c.Upload.Endpoint != "" && strings.TrimSpace(c.Upload.Bucket) == "":
		return fmt.Errorf("%w: upload.bucket is required with upload.endpoint", ErrInvalid)
	}
	return nil
}

// ApplyEnv overrides addresses from SC2TAP_* variables when set and reads
// the upload credentials.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv("SC2TAP_LISTEN")); v != "" {
		c.ListenAddr = v
	}
	if v := strings.TrimSpace(getenv("SC2TAP_UPSTREAM")); v != "" {
		c.UpstreamURL = v
	}
	if v := strings.TrimSpace(getenv("SC2TAP_VIEWER")); v != "" {
		c.ViewerAddr = v
	}
	if v := strings.TrimSpace(getenv("SC2TAP_DATA_DIR")); v != "" {
		c.DataDir = v
	}
	c.Upload.AccessKeyID = strings.TrimSpace(getenv("SC2TAP_S3_ACCESS_KEY_ID"))
	c.Upload.SecretAccessKey = strings.TrimSpace(getenv("SC2TAP_S3_SECRET_ACCESS_KEY"))
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func validateSchema(doc any) error {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("config.schema.json", bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile("config.schema.json")
	})
	if schemaErr != nil {
		return fmt.Errorf("config schema: %w", schemaErr)
	}

	// The validator wants JSON shaped values; YAML ints and keys are
	// normalized by a JSON round trip.
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
