package backup

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// S3Config describes an S3-compatible bucket backups are uploaded to
type S3Config struct {
	Access   string `yaml:"access"`
	Secret   string `yaml:"secret"`
	Bucket   string `yaml:"bucket"`
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
	// objects are stored under this prefix e.g. "backups/"
	Prefix string `yaml:"prefix"`
	// if > 0, only this many most recent backups are kept
	Keep int `yaml:"keep"`
	// use http instead of https, for local minio
	Insecure bool `yaml:"insecure"`
}

// HTTPConfig describes a server backups are PUT to, at URL/${name}
type HTTPConfig struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
}

type Config struct {
	S3   *S3Config   `yaml:"s3"`
	HTTP *HTTPConfig `yaml:"http"`

	// file extension that picks compression: .zstd, .br or .gz
	Compression string `yaml:"compression"`
	// timeout of the whole upload or download
	Timeout time.Duration `yaml:"timeout"`
}

const (
	envS3Access = "DRUM_S3_ACCESS"
	envS3Secret = "DRUM_S3_SECRET"
)

func (c *Config) setDefaults() {
	if c.Compression == "" {
		c.Compression = ".zstd"
	}
	if !strings.HasPrefix(c.Compression, ".") {
		c.Compression = "." + c.Compression
	}
	if c.Timeout == 0 {
		c.Timeout = 5 * time.Minute
	}
	if c.S3 == nil {
		return
	}
	// credentials in env variables over-ride the config file
	if v := os.Getenv(envS3Access); v != "" {
		c.S3.Access = v
	}
	if v := os.Getenv(envS3Secret); v != "" {
		c.S3.Secret = v
	}
}

func (c *Config) validate() error {
	switch c.Compression {
	case ".zstd", ".br", ".gz":
	default:
		return fmt.Errorf("backup: unsupported compression '%s'", c.Compression)
	}
	if c.S3 == nil && c.HTTP == nil {
		return errors.New("backup: no destination configured, need s3 or http")
	}
	if c.HTTP != nil && c.HTTP.URL == "" {
		return errors.New("backup: http.url is empty")
	}
	return nil
}

// ParseConfig parses yaml config
func ParseConfig(d []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(d, cfg); err != nil {
		return nil, fmt.Errorf("backup: parsing config: %w", err)
	}
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig loads yaml config from path
func LoadConfig(path string) (*Config, error) {
	d, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to read config file %s: %w", path, err)
	}
	return ParseConfig(d)
}
