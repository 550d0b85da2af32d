package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/trinity/internal/trinity"
)

const (
	DefaultEndpoint   = "http://localhost:8000"
	DefaultTransport  = TransportHTTP
	DefaultTimeout    = 30 * time.Second
	DefaultRetries    = 3
	DefaultRetryDelay = 500 * time.Millisecond
	DefaultDataDir    = ".trinity"
	DefaultTheme      = "cyberpunk"
	DefaultLogLevel   = "INFO"
	DefaultServerAddr = ":8000"
)

const (
	TransportHTTP = "http"
	TransportWS   = "ws"
)

type Config struct {
	Endpoint      string        `yaml:"endpoint"`
	Transport     string        `yaml:"transport"`
	Timeout       time.Duration `yaml:"timeout"`
	Retries       int           `yaml:"retries"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	DefaultPreset string        `yaml:"default_preset"`
	DataDir       string        `yaml:"data_dir"`
	Theme         string        `yaml:"theme"`
	Log           LogConfig     `yaml:"log"`
	Server        ServerConfig  `yaml:"server"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

// ServerConfig tunes the reference renderer started by `trinity serve`.
type ServerConfig struct {
	Addr        string        `yaml:"addr"`
	Latency     time.Duration `yaml:"latency"`
	Jitter      time.Duration `yaml:"jitter"`
	FailureRate float64       `yaml:"failure_rate"`
}

func DefaultConfig() *Config {
	return &Config{
		Endpoint:      DefaultEndpoint,
		Transport:     DefaultTransport,
		Timeout:       DefaultTimeout,
		Retries:       DefaultRetries,
		RetryDelay:    DefaultRetryDelay,
		DefaultPreset: string(trinity.DefaultPreset),
		DataDir:       DefaultDataDir,
		Theme:         DefaultTheme,
		Log:           LogConfig{Level: DefaultLogLevel},
		Server:        ServerConfig{Addr: DefaultServerAddr},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadEnv reads .env style files into the process environment. Missing
// files are skipped.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from TRINITY_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("TRINITY_ENDPOINT"); v != "" {
		c.Endpoint = v
	}
	if v := os.Getenv("TRINITY_TRANSPORT"); v != "" {
		c.Transport = strings.ToLower(v)
	}
	if v := os.Getenv("TRINITY_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("TRINITY_DATA_DIR"); v != "" {
		c.DataDir = v
	}
}

func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("config: endpoint is required")
	}
	switch c.Transport {
	case TransportHTTP, TransportWS:
	default:
		return fmt.Errorf("config: unknown transport %q", c.Transport)
	}
	if c.Timeout <= 0 {
		return errors.New("config: timeout must be positive")
	}
	if c.Retries < 1 {
		return errors.New("config: retries must be at least 1")
	}
	if _, err := trinity.ParsePreset(c.DefaultPreset); err != nil {
		return fmt.Errorf("config: default_preset: %w", err)
	}
	if c.Server.FailureRate < 0 || c.Server.FailureRate > 1 {
		return errors.New("config: server.failure_rate must be within [0, 1]")
	}
	return nil
}

// InitialPreset returns the parsed default preset, falling back to
// trinity.DefaultPreset.
func (c *Config) InitialPreset() trinity.Preset {
	p, err := trinity.ParsePreset(c.DefaultPreset)
	if err != nil {
		return trinity.DefaultPreset
	}
	return p
}
