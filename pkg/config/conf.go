package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPort is the scoring server port when none is configured.
	DefaultPort = 8080
	// DefaultArtifactName is the artifact file name under the app home dir.
	DefaultArtifactName = "model.json"

	configFileName = "config.yaml"
	dirMode        = 0700
	fileMode       = 0600
)

// Config represents app config object. Environment variables override
// values read from the config file.
type Config struct {
	// Artifact is the trained model artifact path or URL.
	Artifact string `yaml:"artifact" env:"CHURN_ARTIFACT"`
	// DB is the run history DSN: a sqlite file path or a postgres:// URL.
	DB string `yaml:"db" env:"CHURN_DB"`
	// Port is the scoring server port.
	Port int `yaml:"port" env:"CHURN_PORT"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" env:"CHURN_LOG_LEVEL"`
	// Endpoint is a remote scoring URL used instead of the local artifact.
	Endpoint string `yaml:"endpoint,omitempty" env:"CHURN_ENDPOINT"`
}

// Default returns the config used when no file exists yet, rooted at dirPath.
func Default(dirPath string) *Config {
	return &Config{
		Artifact: filepath.Join(dirPath, DefaultArtifactName),
		DB:       filepath.Join(dirPath, "data.db"),
		Port:     DefaultPort,
		LogLevel: "info",
	}
}

// Save writes c into the config file in dirPath.
func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(dirPath, configFileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configFileName, err)
	}
	return nil
}

// ReadOrCreate reads app config from directory or creates a new one,
// then applies environment overrides.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dirPath, dirMode); err != nil {
			return nil, fmt.Errorf("failed to create dir %s: %w", dirPath, err)
		}
	}

	path := filepath.Join(dirPath, configFileName)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := Save(dirPath, Default(dirPath)); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	c := Default(dirPath)
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("error unmarshalling config file %s: %w", path, err)
	}

	if err := ApplyEnv(c); err != nil {
		return nil, err
	}
	return c, nil
}

// ApplyEnv overrides c with any CHURN_* environment variables that are set.
func ApplyEnv(c *Config) error {
	if c == nil {
		return errors.New("config required")
	}
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// FromEnv builds a config from defaults and the environment only.
func FromEnv() (*Config, error) {
	c := &Config{Port: DefaultPort, LogLevel: "info"}
	if err := ApplyEnv(c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetOrCreateHomeDir returns the home directory for the current user.
// The create flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("failed to get user home dir: %w", err)
	}
	slog.Debug("home dir", "path", home)

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, fmt.Errorf("failed to create dir %s: %w", dir, err)
		}
		created = true
	}
	return dir, created, nil
}
