package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// CLIConfig holds eventctl settings.
type CLIConfig struct {
	ServerURL string        `mapstructure:"server_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Output    string        `mapstructure:"output"`

	path string
}

// DefaultCLI returns the settings used when no config file exists.
func DefaultCLI() *CLIConfig {
	return &CLIConfig{
		ServerURL: "http://localhost:8090",
		Timeout:   30 * time.Second,
		Output:    "table",
	}
}

// Path is the file the settings were read from.
func (c *CLIConfig) Path() string { return c.path }

// LoadCLI reads eventctl settings from path, or $HOME/.eventctl/config.yaml
// when path is empty. A missing file is not an error. EVENTCTL_SERVER_URL
// and friends override the file.
func LoadCLI(path string) (*CLIConfig, error) {
	v := viper.New()

	def := DefaultCLI()
	v.SetDefault("server_url", def.ServerURL)
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("output", def.Output)

	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to determine home directory: %w", err)
		}
		path = filepath.Join(home, ".eventctl", "config.yaml")
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("EVENTCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &CLIConfig{path: path}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}
