// Package config loads the executor registry from a YAML document via
// viper, with OPENCLAW_* environment variables overriding the file's
// defaults section.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// ExecutorType is the kind of substrate an executor config targets.
type ExecutorType string

const (
	ExecutorSSH       ExecutorType = "ssh"
	ExecutorContainer ExecutorType = "container"
	ExecutorLocal     ExecutorType = "local"
)

// ContainerRuntime selects which CLI the container executor shells out to.
type ContainerRuntime string

const (
	RuntimeDocker ContainerRuntime = "docker"
	RuntimePodman ContainerRuntime = "podman"
)

// ExecutorConfig describes one named executor.
type ExecutorConfig struct {
	Name         string            `yaml:"name"`
	Type         ExecutorType      `yaml:"type"`
	Host         string            `yaml:"host,omitempty"`
	Port         int               `yaml:"port,omitempty"`
	User         string            `yaml:"user,omitempty"`
	KeyPath      string            `yaml:"key_path,omitempty"`
	ClaudePath   string            `yaml:"claude_path,omitempty"`
	Image        string            `yaml:"image,omitempty"`
	Runtime      ContainerRuntime  `yaml:"runtime,omitempty"`
	Volumes      []string          `yaml:"volumes,omitempty"`
	Labels       []string          `yaml:"labels,omitempty"`
	Env          map[string]string `yaml:"env,omitempty"`
}

// ClaudeBinary returns the configured claude binary, defaulting to "claude".
func (c ExecutorConfig) ClaudeBinary() string {
	if c.ClaudePath == "" {
		return "claude"
	}
	return c.ClaudePath
}

// SSHPort returns the configured SSH port, defaulting to 22.
func (c ExecutorConfig) SSHPort() int {
	if c.Port == 0 {
		return 22
	}
	return c.Port
}

// ContainerRuntimeOrDefault returns the configured runtime, defaulting to docker.
func (c ExecutorConfig) ContainerRuntimeOrDefault() ContainerRuntime {
	if c.Runtime == "" {
		return RuntimeDocker
	}
	return c.Runtime
}

// HasLabel reports whether c carries label.
func (c ExecutorConfig) HasLabel(label string) bool {
	for _, l := range c.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// Defaults holds the config document's defaults section. WebhookURL
// configures the completion webhook. MaxTurns and ClaudePath are loaded and
// reported, but are not applied to task requests or executors: a request
// without max turns passes none to claude, and an executor without
// claude_path runs "claude".
type Defaults struct {
	MaxTurns   int    `yaml:"max_turns"`
	ClaudePath string `yaml:"claude_path"`
	WebhookURL string `yaml:"webhook_url,omitempty"`
}

// Config is the top-level executor registry document.
type Config struct {
	Executors []ExecutorConfig `yaml:"executors"`
	Defaults  Defaults         `yaml:"defaults"`
}

// Empty returns a Config with no executors and library defaults.
func Empty() Config {
	return Config{Defaults: Defaults{MaxTurns: 100, ClaudePath: "claude"}}
}

// DefaultPath returns "~/.config/openclaw/coding-agent.yaml".
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "/etc"
	}
	return filepath.Join(dir, "openclaw", "coding-agent.yaml")
}

// Load reads and parses the config document at path via viper. A missing
// file yields the library defaults, and OPENCLAW_DEFAULTS_* environment
// variables override the file's defaults section either way.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("OPENCLAW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Empty()
	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// Environment wins over the file for the defaults section.
	if s := v.GetString("defaults.claude_path"); s != "" {
		cfg.Defaults.ClaudePath = s
	}
	if s := v.GetString("defaults.webhook_url"); s != "" {
		cfg.Defaults.WebhookURL = s
	}
	if n := v.GetInt("defaults.max_turns"); n != 0 {
		cfg.Defaults.MaxTurns = n
	}
	if cfg.Defaults.MaxTurns == 0 {
		cfg.Defaults.MaxTurns = 100
	}
	if cfg.Defaults.ClaudePath == "" {
		cfg.Defaults.ClaudePath = "claude"
	}
	return cfg, nil
}

// FindExecutor looks up an executor config by exact name.
func (c Config) FindExecutor(name string) (ExecutorConfig, bool) {
	for _, e := range c.Executors {
		if e.Name == name {
			return e, true
		}
	}
	return ExecutorConfig{}, false
}

// FindByLabels returns every executor config carrying all of labels.
func (c Config) FindByLabels(labels []string) []ExecutorConfig {
	var out []ExecutorConfig
	for _, e := range c.Executors {
		matches := true
		for _, l := range labels {
			if !e.HasLabel(l) {
				matches = false
				break
			}
		}
		if matches {
			out = append(out, e)
		}
	}
	return out
}
