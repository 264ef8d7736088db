package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zhubert/codexmonitor/paths"
)

// Defaults applied when config.yaml is missing or leaves a field unset.
const (
	DefaultListen            = "127.0.0.1:7717"
	DefaultAgentBin          = "codex"
	DefaultVersionTimeout    = 5 * time.Second
	DefaultInitializeTimeout = 15 * time.Second
	DefaultMaxFiles          = 20000
	DefaultClientName        = "codex_monitor"
	DefaultClientTitle       = "CodexMonitor"
	DefaultClientVersion     = "0.1.0"
)

// Duration is a time.Duration that reads and writes as "5s" in YAML.
type Duration time.Duration

// MarshalYAML renders the duration in Go syntax.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts any string time.ParseDuration understands.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// ClientInfo identifies this program in the initialize handshake.
type ClientInfo struct {
	Name    string `yaml:"name"`
	Title   string `yaml:"title"`
	Version string `yaml:"version"`
}

// AgentConfig controls how agent processes are located and started.
type AgentConfig struct {
	Bin               string     `yaml:"bin"`                   // Executable used when a workspace has no override
	ExtraPaths        []string   `yaml:"extra_paths,omitempty"` // Appended to the search path for Bin
	VersionTimeout    Duration   `yaml:"version_timeout"`
	InitializeTimeout Duration   `yaml:"initialize_timeout"`
	Client            ClientInfo `yaml:"client"`
}

// FilesConfig bounds workspace file listings.
type FilesConfig struct {
	MaxResults int `yaml:"max_results"`
}

// Config holds the application configuration.
type Config struct {
	Listen    string      `yaml:"listen"`
	Debug     bool        `yaml:"debug"`
	StorePath string      `yaml:"store_path,omitempty"` // Overrides the default workspaces.json location
	Agent     AgentConfig `yaml:"agent"`
	Files     FilesConfig `yaml:"files"`

	mu       sync.RWMutex
	filePath string
}

// Default returns a config with every default applied and no backing file.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// applyDefaults fills zero fields. Only called before the Config is shared.
func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Agent.Bin == "" {
		c.Agent.Bin = DefaultAgentBin
	}
	if c.Agent.VersionTimeout == 0 {
		c.Agent.VersionTimeout = Duration(DefaultVersionTimeout)
	}
	if c.Agent.InitializeTimeout == 0 {
		c.Agent.InitializeTimeout = Duration(DefaultInitializeTimeout)
	}
	if c.Agent.Client.Name == "" {
		c.Agent.Client.Name = DefaultClientName
	}
	if c.Agent.Client.Title == "" {
		c.Agent.Client.Title = DefaultClientTitle
	}
	if c.Agent.Client.Version == "" {
		c.Agent.Client.Version = DefaultClientVersion
	}
	if c.Files.MaxResults == 0 {
		c.Files.MaxResults = DefaultMaxFiles
	}
}

// Load reads config.yaml from the config directory.
func Load() (*Config, error) {
	path, err := paths.ConfigFilePath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads the config at path. A missing file yields defaults.
func LoadFile(path string) (*Config, error) {
	cfg := &Config{filePath: path}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values that defaults cannot repair.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Listen, err)
	}
	if c.Agent.VersionTimeout < 0 || c.Agent.InitializeTimeout < 0 {
		return fmt.Errorf("agent timeouts must not be negative")
	}
	if c.Files.MaxResults < 0 {
		return fmt.Errorf("files.max_results must not be negative")
	}
	for _, p := range c.Agent.ExtraPaths {
		if !filepath.IsAbs(p) {
			return fmt.Errorf("agent.extra_paths entry %q must be absolute", p)
		}
	}
	return nil
}

// Save writes the config to its file.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.filePath == "" {
		return fmt.Errorf("config has no file path")
	}
	if err := os.MkdirAll(filepath.Dir(c.filePath), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.filePath, data, 0644)
}

// FilePath returns the backing file, "" for Default().
func (c *Config) FilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filePath
}

// SetFilePath sets the backing file (for testing).
func (c *Config) SetFilePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filePath = path
}

// GetDebug reports whether debug logging is requested.
func (c *Config) GetDebug() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Debug
}

// SetDebug changes the debug flag.
func (c *Config) SetDebug(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Debug = enabled
}

// GetListen returns the HTTP listen address.
func (c *Config) GetListen() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Listen
}

// GetAgent returns a copy of the agent settings.
func (c *Config) GetAgent() AgentConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	agent := c.Agent
	agent.ExtraPaths = append([]string(nil), c.Agent.ExtraPaths...)
	return agent
}

// GetMaxFiles returns the cap for workspace file listings.
func (c *Config) GetMaxFiles() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Files.MaxResults
}

// WorkspacesPath returns store_path if set, else the default store location.
func (c *Config) WorkspacesPath() (string, error) {
	c.mu.RLock()
	override := c.StorePath
	c.mu.RUnlock()

	if override != "" {
		return override, nil
	}
	return paths.WorkspacesFilePath()
}

// Reload re-reads the backing file and copies the hot-reloadable fields
// (currently only debug) into c.
func (c *Config) Reload() error {
	fresh, err := LoadFile(c.FilePath())
	if err != nil {
		return err
	}
	c.SetDebug(fresh.GetDebug())
	return nil
}
