package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// DevOps contains connection settings for the Azure DevOps organization.
type DevOps struct {
	// Organization is the organization name or a full URL
	// (e.g. "myorg" or "https://dev.azure.com/myorg").
	Organization string `toml:"organization"`
	// PAT is the personal access token. ADOWATCH_PAT overrides it.
	PAT            string `toml:"pat"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Monitor contains poll-loop cadence settings.
type Monitor struct {
	PollInterval int `toml:"poll_interval"`
	Workers      int `toml:"workers"`
}

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format     string `toml:"format"`
	Level      string `toml:"level"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// Job describes one external program to run when an event fires.
type Job struct {
	Args []string `toml:"args"`
	Name string   `toml:"name"`
	// RunDir is the working directory for the job. Defaults to the
	// caller's home directory.
	RunDir string `toml:"run_dir"`
	// Timeout is the number of seconds the job may run before it is
	// killed. Defaults to 120.
	Timeout int `toml:"timeout"`
}

// Filter is one per-event filter entry. Entries are free-form tables;
// they are parsed and carried with the event, but no kind applies them
// during polls yet.
type Filter map[string]any

// Event describes one monitored condition and the jobs it fires.
type Event struct {
	Kind string `toml:"kind"`
	Name string `toml:"name"`

	// Subject selectors. Which of these are required depends on the kind.
	Project    string   `toml:"project"`
	Repository string   `toml:"repository"`
	Branch     string   `toml:"branch"`
	Teams      []string `toml:"teams"`
	WorkItems  []int    `toml:"work_items"`

	// IncludeNewPullReqs opts pull-request kinds into reporting entities
	// that have no snapshot baseline yet.
	IncludeNewPullReqs bool `toml:"include_new_pullreqs"`

	Filters []Filter `toml:"filters"`
	Jobs    []Job    `toml:"jobs"`
}

// Label returns the event's configured name, falling back to its kind.
func (e Event) Label() string {
	if name := strings.TrimSpace(e.Name); name != "" {
		return name
	}
	return e.Kind
}

// Config encapsulates all configuration values for adowatch.
//
// Configuration sections by subsystem:
//   - DevOps: organization URL and credentials for the remote service
//   - Monitor: poll interval and worker pool size
//   - Paths: state and log directories
//   - Logging: log format, level, and rotation
//   - Events: the monitored conditions and their jobs
type Config struct {
	DevOps  DevOps  `toml:"devops"`
	Monitor Monitor `toml:"monitor"`
	Paths   Paths   `toml:"paths"`
	Logging Logging `toml:"logging"`
	Events  []Event `toml:"events"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/adowatch/config.toml")
}

// SampleConfig returns the embedded sample configuration file contents.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("ADOWATCH_CONFIG")
	}

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("adowatch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
