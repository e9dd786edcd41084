package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Options is the per-run deletion policy. It is constructed once from the
// command line, fixed for the duration of the run, and passed read-only into
// every recursive step.
type Options struct {
	Recursive       bool // permit descending into directories
	Unmount         bool // unmount discovered mount points instead of skipping
	DryRun          bool // decide and narrate but never mutate
	AllowAboveStart bool // permit deleting paths resolving outside StartingDir
	EnterSymlinks   bool // traverse symlinks instead of skipping them
	RemoveSymlinks  bool // delete symlinks themselves, never their targets
	AllowHidden     bool // permit deleting dot-entries
	Verbose         bool // narrate traversal progress

	// StartingDir is the canonical root against which above-start
	// deletions are judged. Set once at startup, never changed.
	StartingDir string
}

type LoggingCfg struct {
	File         string `yaml:"file" json:"file"`                   // Log file path; empty means stdout only
	RotationDays int    `yaml:"rotation_days" json:"rotation_days"` // Days to keep logs before rotation
}

type HistoryCfg struct {
	DatabasePath string `yaml:"database_path" json:"database_path"` // SQLite deletion-history database; empty disables
}

type PrometheusCfg struct {
	Port int `yaml:"port" json:"port"` // Metrics listener port; 0 disables
}

// File is the optional yaml configuration. It carries ambient settings only;
// the deletion policy itself comes exclusively from command-line flags.
type File struct {
	Logging        LoggingCfg    `yaml:"logging" json:"logging"`
	History        HistoryCfg    `yaml:"history" json:"history"`
	Prometheus     PrometheusCfg `yaml:"prometheus" json:"prometheus"`
	ProtectedPaths []string      `yaml:"protected_paths" json:"protected_paths"` // Extra roots saferm refuses to target
}

var (
	errInvalidPath = errors.New("path must be absolute")
	errInvalidPort = errors.New("prometheus port must not be negative")
)

// DefaultPath is where Load looks when the user gives no -config flag.
const DefaultPath = "/etc/saferm/config.yaml"

// Load reads the configuration file at path. A missing file at the default
// location is not an error; it yields the built-in defaults.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) && path == DefaultPath {
			cfg := &File{}
			if err := cfg.validateAndDefault(); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := decode(f)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateAndDefault(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(r io.Reader) (*File, error) {
	cfg := &File{}
	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

func (c *File) validateAndDefault() error {
	if c.Logging.RotationDays <= 0 {
		c.Logging.RotationDays = 30
	}

	if c.Prometheus.Port < 0 {
		return errInvalidPort
	}

	if c.History.DatabasePath != "" {
		cp, err := cleanAbsolute(c.History.DatabasePath)
		if err != nil {
			return err
		}
		c.History.DatabasePath = cp
	}

	cleaned := make([]string, 0, len(c.ProtectedPaths))
	for _, p := range c.ProtectedPaths {
		cp, err := cleanAbsolute(p)
		if err != nil {
			return err
		}
		cleaned = append(cleaned, cp)
	}
	c.ProtectedPaths = cleaned

	return nil
}

func cleanAbsolute(p string) (string, error) {
	if p == "" {
		return "", errInvalidPath
	}
	cp := filepath.Clean(p)
	if !filepath.IsAbs(cp) {
		return "", fmt.Errorf("%w: %s", errInvalidPath, p)
	}
	return cp, nil
}
