// Package config holds doughub runtime configuration: a YAML file with
// defaults, overridden by environment variables so a deployment can be
// steered without editing files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all doughub configuration.
type Config struct {
	// Port the extraction receiver listens on.
	Port string `yaml:"port"`
	// DatabasePath is the SQLite catalog file.
	DatabasePath string `yaml:"database_path"`
	// ArchiveRoot is the append-only extraction archive directory.
	ArchiveRoot string `yaml:"archive_root"`
	// MediaRoot is the canonical relocated-media directory.
	MediaRoot string `yaml:"media_root"`
	// LogDir receives the rotating JSON log file. Empty means stdout only.
	LogDir   string `yaml:"log_dir"`
	LogLevel string `yaml:"log_level"`

	// GroupWindow is the temporal grouping window for linking questions.
	GroupWindow time.Duration `yaml:"group_window"`

	NoteServer NoteServerConfig `yaml:"note_server"`
	Flashcard  FlashcardConfig  `yaml:"flashcard"`

	// SkipPreflight bypasses startup environment validation.
	SkipPreflight bool `yaml:"skip_preflight"`
}

// NoteServerConfig controls the supervised note-server subprocess.
type NoteServerConfig struct {
	// Binary is the executable name resolved on PATH.
	Binary string `yaml:"binary"`
	Port   string `yaml:"port"`
	// NotesDir is the writable notes directory handed to the subprocess.
	NotesDir string `yaml:"notes_dir"`
	// Disabled skips supervision entirely.
	Disabled bool `yaml:"disabled"`
}

// FlashcardConfig identifies the flashcard backend checked at preflight.
type FlashcardConfig struct {
	BackendURL     string `yaml:"backend_url"`
	BackendVersion string `yaml:"backend_version"`
}

func (c *Config) defaults() {
	if c.Port == "" {
		c.Port = "8777"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "db/catalog.db"
	}
	if c.ArchiveRoot == "" {
		c.ArchiveRoot = "archive"
	}
	if c.MediaRoot == "" {
		c.MediaRoot = "media"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.GroupWindow <= 0 {
		c.GroupWindow = 5 * time.Minute
	}
	if c.NoteServer.Binary == "" {
		c.NoteServer.Binary = "web"
	}
	if c.NoteServer.Port == "" {
		c.NoteServer.Port = "3010"
	}
	if c.NoteServer.NotesDir == "" {
		c.NoteServer.NotesDir = "notes"
	}
	if c.Flashcard.BackendURL == "" {
		c.Flashcard.BackendURL = "http://localhost:8765"
	}
}

// applyEnv overlays environment variables onto the config. Env wins over
// file values.
func (c *Config) applyEnv() {
	setStr := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setStr(&c.Port, "PORT")
	setStr(&c.DatabasePath, "DATABASE_PATH")
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabasePath = databasePathFromURL(v)
	}
	setStr(&c.ArchiveRoot, "ARCHIVE_ROOT")
	setStr(&c.MediaRoot, "MEDIA_ROOT")
	setStr(&c.LogDir, "LOG_DIR")
	setStr(&c.LogLevel, "LOG_LEVEL")
	setStr(&c.NoteServer.Binary, "NOTE_SERVER_BINARY")
	setStr(&c.NoteServer.Port, "NOTE_SERVER_PORT")
	setStr(&c.NoteServer.NotesDir, "NOTES_DIR")
	setStr(&c.Flashcard.BackendURL, "FLASHCARD_BACKEND_URL")
	setStr(&c.Flashcard.BackendVersion, "FLASHCARD_BACKEND_VERSION")

	if v := os.Getenv("SKIP_PREFLIGHT"); v != "" {
		c.SkipPreflight, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("NOTE_SERVER_DISABLED"); v != "" {
		c.NoteServer.Disabled, _ = strconv.ParseBool(v)
	}
	if v := os.Getenv("GROUP_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.GroupWindow = d
		}
	}
}

// databasePathFromURL turns a DATABASE_URL value into a filesystem path.
// The catalog is a single local SQLite file, so the accepted forms are a
// plain path, "file:path", or "file://path".
func databasePathFromURL(v string) string {
	if rest, ok := strings.CutPrefix(v, "file://"); ok {
		return rest
	}
	if rest, ok := strings.CutPrefix(v, "file:"); ok {
		return rest
	}
	return v
}

// Validate checks invariants that defaults cannot repair.
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("config: invalid port %q", c.Port)
	}
	if c.ArchiveRoot == c.MediaRoot {
		return fmt.Errorf("config: archive_root and media_root must differ")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log_level %q", c.LogLevel)
	}
	return nil
}

// Load reads the YAML file at path (missing file is fine: defaults
// apply), overlays environment variables, fills defaults, and validates.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	cfg.defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
