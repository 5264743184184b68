package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultInterval is the freshness window used when [maat] interval is unset.
const DefaultInterval = "10s"

// Config represents the main configuration for maat.
type Config struct {
	Name        string            `toml:"name"`
	InstanceID  string            `toml:"instance_id"`
	Root        string            `toml:"root"` // holds scenes/, collections/ and webapps/
	BaseDir     string            `toml:"base_dir"`
	LogDir      string            `toml:"log_dir"`
	Maat        MaatConfig        `toml:"maat"`
	Scan        ScanConfig        `toml:"scan"`
	Collections CollectionsConfig `toml:"collections"`
	Users       UsersConfig       `toml:"users"`
	Staff       StaffConfig       `toml:"staff"`
	Database    DatabaseConfig    `toml:"database"`
	Publish     PublishConfig     `toml:"publish"`
	Server      ServerConfig      `toml:"server"`
}

// MaatConfig holds the index settings.
type MaatConfig struct {
	Interval string `toml:"interval"` // time.ParseDuration syntax, e.g. "10s"
}

// ScanConfig holds file-system scanner settings.
type ScanConfig struct {
	FollowSymlinks *bool `toml:"follow_symlinks,omitempty"` // unset means true
}

// Follow reports whether scans follow symbolic links.
func (s ScanConfig) Follow() bool {
	return s.FollowSymlinks == nil || *s.FollowSymlinks
}

// CollectionsConfig controls how owner collections are indexed.
// Empty extension lists fall back to the built-in defaults.
type CollectionsConfig struct {
	SharedOwner string        `toml:"shared_owner"`
	Models      []string      `toml:"models,omitempty"`
	Panoramas   []string      `toml:"panoramas,omitempty"`
	Media       []string      `toml:"media,omitempty"`
	Exclude     []ExcludeRule `toml:"exclude"`
}

// ExcludeRule declares a path segment whose contents are not primary assets.
type ExcludeRule struct {
	Segment          string   `toml:"segment"`
	Kinds            []string `toml:"kinds,omitempty"` // "models", "panoramas", "media"
	Extensions       []string `toml:"extensions,omitempty"`
	ExceptExtensions []string `toml:"except_extensions,omitempty"`
}

// UsersConfig points at the read-only users file.
type UsersConfig struct {
	File string `toml:"file"`
}

// StaffConfig lists scene IDs flagged as staff picks.
type StaffConfig struct {
	Picks []string `toml:"picks"`
}

// DatabaseConfig represents configuration for the rebuild history database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite", "memory" or "none"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// PublishConfig represents configuration for the catalog publishing target.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type PublishConfig struct {
	Type string `toml:"type"` // "memory", "filesystem" or "s3"

	// S3-specific fields (only used when Type == "s3")
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"` // for S3-compatible stores such as MinIO
	// Static credentials; the default AWS credential chain is used when empty.
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`

	// Filesystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`
}

// ServerConfig holds the REST server settings.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// NewConfig creates a Config with default settings rooted at baseDir.
func NewConfig(instanceID, baseDir string) *Config {
	return &Config{
		Name:       "maat",
		InstanceID: instanceID,
		Root:       filepath.Join(baseDir, "data"),
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
		Maat:       MaatConfig{Interval: DefaultInterval},
		Collections: CollectionsConfig{
			SharedOwner: "samples",
			Exclude: []ExcludeRule{
				{Segment: "Data", Kinds: []string{"models"}, Extensions: []string{".json"}},
				{Segment: "tiles", Kinds: []string{"models"}, ExceptExtensions: []string{".json"}},
			},
		},
		Users:    UsersConfig{File: filepath.Join(baseDir, "config", "users.json")},
		Database: DatabaseConfig{Type: "sqlite", DataDir: filepath.Join(baseDir, "db")},
		Publish:  PublishConfig{Type: "filesystem", FSRoot: filepath.Join(baseDir, "catalog")},
		Server:   ServerConfig{Addr: "127.0.0.1:8080"},
	}
}

// Interval parses the [maat] interval setting.
func (c *Config) Interval() (time.Duration, error) {
	s := c.Maat.Interval
	if s == "" {
		s = DefaultInterval
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parsing maat.interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("maat.interval must be positive, got %s", s)
	}
	return d, nil
}

// ScenesDir returns the scenes root.
func (c *Config) ScenesDir() string { return filepath.Join(c.Root, "scenes") }

// CollectionsDir returns the collections root.
func (c *Config) CollectionsDir() string { return filepath.Join(c.Root, "collections") }

// WebappsDir returns the web-apps root.
func (c *Config) WebappsDir() string { return filepath.Join(c.Root, "webapps") }

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to a new config file at path. It refuses to overwrite.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
