// Package config loads bb's settings from bb.toml, BB_* environment
// variables and command-line flags, in increasing order of precedence.
//
// The config file is looked up in .beadboard/ under the working directory
// and then in the user config directory (beadboard/bb.toml), unless an
// explicit path is given. A missing file is not an error; every key has a
// default.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FileName is the config file name without extension.
const FileName = "bb"

// DirName is the per-project directory holding the config file, the
// default sqlite database and the cards directory.
const DirName = ".beadboard"

// Config is the full bb configuration.
type Config struct {
	Storage  Storage  `mapstructure:"storage" toml:"storage"`
	S3       S3       `mapstructure:"s3" toml:"s3"`
	Autosave Autosave `mapstructure:"autosave" toml:"autosave"`
	Server   Server   `mapstructure:"server" toml:"server"`
	Settings Settings `mapstructure:"settings" toml:"settings"`
	Cards    Cards    `mapstructure:"cards" toml:"cards"`
	Layout   Layout   `mapstructure:"layout" toml:"layout"`
	Log      Log      `mapstructure:"log" toml:"log"`
}

// Storage selects the kv backend holding the board records.
type Storage struct {
	Driver    string `mapstructure:"driver" toml:"driver"`
	DSN       string `mapstructure:"dsn" toml:"dsn"`
	Namespace string `mapstructure:"namespace" toml:"namespace"`
}

// S3 builds the DSN for the s3 driver when storage.dsn is empty.
type S3 struct {
	Bucket    string `mapstructure:"bucket" toml:"bucket"`
	Prefix    string `mapstructure:"prefix" toml:"prefix"`
	Region    string `mapstructure:"region" toml:"region"`
	Endpoint  string `mapstructure:"endpoint" toml:"endpoint"`
	PathStyle bool   `mapstructure:"path_style" toml:"path_style"`
}

type Autosave struct {
	Interval time.Duration `mapstructure:"interval" toml:"interval"`
	Debounce time.Duration `mapstructure:"debounce" toml:"debounce"`
}

type Server struct {
	Port int `mapstructure:"port" toml:"port"`
}

// Settings points at the remote settings service. An empty RemoteURL
// keeps board settings in the local store.
type Settings struct {
	RemoteURL string        `mapstructure:"remote_url" toml:"remote_url"`
	UserID    string        `mapstructure:"user_id" toml:"user_id"`
	Token     string        `mapstructure:"token" toml:"token"`
	Timeout   time.Duration `mapstructure:"timeout" toml:"timeout"`
}

type Cards struct {
	Dir      string        `mapstructure:"dir" toml:"dir"`
	Debounce time.Duration `mapstructure:"debounce" toml:"debounce"`
}

type Layout struct {
	Columns  int     `mapstructure:"columns" toml:"columns"`
	SpacingX float64 `mapstructure:"spacing_x" toml:"spacing_x"`
	SpacingY float64 `mapstructure:"spacing_y" toml:"spacing_y"`
}

// Log configures the process log. An empty File logs to stderr.
type Log struct {
	File       string `mapstructure:"file" toml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Storage: Storage{
			Driver:    "sqlite",
			DSN:       filepath.Join(DirName, "board.db"),
			Namespace: "board",
		},
		Autosave: Autosave{Interval: 30 * time.Second, Debounce: 2 * time.Second},
		Server:   Server{Port: 8080},
		Settings: Settings{UserID: "local", Timeout: 10 * time.Second},
		Cards:    Cards{Dir: filepath.Join(DirName, "cards"), Debounce: 100 * time.Millisecond},
		Layout:   Layout{Columns: 4, SpacingX: 300, SpacingY: 200},
		Log:      Log{MaxSizeMB: 10, MaxBackups: 3},
	}
}

// defaults flattens Default into viper keys. Every key must have a default
// for BB_* variables to reach Unmarshal.
func defaults() map[string]any {
	d := Default()
	return map[string]any{
		"storage.driver":      d.Storage.Driver,
		"storage.dsn":         d.Storage.DSN,
		"storage.namespace":   d.Storage.Namespace,
		"s3.bucket":           d.S3.Bucket,
		"s3.prefix":           d.S3.Prefix,
		"s3.region":           d.S3.Region,
		"s3.endpoint":         d.S3.Endpoint,
		"s3.path_style":       d.S3.PathStyle,
		"autosave.interval":   d.Autosave.Interval,
		"autosave.debounce":   d.Autosave.Debounce,
		"server.port":         d.Server.Port,
		"settings.remote_url": d.Settings.RemoteURL,
		"settings.user_id":    d.Settings.UserID,
		"settings.token":      d.Settings.Token,
		"settings.timeout":    d.Settings.Timeout,
		"cards.dir":           d.Cards.Dir,
		"cards.debounce":      d.Cards.Debounce,
		"layout.columns":      d.Layout.Columns,
		"layout.spacing_x":    d.Layout.SpacingX,
		"layout.spacing_y":    d.Layout.SpacingY,
		"log.file":            d.Log.File,
		"log.max_size_mb":     d.Log.MaxSizeMB,
		"log.max_backups":     d.Log.MaxBackups,
	}
}

// SearchPaths returns the directories searched for bb.toml.
func SearchPaths() []string {
	paths := []string{DirName}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "beadboard"))
	}
	return paths
}

// DefaultPath is where `bb config init` writes when no path is given.
func DefaultPath() string {
	return filepath.Join(DirName, FileName+".toml")
}

// Loader reads configuration through viper.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader. A non-empty file is read instead of
// searching SearchPaths, and must exist.
func NewLoader(file string) *Loader {
	v := viper.New()
	for k, val := range defaults() {
		v.SetDefault(k, val)
	}

	v.SetConfigType("toml")
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(FileName)
		for _, p := range SearchPaths() {
			v.AddConfigPath(p)
		}
	}

	v.SetEnvPrefix("BB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// BindFlag makes flag override key when it is set on the command line.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag for %s", key)
	}
	return l.v.BindPFlag(key, flag)
}

// Load reads the config file, if any, and returns the merged, validated
// configuration.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// FileUsed returns the config file Load read, or "" when none was found.
func (l *Loader) FileUsed() string {
	return l.v.ConfigFileUsed()
}

// Load is NewLoader(file).Load().
func Load(file string) (*Config, error) {
	return NewLoader(file).Load()
}

// Validate checks if the Config has valid field values.
func (c *Config) Validate() error {
	if c.Storage.Driver == "" {
		return fmt.Errorf("storage.driver is required")
	}
	if c.Storage.Driver == "s3" && c.S3.Bucket == "" && !strings.HasPrefix(c.Storage.DSN, "s3://") {
		return fmt.Errorf("s3.bucket or an s3:// storage.dsn is required for the s3 driver")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535 (got %d)", c.Server.Port)
	}
	if c.Autosave.Interval < 0 || c.Autosave.Debounce < 0 || c.Cards.Debounce < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if c.Settings.Timeout <= 0 {
		return fmt.Errorf("settings.timeout must be positive (got %v)", c.Settings.Timeout)
	}
	if c.Settings.RemoteURL != "" {
		u, err := url.Parse(c.Settings.RemoteURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("settings.remote_url must be an http(s) URL (got %q)", c.Settings.RemoteURL)
		}
	}
	if c.Layout.Columns <= 0 {
		return fmt.Errorf("layout.columns must be positive (got %d)", c.Layout.Columns)
	}
	return nil
}

// StorageDSN returns the data source name for the configured driver. For
// s3 with s3.bucket set it is built from the s3 section.
func (c *Config) StorageDSN() string {
	if c.Storage.Driver != "s3" || c.S3.Bucket == "" {
		return c.Storage.DSN
	}

	u := url.URL{Scheme: "s3", Host: c.S3.Bucket, Path: "/" + strings.Trim(c.S3.Prefix, "/")}
	q := url.Values{}
	if c.S3.Region != "" {
		q.Set("region", c.S3.Region)
	}
	if c.S3.Endpoint != "" {
		q.Set("endpoint", c.S3.Endpoint)
	}
	if c.S3.PathStyle {
		q.Set("path_style", "true")
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Encode writes cfg as TOML.
func Encode(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// WriteFile writes cfg to path, creating parent directories. An existing
// file is only replaced when overwrite is set.
func WriteFile(path string, cfg *Config, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if err := Encode(f, cfg); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
