package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
)

// isolate runs the test in an empty working directory with an empty user
// config directory.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() failed: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() failed: %v", err)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	isolate(t)

	l := NewLoader("")
	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	if l.FileUsed() != "" {
		t.Errorf("FileUsed() = %q, want empty", l.FileUsed())
	}
}

func TestLoadProjectFile(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, DirName, "bb.toml"), `
[server]
port = 9000

[autosave]
interval = "1m"
debounce = "0s"

[layout]
columns = 6
`)

	l := NewLoader("")
	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Autosave.Interval != time.Minute || cfg.Autosave.Debounce != 0 {
		t.Errorf("Autosave = %+v", cfg.Autosave)
	}
	if cfg.Layout.Columns != 6 || cfg.Layout.SpacingX != 300 {
		t.Errorf("Layout = %+v", cfg.Layout)
	}
	if !strings.HasSuffix(l.FileUsed(), "bb.toml") {
		t.Errorf("FileUsed() = %q", l.FileUsed())
	}
}

func TestEnvAndFlagOverrides(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.toml")
	writeFile(t, path, "[server]\nport = 9000\n\n[settings]\nuser_id = \"file-user\"\n")

	t.Setenv("BB_SETTINGS_USER_ID", "env-user")
	t.Setenv("BB_STORAGE_DRIVER", "memory")
	t.Setenv("BB_SERVER_PORT", "9100")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("port", 8080, "")
	if err := fs.Parse([]string{"--port=7000"}); err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	l := NewLoader(path)
	if err := l.BindFlag("server.port", fs.Lookup("port")); err != nil {
		t.Fatalf("BindFlag() failed: %v", err)
	}
	if err := l.BindFlag("server.missing", fs.Lookup("missing")); err == nil {
		t.Error("BindFlag(nil flag) succeeded")
	}

	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Settings.UserID != "env-user" {
		t.Errorf("Settings.UserID = %q, want env-user", cfg.Settings.UserID)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("Storage.Driver = %q, want memory", cfg.Storage.Driver)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("Server.Port = %d, want 7000 from the flag", cfg.Server.Port)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := isolate(t)

	if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("Load(missing explicit file) succeeded")
	}

	bad := filepath.Join(dir, "bad.toml")
	writeFile(t, bad, "[layout]\ncolumns = 0\n")
	if _, err := Load(bad); err == nil || !strings.Contains(err.Error(), "layout.columns") {
		t.Errorf("Load(columns = 0) = %v", err)
	}
}

func TestWriteFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "nested", "bb.toml")

	want := Default()
	want.Settings.RemoteURL = "https://settings.example.com/api"
	want.Log.File = "bb.log"
	if err := WriteFile(path, want, false); err != nil {
		t.Fatalf("WriteFile() failed: %v", err)
	}
	if err := WriteFile(path, want, false); err == nil {
		t.Error("WriteFile() replaced an existing file without overwrite")
	}
	if err := WriteFile(path, want, true); err != nil {
		t.Fatalf("WriteFile(overwrite) failed: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"no driver", func(c *Config) { c.Storage.Driver = "" }},
		{"s3 without bucket", func(c *Config) { c.Storage.Driver = "s3" }},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }},
		{"negative debounce", func(c *Config) { c.Autosave.Debounce = -time.Second }},
		{"zero settings timeout", func(c *Config) { c.Settings.Timeout = 0 }},
		{"ftp remote", func(c *Config) { c.Settings.RemoteURL = "ftp://example.com" }},
		{"zero columns", func(c *Config) { c.Layout.Columns = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() succeeded")
			}
		})
	}
}

func TestStorageDSN(t *testing.T) {
	cfg := Default()
	if got := cfg.StorageDSN(); got != filepath.Join(DirName, "board.db") {
		t.Errorf("StorageDSN() = %q", got)
	}

	cfg.Storage.Driver = "s3"
	cfg.S3 = S3{Bucket: "boards", Prefix: "team/", Region: "eu-west-1", PathStyle: true}
	want := "s3://boards/team?path_style=true&region=eu-west-1"
	if got := cfg.StorageDSN(); got != want {
		t.Errorf("StorageDSN() = %q, want %q", got, want)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}
}
