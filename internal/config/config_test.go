package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func newFlagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newFlagSet(t))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Expected default addr ':8080', but got '%s'", cfg.Addr)
	}
	if cfg.KV.Backend != "sqlite" || cfg.KV.Path != "qaforum.db" {
		t.Errorf("Expected sqlite kv at qaforum.db, got %+v", cfg.KV)
	}
	if cfg.Session.TTL != 30*24*time.Hour {
		t.Errorf("Expected 720h session ttl, got %v", cfg.Session.TTL)
	}
	if cfg.Remote.Enabled() {
		t.Error("Expected remote backend to be disabled by default")
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "qaforum.yaml")
	yamlDoc := `
addr: ":9000"
log:
  level: debug
kv:
  backend: redis
  redis:
    addr: "file-redis:6379"
    db: 2
import:
  author: fileauthor
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o600); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("QAFORUM_KV__REDIS__ADDR", "env-redis:6379")
	t.Setenv("QAFORUM_IMPORT__AUTHOR", "envauthor")

	cfg, err := Load(newFlagSet(t, "--config", path, "--import.author", "flagauthor"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	testCases := []struct {
		name     string
		got      any
		expected any
	}{
		{"file beats defaults", cfg.Addr, ":9000"},
		{"file sets nested level", cfg.Log.Level, "debug"},
		{"file sets backend", cfg.KV.Backend, "redis"},
		{"file sets int", cfg.KV.Redis.DB, 2},
		{"env beats file", cfg.KV.Redis.Addr, "env-redis:6379"},
		{"flag beats env", cfg.Import.Author, "flagauthor"},
		{"untouched default survives", cfg.KV.Redis.Prefix, "qaforum:"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.expected {
				t.Errorf("Expected '%v', but got '%v'", tc.expected, tc.got)
			}
		})
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	if _, err := Load(newFlagSet(t, "--kv.backend", "etcd")); err == nil {
		t.Error("Expected an unknown kv backend to be rejected")
	}
	if _, err := Load(newFlagSet(t, "--log.format", "xml")); err == nil {
		t.Error("Expected an unknown log format to be rejected")
	}
}

func TestRemoteEnabled(t *testing.T) {
	testCases := []struct {
		name     string
		remote   Remote
		expected bool
	}{
		{"empty", Remote{}, false},
		{"no driver", Remote{DSN: "postgres://db/forum", Username: "forum", Password: "s3cret"}, false},
		{"complete", Remote{Driver: "pgx", DSN: "postgres://db/forum", Username: "forum", Password: "s3cret"}, true},
		{"placeholder dsn", Remote{Driver: "pgx", DSN: "YOUR_DATABASE_URL", Username: "forum", Password: "s3cret"}, false},
		{"placeholder password", Remote{Driver: "pgx", DSN: "postgres://db/forum", Username: "forum", Password: "<password>"}, false},
		{"missing username", Remote{Driver: "pgx", DSN: "postgres://db/forum", Password: "s3cret"}, false},
		{"changeme", Remote{Driver: "sqlite", DSN: "forum.db", Username: "changeme", Password: "x"}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.remote.Enabled(); got != tc.expected {
				t.Errorf("Expected Enabled() to be %v, but got %v", tc.expected, got)
			}
		})
	}
}
