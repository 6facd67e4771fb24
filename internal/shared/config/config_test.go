package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if c.Store.Driver != DriverSQLite || c.Store.Path != "wtclient.db" {
		t.Fatalf("unexpected store defaults: %+v", c.Store)
	}
	if c.Transport.Timeout != 10*time.Second || c.Transport.DefaultScheme != "http" {
		t.Fatalf("unexpected transport defaults: %+v", c.Transport)
	}
	if c.Dispatch.ToSelfDelay != 42 || c.Dispatch.Workers != 8 {
		t.Fatalf("unexpected dispatch defaults: %+v", c.Dispatch)
	}
}

func TestLoadFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "wtclient.toml")
	raw := `
[store]
driver = "leveldb"
path = "/var/lib/wt"

[transport]
timeout = "3s"
default_scheme = "https"

[dispatch]
workers = 2
`
	if err := os.WriteFile(file, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	c, err := Load(file)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if c.Store.Driver != DriverLevelDB || c.Store.Path != "/var/lib/wt" {
		t.Fatalf("unexpected store: %+v", c.Store)
	}
	if c.Transport.Timeout != 3*time.Second || c.Transport.DefaultScheme != "https" {
		t.Fatalf("unexpected transport: %+v", c.Transport)
	}
	if c.Dispatch.Workers != 2 || c.Dispatch.ToSelfDelay != 42 {
		t.Fatalf("unexpected dispatch: %+v", c.Dispatch)
	}
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	file := filepath.Join(t.TempDir(), "wtclient.toml")
	if err := os.WriteFile(file, []byte("[store]\ndriver = \"etcd\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(file); err == nil {
		t.Fatalf("expected unknown driver to be rejected")
	}
}
