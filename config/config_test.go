package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "8777" || cfg.GroupWindow != 5*time.Minute {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.NoteServer.Binary != "web" {
		t.Fatalf("note server defaults: %+v", cfg.NoteServer)
	}
}

func TestLoad_FileValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doughub.yaml")
	yaml := `
port: "9000"
database_path: /data/catalog.db
group_window: 2m
note_server:
  binary: notes-web
  disabled: true
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "9000" || cfg.DatabasePath != "/data/catalog.db" {
		t.Fatalf("file values ignored: %+v", cfg)
	}
	if cfg.GroupWindow != 2*time.Minute {
		t.Fatalf("group window: %v", cfg.GroupWindow)
	}
	if !cfg.NoteServer.Disabled || cfg.NoteServer.Binary != "notes-web" {
		t.Fatalf("note server: %+v", cfg.NoteServer)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doughub.yaml")
	if err := os.WriteFile(path, []byte("port: \"9000\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "9100")
	t.Setenv("SKIP_PREFLIGHT", "true")
	t.Setenv("GROUP_WINDOW", "90s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "9100" {
		t.Fatalf("env did not win: %q", cfg.Port)
	}
	if !cfg.SkipPreflight {
		t.Fatal("SKIP_PREFLIGHT ignored")
	}
	if cfg.GroupWindow != 90*time.Second {
		t.Fatalf("GROUP_WINDOW: %v", cfg.GroupWindow)
	}
}

func TestLoad_DatabaseURL(t *testing.T) {
	t.Run("plain path", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "/data/catalog.db")
		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		if cfg.DatabasePath != "/data/catalog.db" {
			t.Fatalf("database path: %q", cfg.DatabasePath)
		}
	})
	t.Run("file URL", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "file:///data/catalog.db")
		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		if cfg.DatabasePath != "/data/catalog.db" {
			t.Fatalf("database path: %q", cfg.DatabasePath)
		}
	})
	t.Run("file prefix", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "file:db/catalog.db")
		cfg, err := Load("")
		if err != nil {
			t.Fatal(err)
		}
		if cfg.DatabasePath != "db/catalog.db" {
			t.Fatalf("database path: %q", cfg.DatabasePath)
		}
	})
}

func TestValidate_Rejections(t *testing.T) {
	t.Run("bad port", func(t *testing.T) {
		t.Setenv("PORT", "not-a-port")
		if _, err := Load(""); err == nil {
			t.Fatal("want error for non-numeric port")
		}
	})
	t.Run("colliding roots", func(t *testing.T) {
		t.Setenv("ARCHIVE_ROOT", "/same")
		t.Setenv("MEDIA_ROOT", "/same")
		if _, err := Load(""); err == nil {
			t.Fatal("want error when archive and media roots collide")
		}
	})
	t.Run("bad log level", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "loud")
		if _, err := Load(""); err == nil {
			t.Fatal("want error for unknown log level")
		}
	})
}
