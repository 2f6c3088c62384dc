package tablemap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		cfg, err := LoadConfig(strings.NewReader(`
db: blog
debug: true
raw: true
insertOpts:
  conflict: update
runOpts:
  consistentRead: true
`))
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.DB != "blog" || !cfg.Debug || !cfg.Raw {
			t.Errorf("unexpected config %+v", cfg)
		}
		if cfg.InsertOpts.String(OptConflict) != ConflictUpdate {
			t.Errorf("expected conflict update, got %v", cfg.InsertOpts[OptConflict])
		}
		if !cfg.RunOpts.Bool(OptConsistentRead) {
			t.Error("expected consistent reads")
		}
	})

	t.Run("empty document", func(t *testing.T) {
		cfg, err := LoadConfig(strings.NewReader(""))
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.DB != DefaultDB {
			t.Errorf("expected default db, got %s", cfg.DB)
		}
	})

	t.Run("blank db", func(t *testing.T) {
		cfg, err := LoadConfig(strings.NewReader(`db: ""`))
		if err != nil || cfg.DB != DefaultDB {
			t.Errorf("expected default db, got %q, %v", cfg.DB, err)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		if _, err := LoadConfig(strings.NewReader("db: [")); err == nil {
			t.Error("expected a decode error")
		}
	})
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tablemap.yaml")
	if err := os.WriteFile(path, []byte("db: files\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile failed: %v", err)
	}
	if cfg.DB != "files" {
		t.Errorf("expected db files, got %s", cfg.DB)
	}

	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestConfigOptions(t *testing.T) {
	cfg := DefaultConfig()
	for _, opt := range []func(*Config){WithDB("app"), WithDebug(true), WithRaw(true)} {
		opt(&cfg)
	}
	if cfg.DB != "app" || !cfg.Debug || !cfg.Raw {
		t.Errorf("unexpected config %+v", cfg)
	}

	WithConfig(Config{DB: "other"})(&cfg)
	if cfg.DB != "other" || cfg.Raw {
		t.Errorf("WithConfig should replace the config, got %+v", cfg)
	}
}
