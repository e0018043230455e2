package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"pgregory.net/rapid"
)

// Feature: snaptrace, Property 1: Config merge precedence
func TestConfigMergePrecedence(t *testing.T) {
	nonEmptyString := rapid.StringMatching(`[a-zA-Z0-9/_.:-]{1,20}`)

	configGen := rapid.Custom(func(t *rapid.T) *Config {
		if rapid.Bool().Draw(t, "nil") {
			return nil
		}
		cfg := &Config{}
		if rapid.Bool().Draw(t, "hasLogPath") {
			cfg.LogPath = nonEmptyString.Draw(t, "logPath")
		}
		if rapid.Bool().Draw(t, "hasAddr") {
			cfg.Addr = nonEmptyString.Draw(t, "addr")
		}
		if rapid.Bool().Draw(t, "hasDefaultFormat") {
			cfg.DefaultFormat = nonEmptyString.Draw(t, "defaultFormat")
		}
		if rapid.Bool().Draw(t, "hasMaxDepth") {
			cfg.MaxDepth = rapid.IntRange(1, 16).Draw(t, "maxDepth")
		}
		return cfg
	})

	rapid.Check(t, func(t *rapid.T) {
		global := configGen.Draw(t, "global")
		project := configGen.Draw(t, "project")

		merged := Merge(global, project)
		defaults := Defaults()

		pick := func(get func(*Config) string) (string, string) {
			var g, p string
			if global != nil {
				g = get(global)
			}
			if project != nil {
				p = get(project)
			}
			return g, p
		}

		g, p := pick(func(c *Config) string { return c.LogPath })
		checkStringField(t, "LogPath", g, p, defaults.LogPath, merged.LogPath)
		g, p = pick(func(c *Config) string { return c.Addr })
		checkStringField(t, "Addr", g, p, defaults.Addr, merged.Addr)
		g, p = pick(func(c *Config) string { return c.DefaultFormat })
		checkStringField(t, "DefaultFormat", g, p, defaults.DefaultFormat, merged.DefaultFormat)

		wantDepth := defaults.MaxDepth
		if global != nil && global.MaxDepth > 0 {
			wantDepth = global.MaxDepth
		}
		if project != nil && project.MaxDepth > 0 {
			wantDepth = project.MaxDepth
		}
		if merged.MaxDepth != wantDepth {
			t.Fatalf("MaxDepth: expected %d, got %d", wantDepth, merged.MaxDepth)
		}
	})
}

// checkStringField asserts project > global > default for one field.
func checkStringField(t *rapid.T, name, globalVal, projectVal, defaultVal, mergedVal string) {
	t.Helper()
	switch {
	case projectVal != "":
		if mergedVal != projectVal {
			t.Fatalf("%s: expected project value %q, got %q", name, projectVal, mergedVal)
		}
	case globalVal != "":
		if mergedVal != globalVal {
			t.Fatalf("%s: expected global value %q, got %q", name, globalVal, mergedVal)
		}
	default:
		if mergedVal != defaultVal {
			t.Fatalf("%s: expected default %q, got %q", name, defaultVal, mergedVal)
		}
	}
}

func TestDefaultsValues(t *testing.T) {
	d := Defaults()
	if d.DefaultFormat != "markdown" {
		t.Errorf("DefaultFormat: want %q, got %q", "markdown", d.DefaultFormat)
	}
	if d.MaxDepth != 4 {
		t.Errorf("MaxDepth: want 4, got %d", d.MaxDepth)
	}
	if filepath.Base(d.LogPath) != "log.txt" {
		t.Errorf("LogPath: want a log.txt path, got %q", d.LogPath)
	}
	if d.LogLevel != "warn" {
		t.Errorf("LogLevel: want warn, got %q", d.LogLevel)
	}
}

func TestLoadGlobalMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := LoadGlobal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config, got nil")
	}
	if *cfg != Defaults() {
		t.Errorf("want defaults, got %+v", cfg)
	}
}

func TestLoadGlobalReadsFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "snaptrace")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	body := `{"log_path":"/var/tmp/trace.log","max_depth":2}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadGlobal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LogPath != "/var/tmp/trace.log" || cfg.MaxDepth != 2 {
		t.Errorf("got %+v", cfg)
	}
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	orig, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(orig) })
}

func TestLoadProjectMissingFileReturnsNil(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := LoadProject()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Errorf("expected nil config, got %+v", cfg)
	}
}

func TestLoadProjectParseError(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	if err := os.WriteFile(".snaptraceconfig", []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadProject()
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("want *ParseError, got %v", err)
	}
	if pe.Path != ".snaptraceconfig" || pe.Unwrap() == nil {
		t.Errorf("unexpected parse error: %+v", pe)
	}
}

func TestLoadMergesLayers(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	chdir(t, t.TempDir())
	if err := os.WriteFile(".snaptraceconfig", []byte(`{"addr":":9000"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != ":9000" || cfg.DefaultFormat != "markdown" {
		t.Errorf("got %+v", cfg)
	}
}

func TestSaveThenLoadGlobal(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path, err := GlobalPath()
	if err != nil {
		t.Fatalf("GlobalPath: %v", err)
	}
	want := Defaults()
	want.Addr = "127.0.0.1:9999"
	want.MaxDepth = 7
	if err := Save(path, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := LoadGlobal()
	if err != nil {
		t.Fatalf("LoadGlobal: %v", err)
	}
	if *got != want {
		t.Errorf("want %+v, got %+v", want, *got)
	}
}
