package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeLayer(t *testing.T, dir, content string) {
	t.Helper()
	cfgDir := filepath.Join(dir, ConfigDirName)
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(cfgDir, ConfigFilename), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(LoadOptions{HomeDir: t.TempDir(), WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Gateway.Host != "127.0.0.1" {
		t.Errorf("gateway host = %q", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 4096 {
		t.Errorf("gateway port = %d", cfg.Gateway.Port)
	}
	if cfg.Hooks.DefaultTimeoutMs != 10000 {
		t.Errorf("hooks defaultTimeoutMs = %d", cfg.Hooks.DefaultTimeoutMs)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("logging level = %q", cfg.Logging.Level)
	}
}

func TestLoad_PluginPathsUnion(t *testing.T) {
	home := t.TempDir()
	work := t.TempDir()

	writeLayer(t, home, `{"plugins": {"paths": ["a", "b"], "allow": ["a", "b"]}}`)
	writeLayer(t, work, `{"plugins": {"paths": ["b", "c"], "allow": ["b", "c"]}}`)

	cfg, err := Load(LoadOptions{HomeDir: home, WorkDir: work})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if !reflect.DeepEqual(cfg.Plugins.Paths, []string{"a", "b", "c"}) {
		t.Errorf("plugins.paths = %v, want [a b c]", cfg.Plugins.Paths)
	}
	if !reflect.DeepEqual(cfg.Plugins.Allow, []string{"b", "c"}) {
		t.Errorf("plugins.allow = %v, want [b c] (override)", cfg.Plugins.Allow)
	}
}

func TestLoad_ScalarOverride(t *testing.T) {
	home := t.TempDir()
	work := t.TempDir()
	workspace := t.TempDir()

	writeLayer(t, home, `{"gateway": {"port": 5000, "authToken": "user-token"}}`)
	writeLayer(t, work, `{"gateway": {"port": 6000}}`)
	writeLayer(t, workspace, `{"logging": {"level": "debug"}}`)

	cfg, err := Load(LoadOptions{HomeDir: home, WorkDir: work, WorkspaceDir: workspace})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Gateway.Port != 6000 {
		t.Errorf("port = %d, want cwd layer to win", cfg.Gateway.Port)
	}
	if cfg.Gateway.AuthToken != "user-token" {
		t.Errorf("authToken = %q, user layer value should survive", cfg.Gateway.AuthToken)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("level = %q, workspace layer should win", cfg.Logging.Level)
	}
}

func TestLoad_MalformedBubblesUp(t *testing.T) {
	home := t.TempDir()
	writeLayer(t, home, `{"gateway": {`)

	if _, err := Load(LoadOptions{HomeDir: home, WorkDir: t.TempDir()}); err == nil {
		t.Fatal("expected error for malformed config")
	}
}

func TestLoad_SchemaRejection(t *testing.T) {
	home := t.TempDir()
	writeLayer(t, home, `{"logging": {"level": "loud"}}`)

	if _, err := Load(LoadOptions{HomeDir: home, WorkDir: t.TempDir()}); err == nil {
		t.Fatal("expected schema validation error for bad level")
	}
}

func TestLoad_HookRules(t *testing.T) {
	home := t.TempDir()
	writeLayer(t, home, `{
		// declared hooks survive json5 comments
		"hooks": {
			"defaultTimeoutMs": 2000,
			"rules": {
				"before_tool_call": [
					{"matcher": "exec", "hooks": [{"type": "command", "command": "echo hi", "timeoutMs": 500}]}
				]
			}
		}
	}`)

	cfg, err := Load(LoadOptions{HomeDir: home, WorkDir: t.TempDir()})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	rules := cfg.Hooks.Rules["before_tool_call"]
	if len(rules) != 1 {
		t.Fatalf("rules = %d, want 1", len(rules))
	}
	if rules[0].Matcher != "exec" {
		t.Errorf("matcher = %q", rules[0].Matcher)
	}
	if rules[0].Hooks[0].Command != "echo hi" {
		t.Errorf("command = %q", rules[0].Hooks[0].Command)
	}
}

func TestSave_Atomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")

	if err := Save(path, map[string]any{"gateway": map[string]any{"port": 7000}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(data) == 0 {
		t.Error("empty config written")
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temp file left behind: %d entries", len(entries))
	}
}
