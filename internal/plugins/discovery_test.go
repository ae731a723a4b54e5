package plugins

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/slashbot/slashbot/internal/config"
)

func writeManifest(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFilename), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscover_BuiltinsAndPaths(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "notes"), `{"id":"notes","name":"Notes","version":"0.1.0"}`)
	writeManifest(t, filepath.Join(root, "broken"), `{"name":"missing id"}`)

	builtins := []Definition{{
		Manifest: Manifest{ID: "core", Name: "Core", Version: "1.0.0"},
		Factory:  func() Plugin { return nil },
	}}

	cands, err := Discover(builtins, config.PluginsConfig{Paths: []string{root}}, nil)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(cands) != 2 {
		t.Fatalf("candidates = %v, want core + notes", ids(cands))
	}
	if cands[0].Manifest.ID != "core" || cands[0].Source != SourceBuiltin {
		t.Errorf("first candidate = %+v", cands[0])
	}
	if cands[1].Manifest.ID != "notes" || cands[1].Source != SourcePath {
		t.Errorf("second candidate = %+v", cands[1])
	}
	if cands[1].Dir == "" {
		t.Error("path candidate missing its dir")
	}
}

func TestDiscover_DirectPluginDir(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"id":"solo","name":"Solo","version":"0.1.0"}`)

	cands, err := Discover(nil, config.PluginsConfig{Paths: []string{dir}}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 1 || cands[0].Manifest.ID != "solo" {
		t.Fatalf("candidates = %v", ids(cands))
	}
}

func TestDiscover_DuplicateIDFatal(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, filepath.Join(root, "dup"), `{"id":"core","name":"Impostor","version":"0.1.0"}`)

	builtins := []Definition{{
		Manifest: Manifest{ID: "core", Name: "Core", Version: "1.0.0"},
		Factory:  func() Plugin { return nil },
	}}

	_, err := Discover(builtins, config.PluginsConfig{Paths: []string{root}}, nil)
	if err == nil || !strings.Contains(err.Error(), "duplicate plugin id") {
		t.Fatalf("err = %v, want duplicate id error", err)
	}
}

func TestDiscover_MissingPathSkipped(t *testing.T) {
	cands, err := Discover(nil, config.PluginsConfig{Paths: []string{"/does/not/exist"}}, nil)
	if err != nil {
		t.Fatalf("missing path should be skipped, got %v", err)
	}
	if len(cands) != 0 {
		t.Fatalf("candidates = %v", ids(cands))
	}
}

func TestEnabled(t *testing.T) {
	off := false
	cfg := config.PluginsConfig{
		Allow:   []string{"a", "b"},
		Deny:    []string{"b"},
		Entries: []config.PluginEntry{{ID: "a", Enabled: &off}},
	}

	if Enabled(cfg, "b") {
		t.Error("deny must win over allow")
	}
	if Enabled(cfg, "c") {
		t.Error("allow list should exclude unlisted plugins")
	}
	if Enabled(cfg, "a") {
		t.Error("entry.enabled=false should disable an allowed plugin")
	}
	if !Enabled(config.PluginsConfig{}, "anything") {
		t.Error("empty config should enable everything")
	}
}

func TestManifestValidate(t *testing.T) {
	cases := []struct {
		m  Manifest
		ok bool
	}{
		{Manifest{ID: "good-one", Name: "G", Version: "1"}, true},
		{Manifest{ID: "", Name: "G", Version: "1"}, false},
		{Manifest{ID: "Bad Caps", Name: "G", Version: "1"}, false},
		{Manifest{ID: "noname", Version: "1"}, false},
		{Manifest{ID: "nover", Name: "N"}, false},
	}
	for _, tc := range cases {
		if err := tc.m.Validate(); (err == nil) != tc.ok {
			t.Errorf("Validate(%+v) = %v, want ok=%v", tc.m, err, tc.ok)
		}
	}
}
