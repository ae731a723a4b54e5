package plugins

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/slashbot/slashbot/internal/config"
)

// Source records where a candidate came from.
type Source string

const (
	SourceBuiltin Source = "builtin"
	SourcePath    Source = "path"
)

// Candidate is a discovered plugin awaiting load.
type Candidate struct {
	Manifest Manifest
	Factory  Factory
	Source   Source

	// Dir is the plugin directory for path-discovered candidates.
	Dir string
}

// Discover collects built-in definitions and external manifests from the
// configured paths. Two candidates sharing an id is a fatal error.
func Discover(builtins []Definition, cfg config.PluginsConfig, logger *slog.Logger) ([]Candidate, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "plugins")

	var out []Candidate
	seen := make(map[string]string) // id -> origin, for duplicate messages

	add := func(c Candidate, origin string) error {
		if err := c.Manifest.Validate(); err != nil {
			return err
		}
		if prev, dup := seen[c.Manifest.ID]; dup {
			return fmt.Errorf("duplicate plugin id %q (%s and %s)", c.Manifest.ID, prev, origin)
		}
		seen[c.Manifest.ID] = origin
		out = append(out, c)
		return nil
	}

	for _, def := range builtins {
		if err := add(Candidate{Manifest: def.Manifest, Factory: def.Factory, Source: SourceBuiltin}, "builtin"); err != nil {
			return nil, err
		}
	}

	for _, root := range cfg.Paths {
		dirs, err := pluginDirs(root)
		if err != nil {
			logger.Warn("skipping plugin path", "path", root, "error", err)
			continue
		}
		for _, dir := range dirs {
			manifest, err := LoadManifest(filepath.Join(dir, ManifestFilename))
			if err != nil {
				logger.Warn("skipping plugin dir", "dir", dir, "error", err)
				continue
			}
			if err := add(Candidate{Manifest: manifest, Source: SourcePath, Dir: dir}, dir); err != nil {
				return nil, err
			}
		}
	}

	return out, nil
}

// pluginDirs resolves a configured path to plugin directories: the path
// itself when it holds a manifest, otherwise its immediate subdirectories
// that do.
func pluginDirs(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	if _, err := os.Stat(filepath.Join(root, ManifestFilename)); err == nil {
		return []string{root}, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if _, err := os.Stat(filepath.Join(dir, ManifestFilename)); err == nil {
			dirs = append(dirs, dir)
		}
	}
	return dirs, nil
}

// Enabled reports whether config permits a plugin to load. Deny always
// wins; a non-empty allow list acts as a whitelist; a per-plugin entry can
// still switch a plugin off.
func Enabled(cfg config.PluginsConfig, id string) bool {
	if slices.Contains(cfg.Deny, id) {
		return false
	}
	if len(cfg.Allow) > 0 && !slices.Contains(cfg.Allow, id) {
		return false
	}
	if entry, ok := cfg.Entry(id); ok && entry.Enabled != nil {
		return *entry.Enabled
	}
	return true
}
