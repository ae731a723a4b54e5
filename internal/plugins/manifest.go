// Package plugins discovers, orders, and loads plugin contributions into
// the kernel's registries. Built-in plugins compile into the binary;
// external plugins are discovered through manifests on configured paths.
package plugins

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// ManifestFilename is the manifest file an external plugin directory must
// contain.
const ManifestFilename = "slashbot.plugin.json"

// DefaultPriority orders plugins without an explicit priority.
const DefaultPriority = 100

var idPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*$`)

// Manifest declares a plugin's identity and load requirements.
type Manifest struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Description  string   `json:"description,omitempty"`
	Main         string   `json:"main,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	Priority     int      `json:"priority,omitempty"`
}

// Validate checks the manifest's required fields.
func (m Manifest) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("plugin manifest: id is required")
	}
	if !idPattern.MatchString(m.ID) {
		return fmt.Errorf("plugin manifest: invalid id %q", m.ID)
	}
	if m.Name == "" {
		return fmt.Errorf("plugin %q manifest: name is required", m.ID)
	}
	if m.Version == "" {
		return fmt.Errorf("plugin %q manifest: version is required", m.ID)
	}
	return nil
}

func (m Manifest) effectivePriority() int {
	if m.Priority == 0 {
		return DefaultPriority
	}
	return m.Priority
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read plugin manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse plugin manifest %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}
