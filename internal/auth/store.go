// Package auth persists per-agent credential profiles and resolves which
// provider and profile a session should use.
package auth

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// CredentialsFilename is the multi-agent credential document inside a
// .slashbot directory.
const CredentialsFilename = "credentials.json"

// CredentialsVersion is the current credential document version.
const CredentialsVersion = 1

// Profile is one stored credential record for one provider for one agent.
// Unique by (ProviderID, ProfileID).
type Profile struct {
	ProfileID  string          `json:"profileId"`
	ProviderID string          `json:"providerId"`
	Label      string          `json:"label,omitempty"`
	Method     string          `json:"method"`
	CreatedAt  int64           `json:"createdAt,omitempty"`
	UpdatedAt  int64           `json:"updatedAt,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// APIKey extracts an api key from the profile's opaque data, if present.
func (p Profile) APIKey() string {
	var d struct {
		APIKey string `json:"apiKey"`
	}
	if len(p.Data) == 0 {
		return ""
	}
	if err := json.Unmarshal(p.Data, &d); err != nil {
		return ""
	}
	return d.APIKey
}

// Credential returns the secret used to authenticate provider calls: the
// api key when present, else the oauth access token.
func (p Profile) Credential() string {
	if key := p.APIKey(); key != "" {
		return key
	}
	var d struct {
		AccessToken string `json:"accessToken"`
	}
	if len(p.Data) == 0 {
		return ""
	}
	if err := json.Unmarshal(p.Data, &d); err != nil {
		return ""
	}
	return d.AccessToken
}

type credentialsDoc struct {
	Version int                      `json:"version"`
	Agents  map[string]agentProfiles `json:"agents"`
}

type agentProfiles struct {
	Profiles []Profile `json:"profiles"`
}

type legacyDoc struct {
	Profiles []Profile `json:"profiles"`
}

// Store reads and writes credential profiles. The user-global file is the
// only writable location; cwd, workspace, and legacy files are read-only
// merge sources.
type Store struct {
	homeDir      string
	cwdDir       string
	workspaceDir string
	logger       *slog.Logger
}

// NewStore creates a store rooted at the user's home directory. cwdDir and
// workspaceDir may be empty to skip those layers.
func NewStore(homeDir, cwdDir, workspaceDir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		homeDir:      homeDir,
		cwdDir:       cwdDir,
		workspaceDir: workspaceDir,
		logger:       logger.With("component", "auth"),
	}
}

// UserCredentialsPath returns the writable user-global credential file.
func (s *Store) UserCredentialsPath() string {
	return filepath.Join(s.homeDir, ".slashbot", CredentialsFilename)
}

func (s *Store) legacyPath(agentID string) string {
	return filepath.Join(s.homeDir, ".slashbot", "agents", agentID, "agent", "auth-profiles.json")
}

// ListProfiles merges the agent's profiles from the user-global, cwd,
// workspace, and legacy files, in that order; the first occurrence of
// (providerId, profileId) wins. providerID filters when non-empty.
func (s *Store) ListProfiles(agentID, providerID string) ([]Profile, error) {
	type source struct {
		path   string
		legacy bool
	}
	sources := []source{{path: s.UserCredentialsPath()}}
	if s.cwdDir != "" {
		sources = append(sources, source{path: filepath.Join(s.cwdDir, ".slashbot", CredentialsFilename)})
	}
	if s.workspaceDir != "" {
		sources = append(sources, source{path: filepath.Join(s.workspaceDir, ".slashbot", CredentialsFilename)})
	}
	sources = append(sources, source{path: s.legacyPath(agentID), legacy: true})

	seen := make(map[string]bool)
	var out []Profile
	for _, src := range sources {
		profiles, err := readProfiles(src.path, src.legacy, agentID)
		if err != nil {
			return nil, err
		}
		for _, p := range profiles {
			if providerID != "" && p.ProviderID != providerID {
				continue
			}
			key := p.ProviderID + "\x00" + p.ProfileID
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, p)
		}
	}
	return out, nil
}

// readProfiles loads one source file; a missing file yields no profiles.
func readProfiles(path string, legacy bool, agentID string) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credentials %s: %w", path, err)
	}

	if legacy {
		var doc legacyDoc
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse legacy credentials %s: %w", path, err)
		}
		return doc.Profiles, nil
	}

	var doc credentialsDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse credentials %s: %w", path, err)
	}
	return doc.Agents[agentID].Profiles, nil
}

// UpsertProfile inserts or replaces a profile in the user-global file,
// bumping UpdatedAt, and writes atomically via temp file + rename.
func (s *Store) UpsertProfile(agentID string, profile Profile) error {
	if profile.ProfileID == "" || profile.ProviderID == "" {
		return fmt.Errorf("profile requires profileId and providerId")
	}

	path := s.UserCredentialsPath()
	doc := credentialsDoc{Version: CredentialsVersion, Agents: map[string]agentProfiles{}}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse credentials %s: %w", path, err)
		}
		if doc.Agents == nil {
			doc.Agents = map[string]agentProfiles{}
		}
	case !os.IsNotExist(err):
		return fmt.Errorf("read credentials %s: %w", path, err)
	}

	now := time.Now().UnixMilli()
	profile.UpdatedAt = now
	if profile.CreatedAt == 0 {
		profile.CreatedAt = now
	}

	agent := doc.Agents[agentID]
	replaced := false
	for i, existing := range agent.Profiles {
		if existing.ProviderID == profile.ProviderID && existing.ProfileID == profile.ProfileID {
			if existing.CreatedAt != 0 {
				profile.CreatedAt = existing.CreatedAt
			}
			agent.Profiles[i] = profile
			replaced = true
			break
		}
	}
	if !replaced {
		agent.Profiles = append(agent.Profiles, profile)
	}
	doc.Agents[agentID] = agent
	doc.Version = CredentialsVersion

	return writeAtomic(path, doc)
}

// writeAtomic serializes v and renames a temp file over path.
func writeAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".credentials-*")
	if err != nil {
		return fmt.Errorf("temp credentials file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close credentials: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace credentials: %w", err)
	}
	return nil
}
