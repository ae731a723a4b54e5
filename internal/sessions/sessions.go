// Package sessions persists per-session metadata files under the user's
// .slashbot directory.
package sessions

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Session states recorded in metadata.
const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// Metadata is one session's persisted record.
type Metadata struct {
	SessionID string `json:"sessionId"`
	AgentID   string `json:"agentId"`
	Status    string `json:"status"`
	StartedAt int64  `json:"startedAt"`
	EndedAt   int64  `json:"endedAt,omitempty"`
}

// Store writes session metadata files:
// <home>/.slashbot/agents/<agent>/sessions/<session>.json.
type Store struct {
	homeDir string
	logger  *slog.Logger
}

// NewStore creates a session store rooted at the user's home directory.
func NewStore(homeDir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{homeDir: homeDir, logger: logger.With("component", "sessions")}
}

func (s *Store) path(agentID, sessionID string) string {
	return filepath.Join(s.homeDir, ".slashbot", "agents", agentID, "sessions", sessionID+".json")
}

// Start records a session as active.
func (s *Store) Start(sessionID, agentID string) error {
	meta := Metadata{
		SessionID: sessionID,
		AgentID:   agentID,
		Status:    StatusActive,
		StartedAt: time.Now().UnixMilli(),
	}
	return s.write(meta)
}

// End marks a session ended, preserving its start time when the file is
// readable.
func (s *Store) End(sessionID, agentID string) error {
	meta, err := s.Load(agentID, sessionID)
	if err != nil {
		meta = Metadata{SessionID: sessionID, AgentID: agentID}
	}
	meta.Status = StatusEnded
	meta.EndedAt = time.Now().UnixMilli()
	return s.write(meta)
}

// Load reads a session's metadata.
func (s *Store) Load(agentID, sessionID string) (Metadata, error) {
	data, err := os.ReadFile(s.path(agentID, sessionID))
	if err != nil {
		return Metadata{}, fmt.Errorf("read session metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("parse session metadata: %w", err)
	}
	return meta, nil
}

// write persists metadata atomically via temp file + rename.
func (s *Store) write(meta Metadata) error {
	path := s.path(meta.AgentID, meta.SessionID)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create sessions dir: %w", err)
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session metadata: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".session-*")
	if err != nil {
		return fmt.Errorf("temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write session metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session metadata: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace session metadata: %w", err)
	}
	return nil
}
