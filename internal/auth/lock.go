package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Lock acquisition parameters. A stale lock from a dead owner is not
// reclaimed; callers see ErrLockTimeout and surface it.
const (
	lockPollInterval = 100 * time.Millisecond
	lockDeadline     = 5 * time.Second
)

// ErrLockTimeout is returned when the profile lock cannot be acquired
// within the deadline.
var ErrLockTimeout = errors.New("profile lock timeout")

// lockPath returns the lock file guarding one (agent, provider) pair.
func (s *Store) lockPath(agentID, providerID string) string {
	return filepath.Join(s.homeDir, ".slashbot", "locks", agentID+"."+providerID+".lock")
}

// WithProfileLock serializes read-modify-write cycles on an agent's
// credentials for one provider. The lock is an exclusive-create file;
// acquisition polls every 100 ms for up to 5 s.
func (s *Store) WithProfileLock(ctx context.Context, agentID, providerID string, fn func() error) error {
	path := s.lockPath(agentID, providerID)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}

	deadline := time.Now().Add(lockDeadline)
	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
			f.Close()
			break
		}
		if !os.IsExist(err) {
			return fmt.Errorf("create lock file: %w", err)
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: %s held too long", ErrLockTimeout, path)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}

	defer os.Remove(path)
	return fn()
}
