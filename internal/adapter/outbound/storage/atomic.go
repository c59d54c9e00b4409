// Package storage provides atomic, locked, file-backed persistence for the
// control plane's small pieces of durable state: manifest.json and
// tracker.json. Grounded on the same write sequence as a generic file state
// store: in-process mutex, cross-process flock, a .bak snapshot of the
// previous contents, write-tmp-then-fsync-then-rename, and a final chmod
// 0600.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// envelope wraps a persisted payload with a schema version so readers can
// detect format drift across releases.
type envelope struct {
	SchemaVersion int             `json:"schemaVersion"`
	Data          json.RawMessage `json:"data"`
}

// CurrentSchemaVersion is written on every Save.
const CurrentSchemaVersion = 1

// AtomicJSONStore persists a single JSON document at path with the write
// sequence documented on the package.
type AtomicJSONStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewAtomicJSONStore constructs a store for path. logger defaults to
// slog.Default() when nil.
func NewAtomicJSONStore(path string, logger *slog.Logger) *AtomicJSONStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &AtomicJSONStore{path: path, logger: logger}
}

// ErrNotExist is returned by Load when the backing file does not exist.
var ErrNotExist = errors.New("storage: file does not exist")

// Load decodes the persisted payload into out. Returns ErrNotExist if the
// file has never been written.
func (s *AtomicJSONStore) Load(out any) (schemaVersion int, err error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotExist
		}
		return 0, fmt.Errorf("read %s: %w", s.path, err)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return 0, fmt.Errorf("parse envelope %s: %w", s.path, err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return 0, fmt.Errorf("parse payload %s: %w", s.path, err)
	}
	return env.SchemaVersion, nil
}

// Save atomically writes payload to path: mutex, flock, backup, tmp write,
// fsync, rename, chmod 0600.
func (s *AtomicJSONStore) Save(payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	lockPath := s.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = lockFile.Close() }()

	if err := flockLock(lockFile.Fd()); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer func() { _ = flockUnlock(lockFile.Fd()) }()

	if current, readErr := os.ReadFile(s.path); readErr == nil {
		bakPath := s.path + ".bak"
		if writeErr := os.WriteFile(bakPath, current, 0600); writeErr != nil {
			s.logger.Warn("failed to write backup snapshot", "path", bakPath, "error", writeErr)
		}
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.MarshalIndent(envelope{SchemaVersion: CurrentSchemaVersion, Data: payloadJSON}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	data = append(data, '\n')

	if err := s.writeAtomic(data); err != nil {
		return err
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		s.logger.Warn("failed to chmod after save", "path", s.path, "error", err)
	}
	return nil
}

func (s *AtomicJSONStore) writeAtomic(data []byte) error {
	tmpPath := s.path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Exists reports whether the backing file has been written.
func (s *AtomicJSONStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}
