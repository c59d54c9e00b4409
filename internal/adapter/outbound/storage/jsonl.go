package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// JSONLStore appends JSON-lines records to a single file: events.log or
// adrs.log. Simplified from a rotating/retained audit store since
// automatic storage-layer TTL is out of scope here — the full file is
// always readable and nothing is pruned.
type JSONLStore struct {
	path   string
	mu     sync.Mutex
	file   *os.File
	logger *slog.Logger
}

// NewJSONLStore opens (creating if necessary) the append-only file at path.
func NewJSONLStore(path string, logger *slog.Logger) (*JSONLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &JSONLStore{path: path, file: f, logger: logger}, nil
}

// Append marshals record (wrapped with CurrentSchemaVersion) and writes it
// as a single JSON line, fsyncing before returning.
func (s *JSONLStore) Append(record any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payloadJSON, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	line, err := json.Marshal(envelope{SchemaVersion: CurrentSchemaVersion, Data: payloadJSON})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	line = append(line, '\n')

	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("append to %s: %w", s.path, err)
	}
	return s.file.Sync()
}

// ReadAll replays every record in the file in append order, decoding each
// into a freshly allocated T via decode and collecting the results.
func ReadAllJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var out []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var env envelope
		if err := json.Unmarshal(line, &env); err != nil {
			return nil, fmt.Errorf("parse envelope in %s: %w", path, err)
		}
		var v T
		if err := json.Unmarshal(env.Data, &v); err != nil {
			return nil, fmt.Errorf("parse record in %s: %w", path, err)
		}
		out = append(out, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return out, nil
}

// Close releases the underlying file handle.
func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
