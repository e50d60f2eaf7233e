// Package config implements the agent's persistent key→value settings
// store (C1): lazily loaded from disk at process start, rewritten
// atomically on every Set.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Logger is the narrow logging interface config depends on.
type Logger interface {
	Error(msg string, context ...interface{})
	Warn(msg string, context ...interface{})
	Info(msg string, context ...interface{})
	Debug(msg string, context ...interface{})
}

type nullLogger struct{}

func (nullLogger) Error(string, ...interface{}) {}
func (nullLogger) Warn(string, ...interface{})  {}
func (nullLogger) Info(string, ...interface{})  {}
func (nullLogger) Debug(string, ...interface{}) {}

// Defaults for the recognized keys (spec.md §3 Configuration table).
var Defaults = map[string]interface{}{
	"apiPort":        float64(3001),
	"defaultPrinter": "",
	"maxRetries":     float64(3),
	"retryDelay":     float64(5000),
	"maxQueueSize":   float64(100),
	"serverBaseUrl":  "",
	"apiKey":         "",
	"sumatraPath":    "",
}

// apiKeyCipherPrefix marks a value in the on-disk JSON as an
// AES-GCM-encrypted apiKey rather than plaintext, so old plaintext config
// files still load correctly.
const apiKeyCipherPrefix = "enc:"

// Store is the process-wide configuration source of truth. Safe for
// concurrent use.
type Store struct {
	mu      sync.RWMutex
	path    string
	keyPath string
	values  map[string]interface{}
	logger  Logger
	secrets *secretBox
}

// Open loads the config file at path (an absent file yields an empty store;
// the file is first written by Set) and the encryption key used for
// apiKey-at-rest, stored alongside it.
func Open(path string, logger Logger) (*Store, error) {
	if logger == nil {
		logger = nullLogger{}
	}
	s := &Store{
		path:    path,
		keyPath: filepath.Join(filepath.Dir(path), ".secret.key"),
		values:  map[string]interface{}{},
		logger:  logger,
	}

	secrets, err := newSecretBox(s.keyPath)
	if err != nil {
		return nil, fmt.Errorf("initializing config encryption key: %w", err)
	}
	s.secrets = secrets

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // first run: empty store, defaults apply on Get
		}
		s.logger.Warn("failed to read config file, starting empty", "path", s.path, "error", err)
		return nil
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		s.logger.Warn("config file is not valid JSON, starting empty", "path", s.path, "error", err)
		return nil
	}

	if enc, ok := raw["apiKey"].(string); ok && len(enc) > len(apiKeyCipherPrefix) && enc[:len(apiKeyCipherPrefix)] == apiKeyCipherPrefix {
		plain, err := s.secrets.open(enc[len(apiKeyCipherPrefix):])
		if err != nil {
			s.logger.Warn("failed to decrypt stored apiKey, treating as unset", "error", err)
			raw["apiKey"] = ""
		} else {
			raw["apiKey"] = plain
		}
	}

	s.mu.Lock()
	s.values = raw
	s.mu.Unlock()
	return nil
}

// Get returns the stored value for key, or def if unset; when def is nil
// and key is in Defaults, the Defaults value is returned. Read errors never
// occur here (they are absorbed during Open); an unset key is simply
// treated as using the caller's default.
func (s *Store) Get(key string, def interface{}) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	if v, ok := Defaults[key]; ok && def == nil {
		return v
	}
	return def
}

// GetString is a Get convenience wrapper for string-typed keys.
func (s *Store) GetString(key, def string) string {
	v := s.Get(key, def)
	if str, ok := v.(string); ok {
		return str
	}
	return def
}

// GetInt is a Get convenience wrapper for integer-typed keys (JSON numbers
// decode as float64).
func (s *Store) GetInt(key string, def int) int {
	v := s.Get(key, nil)
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	}
	return def
}

// Set stores value for key and rewrites the config file atomically. A
// write failure is logged and returned to the caller as an error; it is
// never fatal to the process.
func (s *Store) Set(key string, value interface{}) error {
	s.mu.Lock()
	s.values[key] = value
	snapshot := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		snapshot[k] = v
	}
	secrets := s.secrets
	s.mu.Unlock()

	if apiKey, ok := snapshot["apiKey"].(string); ok && apiKey != "" {
		enc, err := secrets.seal(apiKey)
		if err != nil {
			s.logger.Warn("failed to encrypt apiKey for storage, writing plaintext", "error", err)
		} else {
			snapshot["apiKey"] = apiKeyCipherPrefix + enc
		}
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := writeFileAtomic(s.path, data, 0o644); err != nil {
		s.logger.Error("failed to write config file", "path", s.path, "error", err)
		return err
	}
	return nil
}

// writeFileAtomic writes data to a temp file in the same directory and
// renames it into place, avoiding partial writes being observed by
// concurrent readers.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := f.Name()
	defer func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := f.Write(data); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
