package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"
)

// FileStorage is a JSON object on disk standing in for browser storage.
// String values are returned as-is; other JSON values are returned encoded.
// The file is re-read whenever its modification time changes.
type FileStorage struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	values  map[string]string
}

func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

func (s *FileStorage) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reload(); err != nil {
		return "", false
	}
	v, ok := s.values[key]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (s *FileStorage) reload() error {
	info, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.values = nil
		s.modTime = time.Time{}
		return nil
	}
	if err != nil {
		return err
	}
	if s.values != nil && info.ModTime().Equal(s.modTime) {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode session file: %w", err)
	}
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		var str string
		if err := json.Unmarshal(v, &str); err == nil {
			values[k] = str
			continue
		}
		values[k] = string(v)
	}
	s.values = values
	s.modTime = info.ModTime()
	return nil
}

// MapStorage is an in-memory Storage.
type MapStorage map[string]string

func (m MapStorage) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok && v != ""
}
