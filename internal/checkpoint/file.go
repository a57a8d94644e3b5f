package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore keeps checkpoints in a JSON document that is rewritten atomically on every Set.
type FileStore struct {
	path string

	mu     sync.Mutex
	points map[string]time.Time
	loaded bool
}

type fileState struct {
	Checkpoints map[string]time.Time `json:"checkpoints"`
}

// NewFileStore returns a store backed by path. The file is created on first write.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("checkpoint file path is required")
	}
	return &FileStore{path: filepath.Clean(path)}, nil
}

func (s *FileStore) Get(_ context.Context, activity string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return time.Time{}, false, err
	}
	at, ok := s.points[activity]
	return at, ok, nil
}

func (s *FileStore) Set(_ context.Context, activity string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	prev, existed := s.points[activity]
	s.points[activity] = at
	if err := s.save(); err != nil {
		if existed {
			s.points[activity] = prev
		} else {
			delete(s.points, activity)
		}
		return err
	}
	return nil
}

func (s *FileStore) All(_ context.Context) (map[string]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(s.points))
	for k, v := range s.points {
		out[k] = v
	}
	return out, nil
}

func (s *FileStore) load() error {
	if s.loaded {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.points = map[string]time.Time{}
			s.loaded = true
			return nil
		}
		return err
	}
	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("decode checkpoint file %s: %w", s.path, err)
	}
	if state.Checkpoints == nil {
		state.Checkpoints = map[string]time.Time{}
	}
	s.points = state.Checkpoints
	s.loaded = true
	return nil
}

func (s *FileStore) save() error {
	data, err := json.MarshalIndent(fileState{Checkpoints: s.points}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return writeFileAtomic(s.path, data, 0o644)
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(mode); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
