package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

var _ Store = (*FileStore)(nil)

// FileStore keeps one JSON file per run key in a directory. Writers in
// other processes are excluded by a lock file next to each checkpoint.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

type fileRecord struct {
	RunKey    string    `json:"runKey"`
	Completed []string  `json:"completed"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("checkpoint directory is not set")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func (s *FileStore) path(runKey string) string {
	return filepath.Join(s.dir, unsafeChars.ReplaceAllString(runKey, "_")+".json")
}

func (s *FileStore) lock(runKey string, shared bool) (func(), error) {
	fl := flock.New(s.path(runKey) + ".lock")
	lockFn := fl.Lock
	if shared {
		lockFn = fl.RLock
	}
	if err := lockFn(); err != nil {
		return nil, fmt.Errorf("failed to lock checkpoint: %w", err)
	}
	return func() { _ = fl.Unlock() }, nil
}

func (s *FileStore) read(runKey string) (*fileRecord, error) {
	data, err := os.ReadFile(s.path(runKey))
	if errors.Is(err, os.ErrNotExist) {
		return &fileRecord{RunKey: runKey}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	var rec fileRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint %s: %w", s.path(runKey), err)
	}
	return &rec, nil
}

// write replaces the file atomically through a rename.
func (s *FileStore) write(rec *fileRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return os.Rename(tmp.Name(), s.path(rec.RunKey))
}

func (s *FileStore) Completed(_ context.Context, runKey string) ([]string, error) {
	if err := checkKey(runKey); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lock(runKey, true)
	if err != nil {
		return nil, err
	}
	defer unlock()

	rec, err := s.read(runKey)
	if err != nil {
		return nil, err
	}
	return slices.Sorted(slices.Values(rec.Completed)), nil
}

func (s *FileStore) MarkCompleted(_ context.Context, runKey, id string) error {
	if err := checkKey(runKey); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lock(runKey, false)
	if err != nil {
		return err
	}
	defer unlock()

	rec, err := s.read(runKey)
	if err != nil {
		return err
	}
	if slices.Contains(rec.Completed, id) {
		return nil
	}
	rec.Completed = append(rec.Completed, id)
	rec.UpdatedAt = time.Now().UTC()
	return s.write(rec)
}

func (s *FileStore) Reset(_ context.Context, runKey string) error {
	if err := checkKey(runKey); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	unlock, err := s.lock(runKey, false)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(s.path(runKey)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to reset checkpoint: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
