package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileVersion is the current state file format version.
const FileVersion = 1

// DefaultFilePath returns the default path for the local state file.
func DefaultFilePath() string {
	if home := os.Getenv("HRCONNECT_HOME"); home != "" {
		return filepath.Join(home, "data", "connections.json")
	}
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, "hrconnect", "connections.json")
}

// fileSnapshot is the on-disk layout of the state file.
type fileSnapshot struct {
	Version   int                        `json:"version"`
	UpdatedAt time.Time                  `json:"updated_at"`
	Records   map[string]json.RawMessage `json:"records"`
}

// FileBackend stores every scope's record in one JSON file. The file is
// re-read on every access so writes from other processes are seen.
type FileBackend struct {
	mu   sync.Mutex
	path string
}

// NewFileBackend returns a backend writing to path. The directory is
// created on first write.
func NewFileBackend(path string) *FileBackend {
	if path == "" {
		path = DefaultFilePath()
	}
	return &FileBackend{path: filepath.Clean(path)}
}

// Path returns the state file location.
func (b *FileBackend) Path() string { return b.path }

func (b *FileBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap, err := b.read()
	if err != nil {
		return nil, false, err
	}
	rec, ok := snap.Records[key]
	if !ok {
		return nil, false, nil
	}
	return []byte(rec), true, nil
}

func (b *FileBackend) Put(_ context.Context, key string, record []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap, err := b.read()
	if err != nil {
		return err
	}
	snap.Records[key] = json.RawMessage(append([]byte(nil), record...))
	return b.write(snap)
}

func (b *FileBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap, err := b.read()
	if err != nil {
		return err
	}
	if _, ok := snap.Records[key]; !ok {
		return nil
	}
	delete(snap.Records, key)
	return b.write(snap)
}

func (b *FileBackend) Close() error { return nil }

func (b *FileBackend) read() (*fileSnapshot, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return &fileSnapshot{Version: FileVersion, Records: map[string]json.RawMessage{}}, nil
		}
		return nil, fmt.Errorf("%w: reading state file: %v", ErrUnavailable, err)
	}

	var snap fileSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing state file: %w", err)
	}
	if snap.Version > FileVersion {
		return nil, fmt.Errorf("state file version %d is newer than supported %d", snap.Version, FileVersion)
	}
	if snap.Records == nil {
		snap.Records = map[string]json.RawMessage{}
	}
	return &snap, nil
}

// write replaces the file atomically: temp file, fsync, rename.
func (b *FileBackend) write(snap *fileSnapshot) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("%w: creating state directory: %v", ErrUnavailable, err)
	}

	snap.Version = FileVersion
	snap.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "connections.*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %v", ErrUnavailable, err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("%w: writing state: %v", ErrUnavailable, err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("%w: syncing state: %v", ErrUnavailable, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, b.path); err != nil {
		return fmt.Errorf("%w: renaming state file: %v", ErrUnavailable, err)
	}

	success = true
	return nil
}
