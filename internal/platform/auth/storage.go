package auth

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	pkgcrypto "github.com/and161185/fashion-nexus/internal/crypto"
	"github.com/and161185/fashion-nexus/internal/model"
)

// SessionStorage persists a client's session between restarts.
type SessionStorage interface {
	// Load returns the stored session or nil.
	Load() (*model.Session, error)
	Save(s *model.Session) error
	Clear() error
}

// MemoryStorage keeps the session for the lifetime of the process.
type MemoryStorage struct {
	mu sync.Mutex
	s  *model.Session
}

var _ SessionStorage = (*MemoryStorage)(nil)

func (m *MemoryStorage) Load() (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSession(m.s), nil
}

func (m *MemoryStorage) Save(s *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = cloneSession(s)
	return nil
}

func (m *MemoryStorage) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = nil
	return nil
}

// FileStorage keeps the session in a sealed file (0600).
type FileStorage struct {
	path   string
	sealer *pkgcrypto.Sealer
}

var _ SessionStorage = (*FileStorage)(nil)

// NewFileStorage stores the session at path, sealed with sealer.
func NewFileStorage(path string, sealer *pkgcrypto.Sealer) *FileStorage {
	return &FileStorage{path: path, sealer: sealer}
}

func (f *FileStorage) Load() (*model.Session, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	pt, err := f.sealer.Open(string(raw), []byte(f.path))
	if err != nil {
		return nil, err
	}
	var s model.Session
	if err := json.Unmarshal(pt, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (f *FileStorage) Save(s *model.Session) error {
	if s == nil {
		return f.Clear()
	}
	pt, err := json.Marshal(s)
	if err != nil {
		return err
	}
	sealed, err := f.sealer.Seal(pt, []byte(f.path))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(f.path, []byte(sealed), 0o600)
}

func (f *FileStorage) Clear() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
