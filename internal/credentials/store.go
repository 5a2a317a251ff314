package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/openclaw/session-gateway-go/internal/util"
)

const credsFile = "creds.json"

// Material is the per-session authentication state the transport needs to
// resume without a new scan. Data is opaque to the gateway.
type Material struct {
	Registered bool            `json:"registered"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Store owns the lifecycle of per-session credential directories.
type Store interface {
	Ensure(sessionID string) error
	Exists(sessionID string) (bool, error)
	Load(sessionID string) (*Material, error)
	Save(sessionID string, m *Material) error
	Remove(sessionID string) error
}

// FileStore keeps one directory per session under root. When key is set the
// material is sealed with AES-256-GCM before it touches disk.
type FileStore struct {
	root string
	key  []byte
}

func NewFileStore(root string, hexKey string) (*FileStore, error) {
	fs := &FileStore{root: root}
	if hexKey != "" {
		key, err := util.ParseKey(hexKey)
		if err != nil {
			return nil, err
		}
		fs.key = key
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("create session root: %w", err)
	}
	return fs, nil
}

func (s *FileStore) Dir(sessionID string) (string, error) {
	if !util.IsValidSessionID(sessionID) {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	return filepath.Join(s.root, sessionID), nil
}

func (s *FileStore) Ensure(sessionID string) error {
	dir, err := s.Dir(sessionID)
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o700)
}

func (s *FileStore) Exists(sessionID string) (bool, error) {
	dir, err := s.Dir(sessionID)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// Load returns empty material when nothing has been saved yet.
func (s *FileStore) Load(sessionID string) (*Material, error) {
	dir, err := s.Dir(sessionID)
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(filepath.Join(dir, credsFile))
	if errors.Is(err, os.ErrNotExist) {
		return &Material{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	if s.key != nil {
		raw, err = util.Open(s.key, raw)
		if err != nil {
			return nil, fmt.Errorf("open credentials: %w", err)
		}
	}

	var m Material
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return &m, nil
}

func (s *FileStore) Save(sessionID string, m *Material) error {
	dir, err := s.Dir(sessionID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	if s.key != nil {
		raw, err = util.Seal(s.key, raw)
		if err != nil {
			return fmt.Errorf("seal credentials: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, credsFile+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, credsFile))
}

// Remove wipes the session directory. A missing directory is not an error.
func (s *FileStore) Remove(sessionID string) error {
	dir, err := s.Dir(sessionID)
	if err != nil {
		return err
	}
	return os.RemoveAll(dir)
}
