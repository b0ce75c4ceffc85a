package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	bolt "go.etcd.io/bbolt"
)

// TokenStore persists a TokenState between runs.
type TokenStore interface {
	// Load returns the stored token and whether one was found.
	Load() (TokenState, bool, error)
	Save(TokenState) error
	Clear() error
}

// MemoryStore keeps the token in process memory only.
type MemoryStore struct {
	mu    sync.Mutex
	state TokenState
	ok    bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Load() (TokenState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.ok, nil
}

func (s *MemoryStore) Save(st TokenState) error {
	s.mu.Lock()
	s.state, s.ok = st, true
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	s.state, s.ok = TokenState{}, false
	s.mu.Unlock()
	return nil
}

// FileStore keeps the token in a TOML file readable only by the owner.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a FileStore at path. The file is created on first Save.
func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

type tokenFile struct {
	Token TokenState `toml:"token"`
}

func (s *FileStore) Load() (TokenState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var f tokenFile
	if _, err := toml.DecodeFile(s.path, &f); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return TokenState{}, false, nil
		}
		return TokenState{}, false, fmt.Errorf("reading token file: %w", err)
	}
	return f.Token, !f.Token.IsZero(), nil
}

// Save writes st, creating parent directories as needed. Permissions are 0600.
func (s *FileStore) Save(st TokenState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("opening token file: %w", err)
	}
	if encErr := toml.NewEncoder(f).Encode(tokenFile{Token: st}); encErr != nil {
		f.Close()
		return encErr
	}
	return f.Close()
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}

const tokenBucket = "tokens"

// BoltStore keeps tokens in a bbolt database, one key per profile.
type BoltStore struct {
	db      *bolt.DB
	profile []byte
}

// OpenBoltStore opens (or creates) the database at path.
func OpenBoltStore(path, profile string) (*BoltStore, error) {
	if profile == "" {
		profile = "default"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating token directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening token db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(tokenBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating token bucket: %w", err)
	}
	return &BoltStore{db: db, profile: []byte(profile)}, nil
}

func (s *BoltStore) Load() (TokenState, bool, error) {
	var st TokenState
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(tokenBucket)).Get(s.profile)
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &st)
	})
	if err != nil {
		return TokenState{}, false, fmt.Errorf("reading token db: %w", err)
	}
	return st, found, nil
}

func (s *BoltStore) Save(st TokenState) error {
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(tokenBucket)).Put(s.profile, b)
	})
}

func (s *BoltStore) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(tokenBucket)).Delete(s.profile)
	})
}

// Close releases the database file lock.
func (s *BoltStore) Close() error { return s.db.Close() }
