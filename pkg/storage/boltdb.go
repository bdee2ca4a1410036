package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/agrilo/pkg/security"
	"github.com/cuemby/agrilo/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketSession     = []byte("session")
	bucketPreferences = []byte("preferences")
	bucketSnapshots   = []byte("snapshots")
)

// sealedPrefix marks a token value written through a Sealer
var sealedPrefix = []byte("sealed:")

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db     *bolt.DB
	sealer *security.Sealer
}

// Option configures a BoltStore
type Option func(*BoltStore)

// WithSealer encrypts the access token at rest
func WithSealer(s *security.Sealer) Option {
	return func(b *BoltStore) {
		b.sealer = s
	}
}

// NewBoltStore creates a new BoltDB-backed store in dataDir
func NewBoltStore(dataDir string, opts ...Option) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "agrilo.db")

	// A second CLI process waits briefly for the file lock instead of hanging
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketSession,
			bucketPreferences,
			bucketSnapshots,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	s := &BoltStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Session operations
func (s *BoltStore) GetToken() (string, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketSession).Get([]byte(KeyAccessToken)); v != nil {
			raw = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil || raw == nil {
		return "", err
	}
	return s.unseal(raw)
}

func (s *BoltStore) SetToken(token string) error {
	if token == "" {
		return s.DeleteToken()
	}

	value, err := s.seal(token)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSession).Put([]byte(KeyAccessToken), value)
	})
}

func (s *BoltStore) DeleteToken() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSession).Delete([]byte(KeyAccessToken))
	})
}

// Profile operations
func (s *BoltStore) GetProfile() (*types.Profile, error) {
	var profile *types.Profile
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSession).Get([]byte(KeyUser))
		if data == nil {
			return nil
		}
		profile = &types.Profile{}
		return json.Unmarshal(data, profile)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read cached profile: %w", err)
	}
	return profile, nil
}

func (s *BoltStore) SaveProfile(profile *types.Profile) error {
	if profile == nil {
		return s.DeleteProfile()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(profile)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSession).Put([]byte(KeyUser), data)
	})
}

func (s *BoltStore) DeleteProfile() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSession).Delete([]byte(KeyUser))
	})
}

// Preference operations
func (s *BoltStore) GetLanguage() (string, error) {
	var lang string
	err := s.db.View(func(tx *bolt.Tx) error {
		lang = string(tx.Bucket(bucketPreferences).Get([]byte(KeyLanguage)))
		return nil
	})
	return lang, err
}

func (s *BoltStore) SetLanguage(lang string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPreferences).Put([]byte(KeyLanguage), []byte(lang))
	})
}

// Snapshot operations
func (s *BoltStore) GetSnapshot(view string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketSnapshots).Get([]byte(view)); v != nil {
			data = append([]byte{}, v...)
		}
		return nil
	})
	return data, err
}

func (s *BoltStore) SaveSnapshot(view string, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put([]byte(view), data)
	})
}

func (s *BoltStore) seal(token string) ([]byte, error) {
	if s.sealer == nil {
		return []byte(token), nil
	}
	sealed, err := s.sealer.Seal([]byte(token))
	if err != nil {
		return nil, fmt.Errorf("failed to seal token: %w", err)
	}
	return append(append([]byte{}, sealedPrefix...), sealed...), nil
}

func (s *BoltStore) unseal(raw []byte) (string, error) {
	if len(raw) < len(sealedPrefix) || string(raw[:len(sealedPrefix)]) != string(sealedPrefix) {
		return string(raw), nil
	}
	if s.sealer == nil {
		return "", fmt.Errorf("stored token is sealed but no token key is configured")
	}
	plain, err := s.sealer.Open(raw[len(sealedPrefix):])
	if err != nil {
		return "", fmt.Errorf("failed to unseal token: %w", err)
	}
	return string(plain), nil
}
