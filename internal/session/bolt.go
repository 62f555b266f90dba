package session

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const defaultBoltBucket = "session"

// BoltStore persists the pair in a local bbolt file, so a restarted agent
// picks up the session it left behind.
type BoltStore struct {
	db     *bolt.DB
	bucket []byte
}

// OpenBoltStore opens (or creates) the session file at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("session: create dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("session: open bolt: %w", err)
	}

	bucket := []byte(defaultBoltBucket)
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session: create bucket: %w", err)
	}

	return &BoltStore{db: db, bucket: bucket}, nil
}

func (s *BoltStore) Get(_ context.Context) (Credentials, error) {
	var creds Credentials
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		creds.AccessToken = string(b.Get([]byte(AccessTokenKey)))
		creds.RefreshToken = string(b.Get([]byte(RefreshTokenKey)))
		return nil
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("session: read bolt: %w", err)
	}
	return creds, nil
}

func (s *BoltStore) Set(_ context.Context, creds Credentials) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if err := putOrDelete(b, AccessTokenKey, creds.AccessToken); err != nil {
			return err
		}
		return putOrDelete(b, RefreshTokenKey, creds.RefreshToken)
	})
	if err != nil {
		return fmt.Errorf("session: write bolt: %w", err)
	}
	return nil
}

func (s *BoltStore) Clear(_ context.Context) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if err := b.Delete([]byte(AccessTokenKey)); err != nil {
			return err
		}
		return b.Delete([]byte(RefreshTokenKey))
	})
	if err != nil {
		return fmt.Errorf("session: clear bolt: %w", err)
	}
	return nil
}

// Close releases the file lock.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func putOrDelete(b *bolt.Bucket, key, value string) error {
	if value == "" {
		return b.Delete([]byte(key))
	}
	return b.Put([]byte(key), []byte(value))
}

var _ Store = (*BoltStore)(nil)
