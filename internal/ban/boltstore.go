package ban

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketBlocklist = []byte("blocked_countries")
	keyCodes        = []byte("codes")
)

// BoltStore persists the blocked-country set in a bbolt database. The whole
// set is rewritten under a single key on every save, matching the
// read-once-at-startup, rewrite-wholesale lifecycle of the blocklist.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the bbolt database at path and ensures the
// blocklist bucket exists.
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("ban: open bolt %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBlocklist)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ban: create blocklist bucket: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Save rewrites the stored code list.
func (s *BoltStore) Save(codes []string) error {
	data, err := json.Marshal(codes)
	if err != nil {
		return fmt.Errorf("ban: marshal blocklist: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketBlocklist)
		if bucket == nil {
			return fmt.Errorf("ban: bucket not found: %s", bucketBlocklist)
		}
		return bucket.Put(keyCodes, data)
	})
}

// Load returns the stored code list, or nil if nothing was ever saved.
func (s *BoltStore) Load() ([]string, error) {
	var codes []string
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketBlocklist)
		if bucket == nil {
			return nil
		}
		data := bucket.Get(keyCodes)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &codes)
	})
	if err != nil {
		return nil, fmt.Errorf("ban: load blocklist: %w", err)
	}
	return codes, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
