// Package diskresumer persists enough per-torrent state to resume a
// download across restarts: info hash, destination, raw info dict bytes,
// and piece-completion bitfield. Grounded on the teacher's
// internal/resumer/boltdbresumer usage in session.go (db.Open with a
// timeout, torrentsBucket keyed by torrent id, Write/Read of a Spec per
// sub-bucket), ported onto go.etcd.io/bbolt (the maintained successor to
// the teacher's github.com/boltdb/bolt, same API).
package diskresumer

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/ozkant/bitswarm/bt"
)

var torrentsBucket = []byte("torrents")

// Spec is the persisted state for one torrent.
type Spec struct {
	InfoHash  bt.InfoHash
	Dest      string
	Port      int
	Name      string
	Trackers  []string
	Info      []byte // raw info dictionary, once known
	Bitfield  []byte
	CreatedAt time.Time
}

// Store wraps a bbolt database for per-torrent resume state.
type Store struct {
	db *bbolt.DB
}

// NewID mints a fresh resume-store id for a newly added torrent, the way
// the teacher's session.go assigns every added torrent a uuid.NewV1() id
// before handing it to boltdbresumer.
func NewID() string {
	return uuid.New().String()
}

// Open opens (creating if necessary) a bbolt database at path and ensures
// the top-level torrents bucket exists, mirroring the teacher's
// db.Update(CreateBucketIfNotExists) bootstrap in session.go.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o640, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(torrentsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Write persists spec under its own sub-bucket, keyed by id.
func (s *Store) Write(id string, spec *Spec) error {
	data, err := json.Marshal(spec)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(torrentsBucket)
		sub, err := root.CreateBucketIfNotExists([]byte(id))
		if err != nil {
			return err
		}
		return sub.Put([]byte("spec"), data)
	})
}

// Read loads the Spec previously written under id.
func (s *Store) Read(id string) (*Spec, error) {
	var spec Spec
	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(torrentsBucket)
		sub := root.Bucket([]byte(id))
		if sub == nil {
			return ErrNotFound
		}
		data := sub.Get([]byte("spec"))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &spec)
	})
	if err != nil {
		return nil, err
	}
	return &spec, nil
}

// List returns every torrent id with persisted state, for session startup
// to re-add each one.
func (s *Store) List() ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(torrentsBucket)
		return root.ForEach(func(k, v []byte) error {
			if v == nil { // nil value marks a nested bucket, not a plain key
				ids = append(ids, string(k))
			}
			return nil
		})
	})
	return ids, err
}

// Delete removes a torrent's persisted state.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(torrentsBucket)
		if root.Bucket([]byte(id)) == nil {
			return nil
		}
		return root.DeleteBucket([]byte(id))
	})
}

// ErrNotFound is returned by Read when no spec is stored under id.
var ErrNotFound = bbolt.ErrBucketNotFound
