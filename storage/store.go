// Package storage persists sale snapshots and the event journal in a bbolt
// database, so a restarted daemon picks up exactly where it stopped.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"

	"github.com/tokenforge/tokensale/crowdsale"
)

var (
	bucketSale   = []byte("sale")
	bucketEvents = []byte("events")

	keySnapshot = []byte("snapshot")
)

// Store wraps one bbolt database holding one sale.
type Store struct {
	db  *bbolt.DB
	log *logrus.Logger
}

// Open opens (or creates) the database at path and ensures the buckets exist.
func Open(path string, log *logrus.Logger) (*Store, error) {
	if log == nil {
		log = logrus.New()
	}
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSale); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketEvents)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}
	log.WithField("path", path).Info("Database opened")
	return &Store{db: db, log: log}, nil
}

// SaveSnapshot overwrites the stored sale snapshot.
func (s *Store) SaveSnapshot(snap crowdsale.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSale).Put(keySnapshot, raw)
	})
}

// LoadSnapshot returns the stored snapshot, or (nil, nil) if none was saved.
func (s *Store) LoadSnapshot() (*crowdsale.Snapshot, error) {
	var snap *crowdsale.Snapshot
	err := s.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketSale).Get(keySnapshot)
		if raw == nil {
			return nil
		}
		snap = new(crowdsale.Snapshot)
		return json.Unmarshal(raw, snap)
	})
	if err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return snap, nil
}

// AppendEvent adds one sale event to the journal under an increasing key.
func (s *Store) AppendEvent(event crowdsale.Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketEvents)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)
		return bucket.Put(key, raw)
	})
}

// Events returns the journal in append order.
func (s *Store) Events() ([]crowdsale.Event, error) {
	var events []crowdsale.Event
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEvents).ForEach(func(_, raw []byte) error {
			var event crowdsale.Event
			if err := json.Unmarshal(raw, &event); err != nil {
				return err
			}
			events = append(events, event)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
