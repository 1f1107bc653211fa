// Package state persists a summary of the most recent synchronization run
// so the next invocation can report when rules were last refreshed.
package state

import (
	"encoding/json"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/rr-block/internal/block/domain"
)

var (
	bucketRuns = []byte("runs")
	keyLastRun = []byte("last")
)

// Store records run summaries in a bbolt database.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

// LastRun returns the most recently recorded run, if any.
func (s *Store) LastRun() (domain.SyncReport, bool, error) {
	var (
		report domain.SyncReport
		found  bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		if b == nil {
			return nil
		}
		v := b.Get(keyLastRun)
		if v == nil {
			return nil
		}
		if err := json.Unmarshal(v, &report); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return domain.SyncReport{}, false, err
	}
	return report, found, nil
}

// RecordRun overwrites the stored last-run summary.
func (s *Store) RecordRun(report domain.SyncReport) error {
	buf, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRuns).Put(keyLastRun, buf)
	})
}
