package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	failureBucket = "failures"
	timeKeyBytes  = 8
)

// boltStore implements a Store backed by BoltDB.
// Keys are big-endian UnixNano timestamps so cursor order is time order.
type boltStore struct {
	db              *bolt.DB
	cleanupMu       sync.Mutex
	lastCleanup     atomic.Int64
	failureTTL      time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
}

// record is the stored form of a Failure.
type record struct {
	Failure
	ExpiresAt int64 `json:"expires_at"`
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string, opts Options) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(failureBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}

	store := &boltStore{
		db:              db,
		failureTTL:      opts.FailureTTL,
		cleanupInterval: opts.CleanupInterval,
		now:             time.Now,
	}
	store.lastCleanup.Store(store.now().Unix())
	return store, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// RecordFailure appends f to the journal. A zero f.At is stamped with the current time.
func (b *boltStore) RecordFailure(f Failure) error {
	if b == nil || b.db == nil {
		return nil
	}

	now := b.now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return err
	}
	if f.At.IsZero() {
		f.At = now
	}

	value, err := json.Marshal(record{Failure: f, ExpiresAt: now.Add(b.failureTTL).Unix()})
	if err != nil {
		return fmt.Errorf("encode failure: %w", err)
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(failureBucket))
		if bucket == nil {
			return fmt.Errorf("failure bucket missing")
		}
		nano := f.At.UnixNano()
		// Same-nanosecond failures are shifted forward so none is overwritten.
		for bucket.Get(encodeTimeKey(nano)) != nil {
			nano++
		}
		return bucket.Put(encodeTimeKey(nano), value)
	})
}

// RecentFailures returns up to limit unexpired failures, newest first.
// A non-positive limit returns all of them.
func (b *boltStore) RecentFailures(limit int) ([]Failure, error) {
	if b == nil || b.db == nil {
		return nil, nil
	}

	now := b.now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return nil, err
	}

	var out []Failure
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(failureBucket))
		if bucket == nil {
			return fmt.Errorf("failure bucket missing")
		}

		cursor := bucket.Cursor()
		for k, v := cursor.Last(); k != nil; k, v = cursor.Prev() {
			rec, ok := decodeRecord(v)
			if !ok || rec.ExpiresAt <= now.Unix() {
				continue
			}
			out = append(out, rec.Failure)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}

// maybeCleanupExpired removes expired failures on a fixed cadence to avoid unbounded growth.
func (b *boltStore) maybeCleanupExpired(now time.Time) error {
	if b == nil || b.db == nil {
		return nil
	}

	last := time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	b.cleanupMu.Lock()
	defer b.cleanupMu.Unlock()

	last = time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(failureBucket))
		if bucket == nil {
			return fmt.Errorf("failure bucket missing")
		}

		var expired [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			rec, ok := decodeRecord(v)
			if !ok || rec.ExpiresAt <= now.Unix() {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		b.lastCleanup.Store(now.Unix())
	}
	return err
}

func encodeTimeKey(nano int64) []byte {
	buf := make([]byte, timeKeyBytes)
	binary.BigEndian.PutUint64(buf, uint64(nano))
	return buf
}

// decodeRecord decodes a stored failure record.
func decodeRecord(value []byte) (record, bool) {
	var rec record
	if err := json.Unmarshal(value, &rec); err != nil || rec.ExpiresAt <= 0 {
		return record{}, false
	}
	return rec, true
}
