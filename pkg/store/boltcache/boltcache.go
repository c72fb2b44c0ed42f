// Package boltcache is a stale-account snapshot store for the trigger
// executor: one bbolt bucket per logical collection, JSON-encoded values, a
// narrow ErrNotFound sentinel. Stored snapshots survive a restart; the
// trigger preparer does not read or write them.
package boltcache

import (
	"encoding/json"
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketAccounts = []byte("accounts")
	bucketTCSIndex = []byte("tcs-index")

	// ErrNotFound is returned when a requested key has no stored snapshot.
	ErrNotFound = errors.New("boltcache: record not found")
)

// AccountSnapshot is the last-known state of an account's token/perp
// positions, as stored by PutAccount.
type AccountSnapshot struct {
	Address    string          `json:"address"`
	FetchedAt  time.Time       `json:"fetchedAt"`
	RawAccount json.RawMessage `json:"rawAccount"`
}

// TCSIndexEntry records which TCS indices on an account were last seen
// interesting, so a scheduler restart doesn't have to re-evaluate every
// index on every account from scratch.
type TCSIndexEntry struct {
	Address     string    `json:"address"`
	TCSIndex    int       `json:"tcsIndex"`
	Interesting bool      `json:"interesting"`
	CheckedAt   time.Time `json:"checkedAt"`
}

// Cache wraps a bbolt database with typed accessors for the two buckets the
// trigger executor needs.
type Cache struct {
	db *bolt.DB
}

// Open creates or opens the bbolt file at path, creating the buckets this
// package needs if they don't already exist.
func Open(path string, options *bolt.Options) (*Cache, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketAccounts, bucketTCSIndex} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Cache{db: db}, nil
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// GetAccount returns the stale snapshot for address, or ErrNotFound.
func (c *Cache) GetAccount(address string) (AccountSnapshot, error) {
	var snap AccountSnapshot
	err := c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketAccounts).Get([]byte(address))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &snap)
	})
	if err != nil {
		return AccountSnapshot{}, err
	}
	return snap, nil
}

// PutAccount overwrites the stale snapshot for the account the payload
// belongs to.
func (c *Cache) PutAccount(snap AccountSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccounts).Put([]byte(snap.Address), payload)
	})
}

// tcsKey joins address and TCS index into a single bucket key.
func tcsKey(address string, tcsIndex int) []byte {
	return []byte(address + ":" + itoa(tcsIndex))
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// GetTCSIndex returns the last-checked interestingness flag for one TCS slot.
func (c *Cache) GetTCSIndex(address string, tcsIndex int) (TCSIndexEntry, error) {
	var entry TCSIndexEntry
	err := c.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketTCSIndex).Get(tcsKey(address, tcsIndex))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &entry)
	})
	if err != nil {
		return TCSIndexEntry{}, err
	}
	return entry, nil
}

// PutTCSIndex records the interestingness flag for one TCS slot.
func (c *Cache) PutTCSIndex(entry TCSIndexEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTCSIndex).Put(tcsKey(entry.Address, entry.TCSIndex), payload)
	})
}
