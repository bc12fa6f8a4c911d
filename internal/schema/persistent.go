package schema

import (
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/buntdb"
	"github.com/vmihailenco/msgpack/v5"
)

const persistentPrefix = "schema:"

// PersistentCache is a key-value store with per-key TTL backing the
// in-memory schema cache across restarts.
type PersistentCache interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	DeletePrefix(prefix string) error
	Close() error
}

// BuntCache is a PersistentCache on a buntdb file. Use ":memory:" for a
// process-local store.
type BuntCache struct {
	db   *buntdb.DB
	once sync.Once
}

// OpenBuntCache opens or creates the cache file at path.
func OpenBuntCache(path string) (*BuntCache, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open schema cache %s", path)
	}
	var cfg buntdb.Config
	if err := db.ReadConfig(&cfg); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "read schema cache config")
	}
	cfg.SyncPolicy = buntdb.EverySecond
	if err := db.SetConfig(cfg); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "set schema cache config")
	}
	return &BuntCache{db: db}, nil
}

func (c *BuntCache) Get(key string) ([]byte, bool, error) {
	var value string
	var found bool
	err := c.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		if err != nil {
			if errors.Is(err, buntdb.ErrNotFound) {
				return nil
			}
			return err
		}
		value = v
		found = true
		return nil
	})
	if err != nil {
		return nil, false, errors.Wrapf(err, "get %s", key)
	}
	return []byte(value), found, nil
}

func (c *BuntCache) Set(key string, value []byte, ttl time.Duration) error {
	return c.db.Update(func(tx *buntdb.Tx) error {
		var opts *buntdb.SetOptions
		if ttl > 0 {
			opts = &buntdb.SetOptions{Expires: true, TTL: ttl}
		}
		_, _, err := tx.Set(key, string(value), opts)
		return err
	})
}

func (c *BuntCache) Delete(key string) error {
	return c.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Delete(key); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
		return nil
	})
}

func (c *BuntCache) DeletePrefix(prefix string) error {
	return c.db.Update(func(tx *buntdb.Tx) error {
		var keys []string
		err := tx.AscendKeys(prefix+"*", func(key, _ string) bool {
			keys = append(keys, key)
			return true
		})
		if err != nil {
			return err
		}
		for _, key := range keys {
			if _, err := tx.Delete(key); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
		}
		return nil
	})
}

// Keys lists the cached schema keys (model@connection) starting with prefix.
func (c *BuntCache) Keys(prefix string) ([]string, error) {
	var keys []string
	err := c.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(persistentPrefix+prefix+"*", func(key, _ string) bool {
			keys = append(keys, strings.TrimPrefix(key, persistentPrefix))
			return true
		})
	})
	return keys, err
}

func (c *BuntCache) Close() error {
	var err error
	c.once.Do(func() {
		c.db.Shrink()
		err = c.db.Close()
	})
	return err
}

// envelope is the persisted form of a normalized schema.
type envelope struct {
	Model      string    `msgpack:"model"`
	Connection string    `msgpack:"connection"`
	Source     string    `msgpack:"source"`
	Hash       string    `msgpack:"hash"`
	StoredAt   time.Time `msgpack:"stored_at"`
	Payload    []byte    `msgpack:"payload"`
}

func encodeEnvelope(e envelope) ([]byte, error) {
	return msgpack.Marshal(&e)
}

func decodeEnvelope(data []byte) (envelope, error) {
	var e envelope
	err := msgpack.Unmarshal(data, &e)
	return e, err
}
