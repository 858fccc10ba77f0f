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

	"github.com/samvad-hq/samvad-article-pipeline/internal/health"
	bolt "go.etcd.io/bbolt"
)

const (
	articleBucket    = "articles"
	healthBucket     = "source_health"
	expiryValueBytes = 8
)

// boltStore keeps the seen-article history and source health in one bbolt
// file. Article keys map to a big-endian unix expiry; health keys map to a
// JSON-encoded health.Record.
type boltStore struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time

	sweepEvery time.Duration
	sweepMu    sync.Mutex
	lastSweep  atomic.Int64
}

func openBolt(path string, opts Options) (*boltStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{articleBucket, healthBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	s := &boltStore{db: db, ttl: opts.ArticleTTL, sweepEvery: opts.CleanupInterval, now: time.Now}
	s.lastSweep.Store(s.now().Unix())
	return s, nil
}

func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// SeenArticle reports whether id was marked within the TTL. Lookups run in a
// read transaction; an expired entry is removed in a separate write.
func (b *boltStore) SeenArticle(id string) (bool, error) {
	now := b.now()
	if err := b.sweep(now); err != nil {
		return false, err
	}

	key := []byte(id)
	var seen, expired bool
	err := b.view(articleBucket, func(bucket *bolt.Bucket) error {
		raw := bucket.Get(key)
		if raw == nil {
			return nil
		}
		seen = live(raw, now)
		expired = !seen
		return nil
	})
	if err != nil || !expired {
		return seen, err
	}

	// A concurrent MarkArticle may have refreshed the entry since the read.
	err = b.update(articleBucket, func(bucket *bolt.Bucket) error {
		if raw := bucket.Get(key); raw != nil && !live(raw, now) {
			return bucket.Delete(key)
		}
		return nil
	})
	return false, err
}

// MarkArticle records id as seen until now+TTL.
func (b *boltStore) MarkArticle(id string) error {
	now := b.now()
	if err := b.sweep(now); err != nil {
		return err
	}
	expiry := make([]byte, expiryValueBytes)
	binary.BigEndian.PutUint64(expiry, uint64(now.Add(b.ttl).Unix()))
	return b.update(articleBucket, func(bucket *bolt.Bucket) error {
		return bucket.Put([]byte(id), expiry)
	})
}

func (b *boltStore) LoadHealth(source string) (health.Record, bool, error) {
	var (
		rec   health.Record
		found bool
	)
	err := b.view(healthBucket, func(bucket *bolt.Bucket) error {
		raw := bucket.Get([]byte(source))
		if raw == nil {
			return nil
		}
		found = true
		return decodeRecord(source, raw, &rec)
	})
	return rec, found, err
}

func (b *boltStore) SaveHealth(source string, rec health.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode health record %q: %w", source, err)
	}
	return b.update(healthBucket, func(bucket *bolt.Bucket) error {
		return bucket.Put([]byte(source), raw)
	})
}

func (b *boltStore) ListHealth() (map[string]health.Record, error) {
	out := make(map[string]health.Record)
	err := b.view(healthBucket, func(bucket *bolt.Bucket) error {
		return bucket.ForEach(func(k, v []byte) error {
			var rec health.Record
			if err := decodeRecord(string(k), v, &rec); err != nil {
				return err
			}
			out[string(k)] = rec
			return nil
		})
	})
	return out, err
}

// sweep drops expired article entries at most once per sweep interval.
func (b *boltStore) sweep(now time.Time) error {
	due := func() bool {
		return now.Sub(time.Unix(b.lastSweep.Load(), 0)) >= b.sweepEvery
	}
	if !due() {
		return nil
	}
	b.sweepMu.Lock()
	defer b.sweepMu.Unlock()
	if !due() {
		return nil
	}

	err := b.update(articleBucket, func(bucket *bolt.Bucket) error {
		var expired [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			if !live(v, now) {
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
		b.lastSweep.Store(now.Unix())
	}
	return err
}

func (b *boltStore) view(name string, fn func(*bolt.Bucket) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(name))
		if bucket == nil {
			return fmt.Errorf("%s bucket missing", name)
		}
		return fn(bucket)
	})
}

func (b *boltStore) update(name string, fn func(*bolt.Bucket) error) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(name))
		if bucket == nil {
			return fmt.Errorf("%s bucket missing", name)
		}
		return fn(bucket)
	})
}

func decodeRecord(source string, raw []byte, rec *health.Record) error {
	if err := json.Unmarshal(raw, rec); err != nil {
		return fmt.Errorf("decode health record %q: %w", source, err)
	}
	return nil
}

// live reports whether a stored expiry is still in the future. Malformed
// values count as expired.
func live(value []byte, now time.Time) bool {
	if len(value) != expiryValueBytes {
		return false
	}
	unix := int64(binary.BigEndian.Uint64(value))
	return unix > 0 && time.Unix(unix, 0).After(now)
}
