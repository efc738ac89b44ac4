package host

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var settingsBucket = []byte("settings")

// Bolt is the secondary synchronized settings store: raw byte values in
// a single bbolt bucket. Value encoding is the caller's concern.
type Bolt struct {
	db *bolt.DB

	mu      sync.Mutex
	commits []func(oldValues, newValues map[string][]byte)
}

// OpenBolt opens (or creates) the bolt database file in dataDir.
func OpenBolt(dataDir string) (*Bolt, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	path := filepath.Join(dataDir, "settings.bolt")

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt database: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(settingsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating settings bucket: %w", err)
	}

	return &Bolt{db: db}, nil
}

// Close closes the underlying database.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// Load returns the stored bytes for keys. Never-written keys are absent
// from the result.
func (b *Bolt) Load(keys []string) (map[string][]byte, error) {
	items := make(map[string][]byte, len(keys))
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(settingsBucket)
		for _, key := range keys {
			if v := bkt.Get([]byte(key)); v != nil {
				// Copy out of the mmap'd page before the tx ends.
				items[key] = append([]byte(nil), v...)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	return items, nil
}

// Save writes all items in one transaction and notifies commit hooks
// afterwards.
func (b *Bolt) Save(items map[string][]byte) error {
	oldValues := make(map[string][]byte)
	newValues := make(map[string][]byte, len(items))
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(settingsBucket)
		for key, val := range items {
			if prev := bkt.Get([]byte(key)); prev != nil {
				oldValues[key] = append([]byte(nil), prev...)
			}
			if err := bkt.Put([]byte(key), val); err != nil {
				return fmt.Errorf("writing %q: %w", key, err)
			}
			newValues[key] = append([]byte(nil), val...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}

	b.notify(oldValues, newValues)
	return nil
}

// OnCommit registers fn to run after every write committed through this
// process.
func (b *Bolt) OnCommit(fn func(oldValues, newValues map[string][]byte)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.commits = append(b.commits, fn)
}

func (b *Bolt) notify(oldValues, newValues map[string][]byte) {
	b.mu.Lock()
	commits := slices.Clone(b.commits)
	b.mu.Unlock()
	for _, fn := range commits {
		fn(oldValues, newValues)
	}
}
