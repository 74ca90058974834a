package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketFlash = []byte("flash")
	keyBlock    = []byte("segment_c")
	keyWear     = []byte("wear")
)

// Wear records how often the block has been erased.
type Wear struct {
	Erases     uint64    `json:"erases"`
	LastErased time.Time `json:"last_erased"`
}

// BoltFlash keeps the configuration block in a BoltDB file. A missing
// block reads as erased.
type BoltFlash struct {
	db *bolt.DB
}

// NewBoltFlash opens or creates a BoltDB database.
func NewBoltFlash(path string) (*BoltFlash, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketFlash)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltFlash{db: db}, nil
}

func erasedBlock() []byte {
	b := make([]byte, BlockSize)
	for i := range b {
		b[i] = erased
	}
	return b
}

func loadBlock(b *bolt.Bucket) ([]byte, error) {
	data := b.Get(keyBlock)
	if data == nil {
		return erasedBlock(), nil
	}
	if len(data) != BlockSize {
		return nil, fmt.Errorf("%d bytes: %w", len(data), ErrBlockSize)
	}
	// Bolt values are only valid for the life of the transaction.
	return append([]byte(nil), data...), nil
}

func (f *BoltFlash) Erase() error {
	return f.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFlash)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketFlash)
		}
		if err := b.Put(keyBlock, erasedBlock()); err != nil {
			return err
		}

		var w Wear
		if data := b.Get(keyWear); data != nil {
			if err := json.Unmarshal(data, &w); err != nil {
				return err
			}
		}
		w.Erases++
		w.LastErased = time.Now().UTC()
		data, err := json.Marshal(w)
		if err != nil {
			return err
		}
		return b.Put(keyWear, data)
	})
}

func (f *BoltFlash) Write(offset int, data []byte) error {
	if offset < 0 || offset+len(data) > BlockSize {
		return fmt.Errorf("write %d bytes at %d: %w", len(data), offset, ErrOutOfRange)
	}
	return f.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFlash)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketFlash)
		}
		block, err := loadBlock(b)
		if err != nil {
			return err
		}
		for i, v := range data {
			block[offset+i] &= v
		}
		return b.Put(keyBlock, block)
	})
}

func (f *BoltFlash) Read(offset int) (byte, error) {
	if offset < 0 || offset >= BlockSize {
		return 0, fmt.Errorf("read at %d: %w", offset, ErrOutOfRange)
	}
	var v byte
	err := f.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFlash)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketFlash)
		}
		block, err := loadBlock(b)
		if err != nil {
			return err
		}
		v = block[offset]
		return nil
	})
	return v, err
}

// Wear returns the erase statistics.
func (f *BoltFlash) Wear() (Wear, error) {
	var w Wear
	err := f.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFlash)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketFlash)
		}
		data := b.Get(keyWear)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &w)
	})
	return w, err
}

func (f *BoltFlash) Close() error {
	return f.db.Close()
}
