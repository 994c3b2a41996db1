// Package dedup collects id -> value associations seen while streaming a
// PBF file in an on-disk ordered store, so the number of distinct ids is
// not bounded by memory.
package dedup

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// DefaultBufferSize is the number of distinct keys held in memory before
// they are written to disk as one batch.
const DefaultBufferSize = 1_000_000

// Index maps int64 keys to byte values. A later Put for a key replaces the
// earlier value. It is written by one goroutine and read only after
// writing is done.
type Index struct {
	dir   string
	db    *leveldb.DB
	buf   map[int64][]byte
	limit int
	batch leveldb.Batch
}

// Open creates an empty index in a new directory under tempDir (the system
// temp dir when empty). Close removes it.
func Open(tempDir, name string, bufferSize int) (*Index, error) {
	if bufferSize < 1 {
		bufferSize = DefaultBufferSize
	}
	dir, err := os.MkdirTemp(tempDir, "osm-admin-"+name+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create %s index directory: %w", name, err)
	}

	db, err := leveldb.OpenFile(dir, &opt.Options{
		NoSync:       true,
		ErrorIfExist: false,
		WriteBuffer:  32 * opt.MiB,
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to open %s index: %w", name, err)
	}

	return &Index{
		dir:   dir,
		db:    db,
		buf:   make(map[int64][]byte),
		limit: bufferSize,
	}, nil
}

// encodeKey flips the sign bit so that byte order matches signed order.
func encodeKey(k int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(k)^(1<<63))
	return b[:]
}

func decodeKey(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b) ^ (1 << 63))
}

func (ix *Index) Put(key int64, value []byte) error {
	ix.buf[key] = value
	if len(ix.buf) >= ix.limit {
		return ix.Flush()
	}
	return nil
}

// Get returns the value for key, looking at unflushed entries first.
func (ix *Index) Get(key int64) ([]byte, bool, error) {
	if v, ok := ix.buf[key]; ok {
		return v, true, nil
	}
	v, err := ix.db.Get(encodeKey(key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("index lookup %d: %w", key, err)
	}
	return v, true, nil
}

// Flush writes buffered entries to disk.
func (ix *Index) Flush() error {
	if len(ix.buf) == 0 {
		return nil
	}
	ix.batch.Reset()
	for k, v := range ix.buf {
		ix.batch.Put(encodeKey(k), v)
	}
	if err := ix.db.Write(&ix.batch, nil); err != nil {
		return fmt.Errorf("index write: %w", err)
	}
	clear(ix.buf)
	return nil
}

// Range calls fn for every entry in ascending key order. The value slice is
// only valid for the duration of the call.
func (ix *Index) Range(fn func(key int64, value []byte) error) error {
	if err := ix.Flush(); err != nil {
		return err
	}
	it := ix.db.NewIterator(nil, nil)
	defer it.Release()
	for it.Next() {
		if err := fn(decodeKey(it.Key()), it.Value()); err != nil {
			return err
		}
	}
	return it.Error()
}

// Close closes the store and removes its directory.
func (ix *Index) Close() error {
	err := ix.db.Close()
	if rmErr := os.RemoveAll(ix.dir); err == nil {
		err = rmErr
	}
	return err
}
