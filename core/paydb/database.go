package paydb

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gofrs/flock"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Errors
var (
	ErrNotFound     = errors.New("paydb: not found")
	ErrClosed       = errors.New("paydb: closed")
	ErrDatadirUsed  = errors.New("paydb: datadir already used by another process")
	ErrUnknownDB    = errors.New("paydb: unknown database engine")
)

// Database is the key/value store the payment accessors are built on.
type Database interface {
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	NewBatch() Batch
	NewIterator(prefix []byte) Iterator
	Close() error
}

// Batch is a write-only set of changes committed atomically by Write.
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Write() error
	Reset()
}

// Iterator walks a key range in ascending key order. Key and Value are only
// valid until the next call to Next.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

// Open opens (or creates) the payment database under dir using the requested
// engine ("leveldb" or "pebble") and takes an exclusive lock on the datadir.
// The cache size is in megabytes.
func Open(dir, engine string, cache int) (Database, error) {
	lock := flock.New(filepath.Join(dir, "LOCK"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock datadir: %w", err)
	}
	if !locked {
		return nil, ErrDatadirUsed
	}
	var db Database
	switch engine {
	case "", "leveldb":
		db, err = newLevelDB(filepath.Join(dir, "payments"), cache)
	case "pebble":
		db, err = newPebbleDB(filepath.Join(dir, "payments"), cache)
	case "memory":
		db = NewMemoryDatabase()
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownDB, engine)
	}
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	log.Info("Opened payment database", "datadir", dir, "engine", db.(fmt.Stringer).String(), "cache", fmt.Sprintf("%dMiB", cache))
	return &lockedDatabase{Database: db, lock: lock}, nil
}

type lockedDatabase struct {
	Database
	lock *flock.Flock
}

func (db *lockedDatabase) Close() error {
	err := db.Database.Close()
	if lerr := db.lock.Unlock(); err == nil {
		err = lerr
	}
	return err
}

// leveldbDatabase wraps a goleveldb instance.
type leveldbDatabase struct {
	db *leveldb.DB
}

func newLevelDB(path string, cache int) (*leveldbDatabase, error) {
	if cache < 16 {
		cache = 16
	}
	db, err := leveldb.OpenFile(path, &opt.Options{
		BlockCacheCapacity: cache / 2 * opt.MiB,
		WriteBuffer:        cache / 4 * opt.MiB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb: %w", err)
	}
	return &leveldbDatabase{db: db}, nil
}

func (d *leveldbDatabase) String() string { return "leveldb" }

func (d *leveldbDatabase) Has(key []byte) (bool, error) {
	return d.db.Has(key, nil)
}

func (d *leveldbDatabase) Get(key []byte) ([]byte, error) {
	val, err := d.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return val, err
}

func (d *leveldbDatabase) Put(key, value []byte) error {
	return d.db.Put(key, value, nil)
}

func (d *leveldbDatabase) Delete(key []byte) error {
	return d.db.Delete(key, nil)
}

func (d *leveldbDatabase) NewBatch() Batch {
	return &leveldbBatch{db: d.db, b: new(leveldb.Batch)}
}

func (d *leveldbDatabase) NewIterator(prefix []byte) Iterator {
	return d.db.NewIterator(util.BytesPrefix(prefix), nil)
}

func (d *leveldbDatabase) Close() error {
	return d.db.Close()
}

type leveldbBatch struct {
	db *leveldb.DB
	b  *leveldb.Batch
}

func (b *leveldbBatch) Put(key, value []byte) error {
	b.b.Put(key, value)
	return nil
}

func (b *leveldbBatch) Delete(key []byte) error {
	b.b.Delete(key)
	return nil
}

func (b *leveldbBatch) Write() error {
	return b.db.Write(b.b, nil)
}

func (b *leveldbBatch) Reset() {
	b.b.Reset()
}

// pebbleDatabase wraps a pebble instance.
type pebbleDatabase struct {
	db    *pebble.DB
	cache *pebble.Cache
}

func newPebbleDB(path string, cache int) (*pebbleDatabase, error) {
	if cache < 16 {
		cache = 16
	}
	c := pebble.NewCache(int64(cache) * 1024 * 1024 / 2)
	db, err := pebble.Open(path, &pebble.Options{
		Cache:        c,
		MemTableSize: uint64(cache) * 1024 * 1024 / 4,
		Logger:       nil,
	})
	if err != nil {
		c.Unref()
		return nil, fmt.Errorf("failed to open pebble: %w", err)
	}
	return &pebbleDatabase{db: db, cache: c}, nil
}

func (d *pebbleDatabase) String() string { return "pebble" }

func (d *pebbleDatabase) Has(key []byte) (bool, error) {
	_, closer, err := d.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	return true, nil
}

func (d *pebbleDatabase) Get(key []byte) ([]byte, error) {
	val, closer, err := d.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ret := make([]byte, len(val))
	copy(ret, val)
	closer.Close()
	return ret, nil
}

func (d *pebbleDatabase) Put(key, value []byte) error {
	return d.db.Set(key, value, pebble.Sync)
}

func (d *pebbleDatabase) Delete(key []byte) error {
	return d.db.Delete(key, pebble.Sync)
}

func (d *pebbleDatabase) NewBatch() Batch {
	return &pebbleBatch{b: d.db.NewBatch()}
}

func (d *pebbleDatabase) NewIterator(prefix []byte) Iterator {
	iter, err := d.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return &pebbleIterator{err: err}
	}
	return &pebbleIterator{iter: iter}
}

func (d *pebbleDatabase) Close() error {
	err := d.db.Close()
	d.cache.Unref()
	return err
}

type pebbleBatch struct {
	b *pebble.Batch
}

func (b *pebbleBatch) Put(key, value []byte) error {
	return b.b.Set(key, value, nil)
}

func (b *pebbleBatch) Delete(key []byte) error {
	return b.b.Delete(key, nil)
}

func (b *pebbleBatch) Write() error {
	return b.b.Commit(pebble.Sync)
}

func (b *pebbleBatch) Reset() {
	b.b.Reset()
}

type pebbleIterator struct {
	iter  *pebble.Iterator
	moved bool
	err   error
}

func (it *pebbleIterator) Next() bool {
	if it.iter == nil {
		return false
	}
	if !it.moved {
		it.moved = true
		return it.iter.First()
	}
	return it.iter.Next()
}

func (it *pebbleIterator) Key() []byte {
	return it.iter.Key()
}

func (it *pebbleIterator) Value() []byte {
	return it.iter.Value()
}

func (it *pebbleIterator) Release() {
	if it.iter != nil {
		it.err = it.iter.Close()
		it.iter = nil
	}
}

func (it *pebbleIterator) Error() error {
	if it.iter != nil {
		return it.iter.Error()
	}
	return it.err
}

// upperBound returns the smallest key strictly greater than every key with
// the given prefix.
func upperBound(prefix []byte) []byte {
	var ub []byte
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] == 0xff {
			continue
		}
		ub = make([]byte, i+1)
		copy(ub, prefix)
		ub[i]++
		break
	}
	return ub
}

// memoryDatabase is an ephemeral map-backed store used in tests and by the
// "memory" engine.
type memoryDatabase struct {
	mu     sync.RWMutex
	kv     map[string][]byte
	closed bool
}

// NewMemoryDatabase creates an ephemeral in-memory database.
func NewMemoryDatabase() Database {
	return &memoryDatabase{kv: make(map[string][]byte)}
}

func (d *memoryDatabase) String() string { return "memory" }

func (d *memoryDatabase) Has(key []byte) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return false, ErrClosed
	}
	_, ok := d.kv[string(key)]
	return ok, nil
}

func (d *memoryDatabase) Get(key []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, ErrClosed
	}
	if val, ok := d.kv[string(key)]; ok {
		return append([]byte{}, val...), nil
	}
	return nil, ErrNotFound
}

func (d *memoryDatabase) Put(key, value []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	d.kv[string(key)] = append([]byte{}, value...)
	return nil
}

func (d *memoryDatabase) Delete(key []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	delete(d.kv, string(key))
	return nil
}

func (d *memoryDatabase) NewBatch() Batch {
	return &memoryBatch{db: d}
}

func (d *memoryDatabase) NewIterator(prefix []byte) Iterator {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var keys []string
	for key := range d.kv {
		if strings.HasPrefix(key, string(prefix)) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	values := make([][]byte, len(keys))
	for i, key := range keys {
		values[i] = append([]byte{}, d.kv[key]...)
	}
	return &memoryIterator{keys: keys, values: values, index: -1}
}

func (d *memoryDatabase) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	return nil
}

type memoryBatch struct {
	db     *memoryDatabase
	writes []memoryWrite
}

type memoryWrite struct {
	key    string
	value  []byte
	delete bool
}

func (b *memoryBatch) Put(key, value []byte) error {
	b.writes = append(b.writes, memoryWrite{key: string(key), value: append([]byte{}, value...)})
	return nil
}

func (b *memoryBatch) Delete(key []byte) error {
	b.writes = append(b.writes, memoryWrite{key: string(key), delete: true})
	return nil
}

func (b *memoryBatch) Write() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()

	if b.db.closed {
		return ErrClosed
	}
	for _, w := range b.writes {
		if w.delete {
			delete(b.db.kv, w.key)
		} else {
			b.db.kv[w.key] = w.value
		}
	}
	return nil
}

func (b *memoryBatch) Reset() {
	b.writes = b.writes[:0]
}

type memoryIterator struct {
	keys   []string
	values [][]byte
	index  int
}

func (it *memoryIterator) Next() bool {
	it.index++
	return it.index < len(it.keys)
}

func (it *memoryIterator) Key() []byte {
	return []byte(it.keys[it.index])
}

func (it *memoryIterator) Value() []byte {
	return it.values[it.index]
}

func (it *memoryIterator) Release() {}

func (it *memoryIterator) Error() error { return nil }
