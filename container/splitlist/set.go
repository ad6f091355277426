/*
Package splitlist implements the split-ordered hash set of spec.md §4.J:
an extensible lock-free hash table layered over an ordered list (Michael
or Lazy), using reverse-bit key ordering so that a bucket split is a
single dummy-node insertion rather than a rehash.

Composite keys follow the classic Shalev & Shavit construction: a data
node's key is reverseBits(hash | topBit), a bucket's dummy key is
reverseBits(bucket). Setting the top bit before reversing a data key
forces its reversed low bit to 1, while an un-set-topped bucket index
below the current table size always reverses to an even number — this
is the same even/odd "marker" spec.md §4.J describes, produced
structurally instead of as a separate stored field.

The backing ordered list is chosen at construction (Michael's list by
default, or the lazy lock-coupled list); both satisfy backingHandle, so
the bucket/resize logic here never needs to know which one it is
driving.
*/
package splitlist

import (
	"math/bits"
	"sync/atomic"

	"github.com/khizmax/libcds-sub011/container/lazy"
	"github.com/khizmax/libcds-sub011/container/michael"
)

// HashFunc computes a 64-bit hash for a key. Two distinct keys that
// collide under HashFunc are treated as the same bucket entry; callers
// needing full chaining on hash collisions should pick a wide enough
// hash (e.g. a 64-bit fingerprint) that collisions among keys actually
// inserted are not expected. Resolving arbitrary hash collisions via
// intra-bucket chaining is a non-goal.
type HashFunc[K any] func(key K) uint64

type entry[K any, V any] struct {
	key K
	val V
}

const topBit uint64 = 1 << 63

func reverseBits(x uint64) uint64 { return bits.Reverse64(x) }

func regularKey(hash uint64) uint64 { return reverseBits(hash | topBit) }

func dummyKey(bucket uint64) uint64 { return reverseBits(bucket) }

func msb(x uint64) uint64 {
	if x == 0 {
		return 0
	}
	return uint64(1) << (bits.Len64(x) - 1)
}

// nextPowerOfTwo rounds n up to the nearest power of two, so the bucket
// mask (bucketCount-1) always selects contiguous low bits regardless of
// what InitialBuckets the caller asked for.
func nextPowerOfTwo(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	return uint64(1) << bits.Len64(n-1)
}

// Config configures a Set.
type Config struct {
	InitialBuckets int
	LoadFactor     float64
	DynamicTable   bool
	UseLazy        bool
	MichaelOpts    []michael.Option
	LazyOpts       []lazy.Option
}

// Option adjusts a Config.
type Option func(*Config)

func InitialBuckets(n int) Option { return func(c *Config) { c.InitialBuckets = n } }
func LoadFactor(f float64) Option { return func(c *Config) { c.LoadFactor = f } }
func DynamicTable(b bool) Option  { return func(c *Config) { c.DynamicTable = b } }
func UseLazyList(b bool) Option   { return func(c *Config) { c.UseLazy = b } }

func defaultConfig() Config {
	return Config{
		InitialBuckets: 16,
		LoadFactor:     1.0,
		DynamicTable:   true,
	}
}

// Set is a split-ordered hash set mapping keys of type K to values of
// type V.
type Set[K comparable, V any] struct {
	hash        HashFunc[K]
	cfg         Config
	bucketCount atomic.Uint64
	size        atomic.Int64
	backing     backingList[entry[K, V]]
}

// New creates an empty Set using hash to derive ordered-list keys.
func New[K comparable, V any](hash HashFunc[K], opts ...Option) *Set[K, V] {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.InitialBuckets < 1 {
		cfg.InitialBuckets = 1
	}
	s := &Set[K, V]{hash: hash, cfg: cfg}
	s.bucketCount.Store(nextPowerOfTwo(uint64(cfg.InitialBuckets)))
	if cfg.UseLazy {
		s.backing = lazyBacking[entry[K, V]]{l: lazy.New[uint64, entry[K, V]](cfg.LazyOpts...)}
	} else {
		s.backing = michaelBacking[entry[K, V]]{l: michael.New[uint64, entry[K, V]](cfg.MichaelOpts...)}
	}
	return s
}

// Handle is a single thread's attachment to a Set.
type Handle[K comparable, V any] struct {
	s  *Set[K, V]
	bh backingHandle[entry[K, V]]
}

// Attach allocates a Handle for the calling thread and ensures bucket 0
// (the list's permanent root dummy) exists.
func (s *Set[K, V]) Attach() (*Handle[K, V], error) {
	bh, err := s.backing.Attach()
	if err != nil {
		return nil, err
	}
	h := &Handle[K, V]{s: s, bh: bh}
	if _, err := bh.Insert(dummyKey(0), entry[K, V]{}); err != nil {
		return nil, err
	}
	return h, nil
}

// BucketCount returns the set's current logical bucket count.
func (s *Set[K, V]) BucketCount() int { return int(s.bucketCount.Load()) }

// Size returns the approximate number of elements in the set.
func (s *Set[K, V]) Size() int { return int(s.size.Load()) }

// Empty reports whether the set holds no elements.
func (s *Set[K, V]) Empty() bool { return s.size.Load() == 0 }

// ensureBucket guarantees a dummy node exists for bucket, recursing on
// the parent bucket first per spec.md §4.J's dynamic bucket table rule.
func (h *Handle[K, V]) ensureBucket(bucket uint64) error {
	if bucket == 0 {
		return nil // the root dummy is created in Attach
	}
	parent := bucket &^ msb(bucket)
	if err := h.ensureBucket(parent); err != nil {
		return err
	}
	_, err := h.bh.Insert(dummyKey(bucket), entry[K, V]{})
	return err
}

func (h *Handle[K, V]) bucketFor(hash uint64) uint64 {
	return hash & (h.s.bucketCount.Load() - 1)
}

func (h *Handle[K, V]) maybeResize() {
	if !h.s.cfg.DynamicTable {
		return
	}
	for {
		count := h.s.bucketCount.Load()
		if float64(h.s.size.Load()) <= h.s.cfg.LoadFactor*float64(count) {
			return
		}
		if h.s.bucketCount.CompareAndSwap(count, count*2) {
			return
		}
	}
}

// Insert adds key/val if key is not already present.
func (h *Handle[K, V]) Insert(key K, val V) (bool, error) {
	hv := h.s.hash(key)
	if err := h.ensureBucket(h.bucketFor(hv)); err != nil {
		return false, err
	}
	ok, err := h.bh.Insert(regularKey(hv), entry[K, V]{key: key, val: val})
	if err != nil || !ok {
		return ok, err
	}
	h.s.size.Add(1)
	h.maybeResize()
	return true, nil
}

// Erase removes key if present.
func (h *Handle[K, V]) Erase(key K) (bool, error) {
	hv := h.s.hash(key)
	ok, err := h.bh.Erase(regularKey(hv))
	if err != nil || !ok {
		return ok, err
	}
	h.s.size.Add(-1)
	return true, nil
}

// Find calls fn with key's value and reports whether key is present.
func (h *Handle[K, V]) Find(key K, fn func(val V)) (bool, error) {
	hv := h.s.hash(key)
	return h.bh.Find(regularKey(hv), func(e entry[K, V]) { fn(e.val) })
}

// Contains reports whether key is present.
func (h *Handle[K, V]) Contains(key K) (bool, error) {
	hv := h.s.hash(key)
	return h.bh.Contains(regularKey(hv))
}

// Detach releases the handle's SMR resources.
func (h *Handle[K, V]) Detach() { h.bh.Detach() }
