package splitlist

import (
	"github.com/khizmax/libcds-sub011/container/lazy"
	"github.com/khizmax/libcds-sub011/container/michael"
)

// backingHandle is the slice of container/michael.Handle and
// container/lazy.Handle that the split-list needs. Both already satisfy
// it structurally; the wrapper types below only exist to box their
// concrete Attach return values into this common interface, the same
// covariance workaround internal/guard uses for SMR handles.
type backingHandle[V any] interface {
	Insert(key uint64, val V) (bool, error)
	Erase(key uint64) (bool, error)
	Find(key uint64, fn func(val V)) (bool, error)
	Contains(key uint64) (bool, error)
	Detach()
}

type backingList[V any] interface {
	Attach() (backingHandle[V], error)
}

type michaelBacking[V any] struct {
	l *michael.List[uint64, V]
}

func (b michaelBacking[V]) Attach() (backingHandle[V], error) {
	h, err := b.l.Attach()
	if err != nil {
		return nil, err
	}
	return h, nil
}

type lazyBacking[V any] struct {
	l *lazy.List[uint64, V]
}

func (b lazyBacking[V]) Attach() (backingHandle[V], error) {
	h, err := b.l.Attach()
	if err != nil {
		return nil, err
	}
	return h, nil
}
