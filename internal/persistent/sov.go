// Package persistent defines the world object's on-disk layout: the
// struct-of-vectors collections for NPCs, PCs, and players, the
// player id index, and the heightmap, all built directly on the
// storage package's Vector/Tree primitives (§6 "Persisted layout").
package persistent

import "github.com/wosim-go/wosim/internal/storage"

// SoV is a parallel-arrays collection keyed by a stable uint32 id with
// O(1) insert, O(1) remove-by-id via swap-remove, and O(1) id→index
// lookup — the concrete shape behind what the original "struct of
// vectors" derive macros produced (§9 Redesign Flags: implemented
// directly, no macro-equivalent).
type SoV[T any] struct {
	vec      storage.Vector
	index    map[uint32]uint64
	elemSize int
	idOf     func(T) uint32
	encode   func(T, []byte)
	decode   func([]byte) T
}

// NewSoV returns an empty collection. encode/decode must round-trip
// exactly elemSize bytes.
func NewSoV[T any](elemSize int, idOf func(T) uint32, encode func(T, []byte), decode func([]byte) T) *SoV[T] {
	return &SoV[T]{
		vec:      storage.NewVector(elemSize),
		index:    make(map[uint32]uint64),
		elemSize: elemSize,
		idOf:     idOf,
		encode:   encode,
		decode:   decode,
	}
}

// Len returns the number of live entries.
func (s *SoV[T]) Len() uint64 { return s.vec.Len }

// Get looks up an entry by id.
func (s *SoV[T]) Get(tx *storage.Txn, id uint32) (T, bool, error) {
	var zero T
	idx, ok := s.index[id]
	if !ok {
		return zero, false, nil
	}
	buf := make([]byte, s.elemSize)
	if err := s.vec.Get(tx, idx, buf); err != nil {
		return zero, false, err
	}
	return s.decode(buf), true, nil
}

// Insert appends v, indexing it by idOf(v). Inserting an id already
// present overwrites that entry's slot in place.
func (s *SoV[T]) Insert(tx *storage.Txn, v T) error {
	id := s.idOf(v)
	buf := make([]byte, s.elemSize)
	s.encode(v, buf)

	if idx, ok := s.index[id]; ok {
		return s.vec.Set(tx, idx, buf)
	}
	idx := s.vec.Len
	if err := s.vec.Push(tx, buf); err != nil {
		return err
	}
	s.index[id] = idx
	return nil
}

// Remove deletes the entry for id, moving the last entry into its slot
// (swap-remove) so every other id's index stays valid in O(1).
func (s *SoV[T]) Remove(tx *storage.Txn, id uint32) (bool, error) {
	idx, ok := s.index[id]
	if !ok {
		return false, nil
	}
	lastIdx := s.vec.Len - 1
	if idx != lastIdx {
		buf := make([]byte, s.elemSize)
		if err := s.vec.Get(tx, lastIdx, buf); err != nil {
			return false, err
		}
		if err := s.vec.Set(tx, idx, buf); err != nil {
			return false, err
		}
		s.index[s.idOf(s.decode(buf))] = idx
	}
	if _, err := s.vec.Pop(tx, nil); err != nil {
		return false, err
	}
	delete(s.index, id)
	return true, nil
}

// Each calls fn for every live entry in storage order (not id order);
// iteration stops early if fn returns false.
func (s *SoV[T]) Each(tx *storage.Txn, fn func(T) bool) error {
	buf := make([]byte, s.elemSize)
	for i := uint64(0); i < s.vec.Len; i++ {
		if err := s.vec.Get(tx, i, buf); err != nil {
			return err
		}
		if !fn(s.decode(buf)) {
			return nil
		}
	}
	return nil
}

// rebuildIndex is used after loading vec from disk, since the id→index
// map itself is never persisted (§9: it is cheap to rebuild and
// keeping it out of the file avoids a second, redundant Tree).
func (s *SoV[T]) rebuildIndex(tx *storage.Txn) error {
	s.index = make(map[uint32]uint64)
	buf := make([]byte, s.elemSize)
	for i := uint64(0); i < s.vec.Len; i++ {
		if err := s.vec.Get(tx, i, buf); err != nil {
			return err
		}
		s.index[s.idOf(s.decode(buf))] = i
	}
	return nil
}
