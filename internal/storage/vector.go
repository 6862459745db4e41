package storage

import "encoding/binary"

// Vector is a growable, persistent, random-access sequence of
// fixed-size elements built directly on an Extent (§4.4). It tracks
// its own element count separately from the extent's byte length so
// that pages(len) = ceil(len*elemSize/PageSize) exactly as spec.md §3
// defines.
type Vector struct {
	Ext  Extent
	Len  uint64
	Elem int
}

// NewVector returns an empty vector of fixed-size elements.
func NewVector(elemSize int) Vector {
	return Vector{Elem: elemSize}
}

func (v *Vector) byteOffset(idx uint64) int64 { return int64(idx) * int64(v.Elem) }

// Get reads the element at idx into out, which must be len(Elem).
func (v *Vector) Get(tx *Txn, idx uint64, out []byte) error {
	return readExtent(tx, v.Ext, v.byteOffset(idx), out)
}

// Set overwrites the element at idx, which must already be within
// [0, Len). Use Push/Resize/Append to grow the vector.
func (v *Vector) Set(tx *Txn, idx uint64, val []byte) error {
	return writeExtent(tx, &v.Ext, v.byteOffset(idx), val)
}

// Push appends one element.
func (v *Vector) Push(tx *Txn, val []byte) error {
	if err := writeExtent(tx, &v.Ext, v.byteOffset(v.Len), val); err != nil {
		return err
	}
	v.Len++
	return nil
}

// Pop removes and optionally returns the last element.
func (v *Vector) Pop(tx *Txn, out []byte) (bool, error) {
	if v.Len == 0 {
		return false, nil
	}
	idx := v.Len - 1
	if out != nil {
		if err := v.Get(tx, idx, out); err != nil {
			return false, err
		}
	}
	v.Len--
	if err := shrinkExtent(tx, &v.Ext, uint64(v.byteOffset(v.Len))); err != nil {
		return false, err
	}
	return true, nil
}

// Resize grows or shrinks the vector to newLen elements, filling any
// newly created elements with fill (which must be len(Elem), or nil
// to zero-fill).
func (v *Vector) Resize(tx *Txn, newLen uint64, fill []byte) error {
	if newLen == v.Len {
		return nil
	}
	if newLen < v.Len {
		if err := shrinkExtent(tx, &v.Ext, uint64(v.byteOffset(newLen))); err != nil {
			return err
		}
		v.Len = newLen
		return nil
	}
	if fill == nil {
		fill = make([]byte, v.Elem)
	}
	for i := v.Len; i < newLen; i++ {
		if err := v.Set(tx, i, fill); err != nil {
			return err
		}
	}
	v.Len = newLen
	return nil
}

// Append writes a run of whole elements (len(data) must be a multiple
// of Elem) starting right after the current end.
func (v *Vector) Append(tx *Txn, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	n := uint64(len(data)) / uint64(v.Elem)
	if err := writeExtent(tx, &v.Ext, v.byteOffset(v.Len), data); err != nil {
		return err
	}
	v.Len += n
	return nil
}

// Drop truncates the vector to zero length, releasing every page it
// holds. Callers must skip this during database close (§4.4: "drop
// truncates to zero unless the database is in closing state") so a
// clean shutdown doesn't spend a final transaction freeing pages the
// process is about to stop caring about.
func (v *Vector) Drop(tx *Txn) error {
	if err := freeExtent(tx, &v.Ext); err != nil {
		return err
	}
	v.Len = 0
	return nil
}

// Uint32Vector is a Vector specialized for PageNum/uint32 elements,
// used by the free list (§4.2) and anywhere else a plain page-number
// array is needed.
type Uint32Vector struct {
	Vector
}

func NewUint32Vector() Uint32Vector {
	return Uint32Vector{NewVector(4)}
}

func (v *Uint32Vector) GetUint32(tx *Txn, idx uint64) (uint32, error) {
	var b [4]byte
	if err := v.Get(tx, idx, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (v *Uint32Vector) SetUint32(tx *Txn, idx uint64, val uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], val)
	return v.Set(tx, idx, b[:])
}

func (v *Uint32Vector) PushUint32(tx *Txn, val uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], val)
	return v.Push(tx, b[:])
}
