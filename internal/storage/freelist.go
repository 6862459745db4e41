package storage

import "encoding/binary"

// freeListTxn is a working copy of one generation's free list: a plain
// page-number array (an Extent addressed exactly like a Uint32Vector)
// windowed by [front, back). Entries at index < front have already been
// popped and are garbage; entries at index >= back have never been
// written. popFront/popBack only move the window; the backing pages
// they leave behind are reclaimed lazily the next time the list is
// rebuilt from a fresh, empty state (§4.2).
type freeListTxn struct {
	ext   Extent
	front uint32
	back  uint32
}

func loadFreeList(s freeListState) freeListTxn {
	return freeListTxn{
		ext:   Extent{Root: s.Root, Len: uint64(s.Back) * 4},
		front: s.Front,
		back:  s.Back,
	}
}

func (fl *freeListTxn) state() freeListState {
	return freeListState{Root: fl.ext.Root, Front: fl.front, Back: fl.back}
}

func (fl *freeListTxn) empty() bool { return fl.front >= fl.back }

func (fl *freeListTxn) getAt(tx *Txn, idx uint32) (PageNum, error) {
	var b [4]byte
	if err := readExtent(tx, fl.ext, int64(idx)*4, b[:]); err != nil {
		return 0, err
	}
	return PageNum(binary.LittleEndian.Uint32(b[:])), nil
}

func (fl *freeListTxn) setAt(tx *Txn, idx uint32, pn PageNum) error {
	need := uint64(idx+1) * 4
	if need > fl.ext.Len {
		if err := growExtent(tx, &fl.ext, need); err != nil {
			return err
		}
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(pn))
	return writeExtent(tx, &fl.ext, int64(idx)*4, b[:])
}

// popFront removes and returns the oldest entry in the window.
func (fl *freeListTxn) popFront(tx *Txn) (PageNum, bool, error) {
	if fl.empty() {
		return 0, false, nil
	}
	pn, err := fl.getAt(tx, fl.front)
	if err != nil {
		return 0, false, err
	}
	fl.front++
	return pn, true, nil
}

// popBack removes and returns the newest entry in the window.
func (fl *freeListTxn) popBack(tx *Txn) (PageNum, bool, error) {
	if fl.empty() {
		return 0, false, nil
	}
	fl.back--
	pn, err := fl.getAt(tx, fl.back)
	if err != nil {
		return 0, false, err
	}
	return pn, true, nil
}

// pushBack appends pn as the newest entry, growing the backing extent
// if the window has reached its high-water mark.
func (fl *freeListTxn) pushBack(tx *Txn, pn PageNum) error {
	if err := fl.setAt(tx, fl.back, pn); err != nil {
		return err
	}
	fl.back++
	return nil
}

// pushFront makes pn the newest reusable entry without being able to
// decrement front below zero: it shifts the whole window one slot to
// the right (front++, back++) and writes pn into the slot the shift
// just brought into the window, evicting whatever entry used to sit at
// the old front so the caller can recycle it (§4.2, open question on
// shift_front semantics: front advances even when the list is empty,
// compensated by advancing back too so the window width never shrinks).
func (fl *freeListTxn) pushFront(tx *Txn, pn PageNum) (evicted PageNum, hadEvicted bool, err error) {
	if !fl.empty() {
		evicted, err = fl.getAt(tx, fl.front)
		if err != nil {
			return 0, false, err
		}
		hadEvicted = true
	}
	fl.front++
	fl.back++
	if err := fl.setAt(tx, fl.back-1, pn); err != nil {
		return 0, false, err
	}
	return evicted, hadEvicted, nil
}
