package storage

import (
	"encoding/binary"
	"io"
)

// indirectCap is the number of page numbers that fit in one indirect
// page: PageSize/4 = 2048, matching spec.md's "indirect block" size.
const indirectCap = PageSize / 4

// Extent is a logical byte range backed by a tree of pages (§3, §4.3):
// height 0 is a single data page, height 1 an indirect page fanning out
// to up to 2048 data pages, height 2 an indirect page fanning out to up
// to 2048 level-1 indirect pages. Max addressable size is therefore
// 2048*2048*PageSize, about 32 GiB.
type Extent struct {
	Root PageNum
	Len  uint64
}

// MaxExtentLen is the largest logical length an Extent can address.
const MaxExtentLen = uint64(indirectCap) * uint64(indirectCap) * PageSize

func pagesForLen(length uint64) int {
	if length == 0 {
		return 0
	}
	return int((length + PageSize - 1) / PageSize)
}

func heightForPages(pages int) int {
	switch {
	case pages <= 1:
		return 0
	case pages <= indirectCap:
		return 1
	default:
		return 2
	}
}

func indirectGet(tx *Txn, pn PageNum, idx int) PageNum {
	p, err := tx.pf.page(pn)
	if err != nil {
		return 0
	}
	return PageNum(binary.LittleEndian.Uint32(p.data[idx*4 : idx*4+4]))
}

func indirectSet(tx *Txn, pn PageNum, idx int, val PageNum) {
	p, err := tx.pf.pageMut(pn)
	if err != nil {
		return
	}
	binary.LittleEndian.PutUint32(p.data[idx*4:idx*4+4], uint32(val))
}

func zeroPage(tx *Txn, pn PageNum) {
	p, err := tx.pf.pageMut(pn)
	if err != nil {
		return
	}
	clear(p.data)
}

// cow returns a page number guaranteed writable in this transaction,
// copying pn onto a freshly reallocated page if it is not already
// writable (§4.1, §4.5). The caller must splice the returned number
// into whatever points at pn if it differs.
func (tx *Txn) cow(pn PageNum) (PageNum, error) {
	if tx.pf.canWrite(pn) {
		return pn, nil
	}
	newPn, err := tx.alloc.Reallocate(tx, pn)
	if err != nil {
		return 0, err
	}
	if _, err := tx.pf.copyPageMut(pn, newPn); err != nil {
		return 0, err
	}
	return newPn, nil
}

// ensureDataPage returns a writable data page for logical page index
// idx beneath root/height, allocating it if it does not exist yet and
// CoW-splicing any indirect pages on the path that were not already
// writable. It returns the (possibly relocated) root so the caller can
// update whatever points at it.
func ensureDataPage(tx *Txn, root PageNum, height int, idx int) (newRoot PageNum, dataPn PageNum, err error) {
	if height == 0 {
		newRoot, err = tx.cow(root)
		return newRoot, newRoot, err
	}

	newRoot, err = tx.cow(root)
	if err != nil {
		return
	}

	if height == 1 {
		child := indirectGet(tx, newRoot, idx)
		if child == 0 {
			child, err = tx.alloc.Allocate(tx)
			if err != nil {
				return
			}
			zeroPage(tx, child)
			indirectSet(tx, newRoot, idx, child)
			return newRoot, child, nil
		}
		newChild, err := tx.cow(child)
		if err != nil {
			return newRoot, 0, err
		}
		if newChild != child {
			indirectSet(tx, newRoot, idx, newChild)
		}
		return newRoot, newChild, nil
	}

	l1Idx := idx / indirectCap
	childIdx := idx % indirectCap
	l1 := indirectGet(tx, newRoot, l1Idx)
	if l1 == 0 {
		l1, err = tx.alloc.Allocate(tx)
		if err != nil {
			return
		}
		zeroPage(tx, l1)
		indirectSet(tx, newRoot, l1Idx, l1)
	}
	newL1, dataPn, err := ensureDataPage(tx, l1, 1, childIdx)
	if err != nil {
		return newRoot, 0, err
	}
	if newL1 != l1 {
		indirectSet(tx, newRoot, l1Idx, newL1)
	}
	return newRoot, dataPn, nil
}

func dataPageAt(tx *Txn, root PageNum, height int, idx int) PageNum {
	if height == 0 {
		return root
	}
	if height == 1 {
		return indirectGet(tx, root, idx)
	}
	l1Idx := idx / indirectCap
	childIdx := idx % indirectCap
	l1 := indirectGet(tx, root, l1Idx)
	if l1 == 0 {
		return 0
	}
	return indirectGet(tx, l1, childIdx)
}

// freeDataPage frees the data page at idx beneath root/height (and, if
// idx is the lowest index of an exhausted level-1 block, that block's
// indirect page too) returning the possibly-relocated root.
func freeDataPage(tx *Txn, root PageNum, height int, idx int) (PageNum, error) {
	newRoot, err := tx.cow(root)
	if err != nil {
		return root, err
	}
	if height == 1 {
		pn := indirectGet(tx, newRoot, idx)
		if pn != 0 {
			tx.alloc.Deallocate(tx, pn)
			indirectSet(tx, newRoot, idx, 0)
		}
		return newRoot, nil
	}

	l1Idx := idx / indirectCap
	childIdx := idx % indirectCap
	l1 := indirectGet(tx, newRoot, l1Idx)
	if l1 == 0 {
		return newRoot, nil
	}
	newL1, err := freeDataPage(tx, l1, 1, childIdx)
	if err != nil {
		return newRoot, err
	}
	if childIdx == 0 {
		tx.alloc.Deallocate(tx, newL1)
		indirectSet(tx, newRoot, l1Idx, 0)
	} else if newL1 != l1 {
		indirectSet(tx, newRoot, l1Idx, newL1)
	}
	return newRoot, nil
}

// growExtent grows ext to address newLen bytes, allocating data and
// indirect pages and wrapping the root in a deeper indirect level when
// the page count crosses a height boundary (§4.3).
func growExtent(tx *Txn, ext *Extent, newLen uint64) error {
	if newLen <= ext.Len {
		return nil
	}
	if newLen > MaxExtentLen {
		return ErrTooLarge
	}

	oldPages := pagesForLen(ext.Len)
	newPages := pagesForLen(newLen)
	oldHeight := heightForPages(oldPages)
	newHeight := heightForPages(newPages)

	if oldPages == 0 {
		pn, err := tx.alloc.Allocate(tx)
		if err != nil {
			return err
		}
		zeroPage(tx, pn)
		ext.Root = pn
	} else if newHeight > oldHeight {
		root := ext.Root
		for h := oldHeight; h < newHeight; h++ {
			newRoot, err := tx.alloc.Allocate(tx)
			if err != nil {
				return err
			}
			zeroPage(tx, newRoot)
			indirectSet(tx, newRoot, 0, root)
			root = newRoot
		}
		ext.Root = root
	}

	for idx := oldPages; idx < newPages; idx++ {
		newRoot, _, err := ensureDataPage(tx, ext.Root, newHeight, idx)
		if err != nil {
			return err
		}
		ext.Root = newRoot
	}
	ext.Len = newLen
	return nil
}

// shrinkExtent frees pages beyond newLen bottom-up, unwrapping the
// root back down through indirect levels as they become empty.
func shrinkExtent(tx *Txn, ext *Extent, newLen uint64) error {
	if newLen >= ext.Len {
		return nil
	}

	oldPages := pagesForLen(ext.Len)
	newPages := pagesForLen(newLen)
	oldHeight := heightForPages(oldPages)
	newHeight := heightForPages(newPages)

	root := ext.Root
	for idx := oldPages - 1; idx >= newPages; idx-- {
		newRoot, err := freeDataPage(tx, root, oldHeight, idx)
		if err != nil {
			return err
		}
		root = newRoot
	}

	if newPages == 0 {
		if root != 0 {
			tx.alloc.Deallocate(tx, root)
		}
		root = 0
	} else if newHeight < oldHeight {
		for h := oldHeight; h > newHeight; h-- {
			child := indirectGet(tx, root, 0)
			tx.alloc.Deallocate(tx, root)
			root = child
		}
	}

	ext.Root = root
	ext.Len = newLen
	return nil
}

// ReadAt reads len(buf) bytes starting at offset. It is an error to
// read past ext.Len.
func readExtent(tx *Txn, ext Extent, offset int64, buf []byte) error {
	if offset < 0 || uint64(offset+int64(len(buf))) > ext.Len {
		return io.ErrUnexpectedEOF
	}
	if len(buf) == 0 {
		return nil
	}
	height := heightForPages(pagesForLen(ext.Len))
	pos := offset
	remaining := buf
	for len(remaining) > 0 {
		pageIdx := int(pos / PageSize)
		pageOff := int(pos % PageSize)
		pn := dataPageAt(tx, ext.Root, height, pageIdx)
		p, err := tx.pf.page(pn)
		if err != nil {
			return err
		}
		n := copy(remaining, p.data[pageOff:])
		remaining = remaining[n:]
		pos += int64(n)
	}
	return nil
}

// WriteAt writes data at offset, growing the extent first if the
// write extends past its current length.
func writeExtent(tx *Txn, ext *Extent, offset int64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	newLen := uint64(offset) + uint64(len(data))
	if newLen > ext.Len {
		if err := growExtent(tx, ext, newLen); err != nil {
			return err
		}
	}
	height := heightForPages(pagesForLen(ext.Len))
	root := ext.Root
	pos := offset
	remaining := data
	for len(remaining) > 0 {
		pageIdx := int(pos / PageSize)
		pageOff := int(pos % PageSize)
		newRoot, pn, err := ensureDataPage(tx, root, height, pageIdx)
		if err != nil {
			return err
		}
		root = newRoot
		p, err := tx.pf.pageMut(pn)
		if err != nil {
			return err
		}
		n := copy(p.data[pageOff:], remaining)
		remaining = remaining[n:]
		pos += int64(n)
	}
	ext.Root = root
	return nil
}

// freeExtent releases every page of ext. Used when dropping a vector
// or tree root entirely.
func freeExtent(tx *Txn, ext *Extent) error {
	return shrinkExtent(tx, ext, 0)
}
