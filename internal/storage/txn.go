package storage

// Txn is the single in-flight write transaction against a Database. The
// engine is single-writer: pf and alloc are only ever touched from the
// goroutine holding the transaction (§4.1).
type Txn struct {
	pf    *pagedFile
	alloc *Allocator
}

// ReadExtent reads len(buf) bytes of ext starting at offset. Exported
// for callers outside the package (the persisted world layout) that
// keep their own Extent-backed root structures.
func (tx *Txn) ReadExtent(ext Extent, offset int64, buf []byte) error {
	return readExtent(tx, ext, offset, buf)
}

// WriteExtent writes data into ext at offset, growing it first if
// needed, and reports the (possibly relocated) extent back through
// ext.
func (tx *Txn) WriteExtent(ext *Extent, offset int64, data []byte) error {
	return writeExtent(tx, ext, offset, data)
}

// Allocator exposes the transaction's page allocator to callers that
// need to allocate or free pages directly, such as persistent.SoV's
// backing vectors when laying out the world root the first time.
func (tx *Txn) Allocator() *Allocator { return tx.alloc }
