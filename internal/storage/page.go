package storage

import (
	"os"
	"sync"

	"github.com/wosim-go/wosim/internal/storage/mmapfile"
)

// PageSize is the fixed size of every page in the file, including the
// header page. Page 0 is reserved for the format tag and snapshot slots.
const PageSize = 8192

// HeaderPage is the reserved page number holding the format tag and the
// two snapshot slots.
const HeaderPage PageNum = 0

// initialPages is the number of pages the file is created with.
const initialPages = 4

// PageNum addresses a single page within the file. Page numbers are
// stable for the lifetime of a page; copy-on-write never reuses a page
// number for different content within the pages a reader can still see.
type PageNum uint32

// Page is a fixed PageSize view over mapped memory. It is a value
// identified by a page number, not a long-lived borrowed reference:
// any allocator call may relocate the page to a different mapping, so
// callers must re-fetch a Page after calling allocate/reallocate/grow.
type Page struct {
	data []byte
}

// Bytes returns the raw page contents. Mutating the returned slice
// mutates the underlying page in place; callers are responsible for
// only doing so on pages the writable bitset marks writable.
func (p Page) Bytes() []byte { return p.data }

// pagedFile is the growable mmap substrate described by the spec's
// "paged mmap substrate" (C1). Growth doubles the backing file when an
// access would fall past its current end; earlier mappings are kept
// mapped (not unmapped) until the next snapshot so that Page values
// handed out before a growth remain valid memory.
type pagedFile struct {
	mu sync.Mutex

	f *os.File

	mapping *mmapfile.Map
	retired []*mmapfile.Map

	// writable is a process-local bitset: bit n set means page n may be
	// mutated in place during the current transaction. It is never
	// persisted and is reset to all-zero on every snapshot.
	writable []byte
}

func openPagedFile(path string) (pf *pagedFile, created bool, err error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, false, &IOError{Op: "open", Err: err}
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, false, &IOError{Op: "stat", Err: err}
	}

	size := fi.Size()
	created = size == 0
	if created {
		size = int64(initialPages) * PageSize
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, false, &IOError{Op: "truncate", Err: err}
		}
	} else if size%PageSize != 0 {
		// A partial final page means the file was truncated mid-write;
		// round down so page addressing never reads past EOF. The
		// snapshot header in the remaining pages decides corruption.
		size -= size % PageSize
		if size < PageSize {
			f.Close()
			return nil, false, ErrCorrupt
		}
	}

	m, err := mmapfile.New(int(f.Fd()), 0, int(size), true)
	if err != nil {
		f.Close()
		return nil, false, &IOError{Op: "mmap", Err: err}
	}

	pf = &pagedFile{
		f:        f,
		mapping:  m,
		writable: make([]byte, bitsetBytes(size/PageSize)),
	}
	return pf, created, nil
}

func bitsetBytes(pages int64) int64 {
	return (pages + 7) / 8
}

// ensure grows the mapping, doubling the file size, until page n is
// addressable.
func (pf *pagedFile) ensure(n PageNum) error {
	need := (int64(n) + 1) * PageSize
	if need <= pf.mapping.Size() {
		return nil
	}

	newSize := pf.mapping.Size()
	if newSize == 0 {
		newSize = PageSize
	}
	for newSize < need {
		newSize *= 2
	}

	if err := pf.f.Truncate(newSize); err != nil {
		return &IOError{Op: "truncate", Err: err}
	}

	newMapping, err := mmapfile.New(int(pf.f.Fd()), 0, int(newSize), true)
	if err != nil {
		return &IOError{Op: "mmap growth", Err: err}
	}

	pf.retired = append(pf.retired, pf.mapping)
	pf.mapping = newMapping

	newPages := newSize / PageSize
	if want := bitsetBytes(newPages); int64(len(pf.writable)) < want {
		grown := make([]byte, want)
		copy(grown, pf.writable)
		pf.writable = grown
	}
	return nil
}

func (pf *pagedFile) slice(n PageNum) []byte {
	off := int64(n) * PageSize
	return pf.mapping.Data()[off : off+PageSize]
}

// page returns a read view of page n, growing the file if necessary.
func (pf *pagedFile) page(n PageNum) (Page, error) {
	if err := pf.ensure(n); err != nil {
		return Page{}, err
	}
	return Page{data: pf.slice(n)}, nil
}

// pageMut returns a mutable view of page n. The caller asserts that n
// is marked writable in the current transaction (freshly allocated or
// already reallocated this transaction); pageMut itself performs no
// such check.
func (pf *pagedFile) pageMut(n PageNum) (Page, error) {
	return pf.page(n)
}

// copyPageMut copies the contents of src into dst and returns a
// mutable view of dst. Used to materialize the copy-on-write copy of a
// non-writable page onto a freshly reallocated page number.
func (pf *pagedFile) copyPageMut(src, dst PageNum) (Page, error) {
	if _, err := pf.page(src); err != nil {
		return Page{}, err
	}
	dstPage, err := pf.pageMut(dst)
	if err != nil {
		return Page{}, err
	}
	copy(dstPage.data, pf.slice(src))
	return dstPage, nil
}

func (pf *pagedFile) canWrite(n PageNum) bool {
	idx := int64(n) / 8
	if idx >= int64(len(pf.writable)) {
		return false
	}
	return pf.writable[idx]&(1<<(uint(n)%8)) != 0
}

func (pf *pagedFile) enableWrite(n PageNum) error {
	if err := pf.ensure(n); err != nil {
		return err
	}
	pf.writable[int64(n)/8] |= 1 << (uint(n) % 8)
	return nil
}

// resetWritable clears the writable bitset. Called once a snapshot has
// committed: every page is now part of a durable, read-only-until-CoW
// snapshot again.
func (pf *pagedFile) resetWritable() {
	for i := range pf.writable {
		pf.writable[i] = 0
	}
}

// releaseRetired unmaps mappings kept alive only for the benefit of
// Page values borrowed before a growth. Safe to call once a snapshot
// has committed and no transaction is in flight, since this engine is
// single-writer with reads interleaved on the same goroutine.
func (pf *pagedFile) releaseRetired() {
	for _, m := range pf.retired {
		m.Close()
	}
	pf.retired = pf.retired[:0]
}

func (pf *pagedFile) sync() error {
	return pf.mapping.Sync()
}

func (pf *pagedFile) syncAsync() error {
	return pf.mapping.SyncAsync()
}

func (pf *pagedFile) close() error {
	pf.releaseRetired()
	if err := pf.mapping.Close(); err != nil {
		return err
	}
	return pf.f.Close()
}
