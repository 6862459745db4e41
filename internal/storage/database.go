package storage

import (
	"sync"
)

// Database is the single-writer, memory-mapped snapshot store described
// by C1-C6. Open mmaps the backing file and picks whichever of the two
// header slots holds the greater valid checksummed version; Update runs
// exactly one write transaction at a time and commits it with Snapshot.
type Database struct {
	mu sync.Mutex

	pf *pagedFile

	slotIndex int
	version   uint64
	alloc     *Allocator
	root      Extent

	closed bool

	fsyncCh   chan chan error
	fsyncDone chan struct{}
}

// Open opens or creates the single-file database at path.
func Open(path string) (*Database, error) {
	pf, created, err := openPagedFile(path)
	if err != nil {
		return nil, err
	}

	var s slot
	var idx int
	if created {
		s = initialSlot()
		idx = 0
		hp, err := pf.pageMut(HeaderPage)
		if err != nil {
			pf.close()
			return nil, err
		}
		writeHeader(hp, idx, s)
		if err := pf.sync(); err != nil {
			pf.close()
			return nil, err
		}
	} else {
		hp, err := pf.page(HeaderPage)
		if err != nil {
			pf.close()
			return nil, err
		}
		s, idx, err = readHeader(hp)
		if err != nil {
			pf.close()
			return nil, err
		}
	}

	db := &Database{
		pf:        pf,
		slotIndex: idx,
		version:   s.Version,
		alloc:     loadAllocator(s.Allocator),
		root:      Extent{Root: s.RootPage, Len: s.RootLen},
		fsyncCh:   make(chan chan error),
		fsyncDone: make(chan struct{}),
	}
	go db.fsyncLoop()
	return db, nil
}

// Update runs fn against a fresh write transaction, flushes the
// allocator's deferred free-list work, and commits with Snapshot. If fn
// returns an error, the in-progress mutations are discarded: since
// every mutation to a not-yet-writable page allocates a fresh page
// number rather than touching the previous snapshot in place, simply
// not committing leaves the durable state untouched (the freshly
// allocated pages are reclaimed the next time the allocator's
// high-water mark truly needs them — a small permanent leak of the
// file's current generation, bounded by how much one aborted
// transaction touched).
func (db *Database) Update(fn func(tx *Txn, root *Extent) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}

	tx := &Txn{pf: db.pf, alloc: db.alloc}
	root := db.root

	if err := fn(tx, &root); err != nil {
		return err
	}
	if err := db.alloc.finish(tx); err != nil {
		return err
	}
	db.root = root

	return db.snapshot()
}

// View runs fn against a read-only snapshot of the current state.
func (db *Database) View(fn func(tx *Txn, root Extent) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	tx := &Txn{pf: db.pf, alloc: db.alloc}
	return fn(tx, db.root)
}

// snapshot performs the five-step commit sequence from the storage
// engine's design: swap allocator generations, bump the version, write
// the non-current header slot, reset the writable bitset, and enqueue
// (without blocking on) a background fsync (§4.6).
func (db *Database) snapshot() error {
	db.alloc.previous, db.alloc.current = db.alloc.current, db.alloc.previous
	db.alloc.current.front = 0
	db.alloc.current.back = 0

	db.version++
	newIndex := 1 - db.slotIndex

	s := slot{
		Version:   db.version,
		Allocator: db.alloc.state(),
		RootPage:  db.root.Root,
		RootLen:   db.root.Len,
	}

	hp, err := db.pf.pageMut(HeaderPage)
	if err != nil {
		return err
	}
	writeHeader(hp, newIndex, s)
	db.slotIndex = newIndex

	db.pf.resetWritable()
	db.pf.releaseRetired()

	errc := make(chan error, 1)
	db.fsyncCh <- errc
	return nil
}

// fsyncLoop batches concurrent snapshot fsyncs: every request queued
// between two loop iterations rides on the same call to sync, so a
// burst of Update calls collapses into one disk barrier.
func (db *Database) fsyncLoop() {
	for {
		select {
		case first, ok := <-db.fsyncCh:
			if !ok {
				return
			}
			waiters := []chan error{first}
		drain:
			for {
				select {
				case next := <-db.fsyncCh:
					waiters = append(waiters, next)
				default:
					break drain
				}
			}
			err := db.pf.syncAsync()
			for _, w := range waiters {
				w <- err
			}
		case <-db.fsyncDone:
			return
		}
	}
}

// Close stops the background fsync goroutine and unmaps the file. Any
// vector/tree drop triggered during shutdown should be skipped by
// callers (§4.4): a database about to close does not need its free
// lists to reflect pages it is giving back to the OS anyway.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true
	close(db.fsyncDone)
	return db.pf.close()
}

// Root returns the current committed root extent, used by callers that
// persist their own typed layout (vectors, trees) inside it.
func (db *Database) Root() Extent {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.root
}
