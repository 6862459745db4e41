package storage

// Allocator is the two-generation page allocator (§4.2, C2). `previous`
// holds pages freed as of the last completed snapshot, safe to hand out
// again now since no mapping a reader could still be using references
// them. `current` accumulates pages freed during the in-flight
// transaction; it becomes the next snapshot's `previous` once this
// transaction commits, so those pages stay quarantined for one full
// snapshot cycle.
//
// Deallocate and Reallocate never touch the free-list extents directly:
// doing so inline could itself allocate or free pages and recurse into
// the allocator mid-call. They queue the page number instead; finish
// drains both queues once the surrounding transaction's real work is
// done, looping until a drain produces no further queued work.
type Allocator struct {
	previous freeListTxn
	current  freeListTxn
	lastPage PageNum

	appendQ  []PageNum
	prependQ []PageNum
}

func loadAllocator(s allocatorState) *Allocator {
	return &Allocator{
		previous: loadFreeList(s.Previous),
		current:  loadFreeList(s.Current),
		lastPage: s.LastPage,
	}
}

func (a *Allocator) state() allocatorState {
	return allocatorState{
		Previous: a.previous.state(),
		Current:  a.current.state(),
		LastPage: a.lastPage,
	}
}

// Allocate returns a page number writable in tx, preferring the most
// recently freed page available: first a page queued for release
// earlier in this same transaction (not yet drained into current, so
// reusable immediately), then the newest entry in current, then the
// newest entry in previous, and only then a brand new page at the end
// of the file (§4.2).
func (a *Allocator) Allocate(tx *Txn) (PageNum, error) {
	if n := len(a.appendQ); n > 0 {
		pn := a.appendQ[n-1]
		a.appendQ = a.appendQ[:n-1]
		if err := tx.pf.enableWrite(pn); err != nil {
			return 0, err
		}
		return pn, nil
	}

	if pn, ok, err := a.current.popBack(tx); err != nil {
		return 0, err
	} else if ok {
		if err := tx.pf.enableWrite(pn); err != nil {
			return 0, err
		}
		return pn, nil
	}

	if pn, ok, err := a.previous.popBack(tx); err != nil {
		return 0, err
	} else if ok {
		if err := tx.pf.enableWrite(pn); err != nil {
			return 0, err
		}
		return pn, nil
	}

	a.lastPage++
	pn := a.lastPage
	if err := tx.pf.enableWrite(pn); err != nil {
		return 0, err
	}
	return pn, nil
}

// Deallocate marks pn as no longer referenced by anything this
// transaction will commit. Pages allocated earlier in the same
// transaction (still marked writable) never escaped to a durable
// snapshot, so they go straight onto current's tail; anything else
// must go through the front-shift path so a concurrent reader of the
// snapshot that is still committing can't see it reused early.
func (a *Allocator) Deallocate(tx *Txn, pn PageNum) error {
	if tx.pf.canWrite(pn) {
		a.appendQ = append(a.appendQ, pn)
	} else {
		a.prependQ = append(a.prependQ, pn)
	}
	return nil
}

// Reallocate returns a fresh writable page and queues pn for release,
// used by cow to relocate a page's contents without losing track of
// the page number being vacated.
func (a *Allocator) Reallocate(tx *Txn, pn PageNum) (PageNum, error) {
	newPn, err := a.Allocate(tx)
	if err != nil {
		return 0, err
	}
	if err := a.Deallocate(tx, pn); err != nil {
		return 0, err
	}
	return newPn, nil
}

// finish drains the append/prepend queues into current, looping
// because writing into current's own backing extent can itself grow
// or shrink pages and enqueue more work.
func (a *Allocator) finish(tx *Txn) error {
	for len(a.appendQ) > 0 || len(a.prependQ) > 0 {
		for len(a.appendQ) > 0 {
			pn := a.appendQ[0]
			a.appendQ = a.appendQ[1:]
			if err := a.current.pushBack(tx, pn); err != nil {
				return err
			}
		}
		for len(a.prependQ) > 0 {
			pn := a.prependQ[0]
			a.prependQ = a.prependQ[1:]
			evicted, ok, err := a.current.pushFront(tx, pn)
			if err != nil {
				return err
			}
			if ok {
				a.appendQ = append(a.appendQ, evicted)
			}
		}
	}
	return nil
}
