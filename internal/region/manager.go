// Package region implements the server's region-interest scheme: the
// per-region observer sets, the 4-tier priority queue of setup/teardown
// changes, and the per-tick budgeted drain and update flush (§4.8).
package region

import (
	"container/heap"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/wosim-go/wosim/internal/persistent"
	"github.com/wosim-go/wosim/internal/protocol"
	"github.com/wosim-go/wosim/internal/storage"
)

// Sender delivers the notifications a Drain/FlushUpdates pass produces.
// It is implemented by the transport-facing layer in internal/sim so
// this package never depends on the wire connection directly.
type Sender interface {
	SendStaticSetup(observer uuid.UUID, body protocol.StaticSetupBody) error
	SendDynamicSetup(observer uuid.UUID, body protocol.DynamicSetupBody) error
	SendStaticTeardown(observer uuid.UUID, pos protocol.RegionPos) error
	SendDynamicTeardown(observer uuid.UUID, pos protocol.RegionPos) error
	SendDynamicUpdates(observer uuid.UUID, body protocol.DynamicUpdatesBody) error
}

type regionState struct {
	observers         map[uuid.UUID]Level
	fullObserverCount int
	pendingDynamic    []protocol.DynamicUpdateEntry
}

type observerState struct {
	center protocol.RegionPos
	levels map[protocol.RegionPos]Level
}

// Manager owns the region interest table and change queue. It is not
// safe for concurrent use: like the rest of the world state, it is
// only ever touched from the single world actor goroutine (§5).
type Manager struct {
	staticDistance int32
	fullDistance   int32
	regionSize     float32

	regions   map[protocol.RegionPos]*regionState
	observers map[uuid.UUID]*observerState
	queue     changeHeap
}

// NewManager returns an empty manager for a world with the given
// region size and interest distances (in tiles).
func NewManager(regionSize float32, staticDistance, fullDistance uint32) *Manager {
	return &Manager{
		staticDistance: int32(staticDistance),
		fullDistance:   int32(fullDistance),
		regionSize:     regionSize,
		regions:        make(map[protocol.RegionPos]*regionState),
		observers:      make(map[uuid.UUID]*observerState),
	}
}

func (m *Manager) stateFor(pos protocol.RegionPos) *regionState {
	s, ok := m.regions[pos]
	if !ok {
		s = &regionState{observers: make(map[uuid.UUID]Level)}
		m.regions[pos] = s
	}
	return s
}

// chebyshev returns the tile (Chebyshev) distance between two region
// positions, the neighborhood metric static_distance/full_distance are
// specified in.
func chebyshev(a, b protocol.RegionPos) int32 {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dz := a.Z - b.Z
	if dz < 0 {
		dz = -dz
	}
	if dx > dz {
		return dx
	}
	return dz
}

func euclidSq(a, b protocol.RegionPos) float64 {
	dx := float64(a.X - b.X)
	dz := float64(a.Z - b.Z)
	return dx*dx + dz*dz
}

func (m *Manager) levelAt(center, pos protocol.RegionPos) Level {
	d := chebyshev(center, pos)
	switch {
	case d <= m.fullDistance:
		return LevelFull
	case d <= m.staticDistance:
		return LevelStatic
	default:
		return LevelNone
	}
}

func (m *Manager) neighborhood(center protocol.RegionPos) []protocol.RegionPos {
	var out []protocol.RegionPos
	for dx := -m.staticDistance; dx <= m.staticDistance; dx++ {
		for dz := -m.staticDistance; dz <= m.staticDistance; dz++ {
			out = append(out, protocol.RegionPos{X: center.X + dx, Z: center.Z + dz})
		}
	}
	return out
}

func (m *Manager) push(c Change) { heap.Push(&m.queue, c) }

// Join enrolls a new observer centered on center, enqueuing setup
// transitions for its whole neighborhood plus a player-announcement to
// the center region's existing Full observers (§4.8 step 1-3).
func (m *Manager) Join(observer uuid.UUID, center protocol.RegionPos, pcID uint32, pc protocol.Entity) {
	obs := &observerState{center: center, levels: make(map[protocol.RegionPos]Level)}
	m.observers[observer] = obs

	for _, pos := range m.neighborhood(center) {
		lvl := m.levelAt(center, pos)
		if lvl == LevelNone {
			continue
		}
		obs.levels[pos] = lvl
		dist := euclidSq(center, pos)
		m.push(Change{Region: pos, Distance: dist, Observer: observer, Variant: VariantSetupStatic})
		if lvl == LevelFull {
			m.push(Change{Region: pos, Distance: dist, Observer: observer, Variant: VariantSetupDynamic})
		}
	}

	if centerState, ok := m.regions[center]; ok {
		for other, lvl := range centerState.observers {
			if other == observer || lvl != LevelFull {
				continue
			}
			m.push(Change{Region: center, Distance: 0, Observer: other, Variant: VariantSetupPlayer, PCID: pcID, PC: pc})
		}
	}
}

// Move recomputes an observer's neighborhood if pos has drifted more
// than a 1.5-region cushion from its current center, enqueuing the
// diff transitions for the union of the old and new neighborhoods.
func (m *Manager) Move(observer uuid.UUID, pos protocol.Vec3) {
	obs, ok := m.observers[observer]
	if !ok {
		return
	}
	oldCenter := obs.center
	cushion := 1.5 * m.regionSize
	cx := float64(oldCenter.X)*float64(m.regionSize) + float64(m.regionSize)/2
	cz := float64(oldCenter.Z)*float64(m.regionSize) + float64(m.regionSize)/2
	dx := float64(pos.X) - cx
	dz := float64(pos.Z) - cz
	if dx*dx+dz*dz <= float64(cushion)*float64(cushion) {
		return
	}

	newCenter := protocol.RegionPos{
		X: int32(math.Floor(float64(pos.X) / float64(m.regionSize))),
		Z: int32(math.Floor(float64(pos.Z) / float64(m.regionSize))),
	}
	if newCenter == oldCenter {
		return
	}

	seen := make(map[protocol.RegionPos]bool)
	union := append(m.neighborhood(oldCenter), m.neighborhood(newCenter)...)

	for _, p := range union {
		if seen[p] {
			continue
		}
		seen[p] = true

		oldLvl := obs.levels[p]
		newLvl := m.levelAt(newCenter, p)
		if oldLvl == newLvl {
			continue
		}
		dist := euclidSq(newCenter, p)

		switch {
		case oldLvl == LevelStatic && newLvl == LevelFull:
			m.push(Change{Region: p, Distance: dist, Observer: observer, Variant: VariantSetupDynamic})
		case oldLvl == LevelFull && newLvl == LevelStatic:
			m.push(Change{Region: p, Distance: dist, Observer: observer, Variant: VariantTeardownDynamic})
		case oldLvl != LevelNone && newLvl == LevelNone:
			m.push(Change{Region: p, Distance: dist, Observer: observer, Variant: VariantTeardownDynamic})
			m.push(Change{Region: p, Distance: dist, Observer: observer, Variant: VariantTeardownStatic})
		case oldLvl == LevelNone && newLvl != LevelNone:
			m.push(Change{Region: p, Distance: dist, Observer: observer, Variant: VariantSetupStatic})
			if newLvl == LevelFull {
				m.push(Change{Region: p, Distance: dist, Observer: observer, Variant: VariantSetupDynamic})
			}
		}

		if newLvl == LevelNone {
			delete(obs.levels, p)
		} else {
			obs.levels[p] = newLvl
		}
	}

	obs.center = newCenter
}

// Leave tears down every region the observer is interested in and
// forgets it.
func (m *Manager) Leave(observer uuid.UUID) {
	obs, ok := m.observers[observer]
	if !ok {
		return
	}
	for p, lvl := range obs.levels {
		dist := euclidSq(obs.center, p)
		if lvl == LevelFull {
			m.push(Change{Region: p, Distance: dist, Observer: observer, Variant: VariantTeardownDynamic})
		}
		m.push(Change{Region: p, Distance: dist, Observer: observer, Variant: VariantTeardownStatic})
	}
	delete(m.observers, observer)
}

// QueueLen reports the number of undrained changes, for backlog
// logging and the region-change-queue-depth metric.
func (m *Manager) QueueLen() int { return m.queue.Len() }

// Drain pops changes and applies their effects until budget elapses,
// sending notifications through sender. Unprocessed entries remain
// queued for the next call.
func (m *Manager) Drain(tx *storage.Txn, world *persistent.World, budget time.Duration, sender Sender) error {
	deadline := time.Now().Add(budget)
	for m.queue.Len() > 0 {
		if budget >= 0 && time.Now().After(deadline) {
			break
		}
		c := heap.Pop(&m.queue).(Change)
		if err := m.apply(tx, world, c, sender); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) apply(tx *storage.Txn, world *persistent.World, c Change, sender Sender) error {
	switch c.Variant {
	case VariantSetupStatic:
		return m.applySetupStatic(tx, world, c, sender)
	case VariantSetupDynamic:
		return m.applySetupDynamic(tx, world, c, sender)
	case VariantSetupPlayer:
		m.stateFor(c.Region).pendingDynamic = append(m.stateFor(c.Region).pendingDynamic,
			protocol.DynamicUpdateEntry{Kind: protocol.DynamicEnter, ID: c.PCID, T: c.PC.T})
		return nil
	case VariantTeardownDynamic:
		return m.applyTeardownDynamic(c, sender)
	case VariantTeardownStatic:
		return m.applyTeardownStatic(c, sender)
	}
	return nil
}

func (m *Manager) applySetupStatic(tx *storage.Txn, world *persistent.World, c Change, sender Sender) error {
	rs := m.stateFor(c.Region)
	rs.observers[c.Observer] = LevelStatic

	heights, err := world.SliceHeights(tx, c.Region)
	if err != nil {
		return err
	}
	return sender.SendStaticSetup(c.Observer, protocol.StaticSetupBody{
		Region:     c.Region,
		Heights:    heights,
		RegionSize: world.Config.RegionSize,
	})
}

func (m *Manager) applySetupDynamic(tx *storage.Txn, world *persistent.World, c Change, sender Sender) error {
	rs := m.stateFor(c.Region)
	rs.observers[c.Observer] = LevelFull
	rs.fullObserverCount++

	var npcs, pcs []protocol.Entity
	if err := world.NPCs.Each(tx, func(n persistent.NPCRecord) bool {
		if n.Home == c.Region {
			npcs = append(npcs, protocol.Entity{ID: n.ID, T: n.T})
		}
		return true
	}); err != nil {
		return err
	}
	if err := world.PCs.Each(tx, func(p persistent.PCRecord) bool {
		if p.Home == c.Region {
			pcs = append(pcs, protocol.Entity{ID: p.ID, T: p.T})
		}
		return true
	}); err != nil {
		return err
	}

	return sender.SendDynamicSetup(c.Observer, protocol.DynamicSetupBody{Region: c.Region, NPCs: npcs, PCs: pcs})
}

func (m *Manager) applyTeardownDynamic(c Change, sender Sender) error {
	rs := m.stateFor(c.Region)
	if lvl, ok := rs.observers[c.Observer]; ok && lvl == LevelFull {
		rs.observers[c.Observer] = LevelStatic
	}
	rs.fullObserverCount--
	if rs.fullObserverCount <= 0 {
		rs.fullObserverCount = 0
		return sender.SendDynamicTeardown(c.Observer, c.Region)
	}
	return nil
}

func (m *Manager) applyTeardownStatic(c Change, sender Sender) error {
	rs := m.stateFor(c.Region)
	delete(rs.observers, c.Observer)
	if len(rs.observers) == 0 {
		delete(m.regions, c.Region)
		return sender.SendStaticTeardown(c.Observer, c.Region)
	}
	return nil
}

// FlushUpdates sends one DynamicUpdates bundle per region with pending
// entries to every observer whose level is Full, then clears the
// pending list (§4.8 "Per-tick flush"). StaticUpdates is a reserved,
// currently-empty message in the source system this spec is modeled
// on; no placeholder is emitted here since nothing ever marks static
// data dirty after initial setup.
func (m *Manager) FlushUpdates(tick uint64, sender Sender) error {
	for pos, rs := range m.regions {
		if len(rs.pendingDynamic) == 0 {
			continue
		}
		body := protocol.DynamicUpdatesBody{Region: pos, Entries: rs.pendingDynamic, Tick: tick}
		for observer, lvl := range rs.observers {
			if lvl != LevelFull {
				continue
			}
			if err := sender.SendDynamicUpdates(observer, body); err != nil {
				return err
			}
		}
		rs.pendingDynamic = nil
	}
	return nil
}

// QueueDynamicUpdate appends an entry to a region's pending dynamic
// update list, used by the tick loop for NPC/PC movement, enter, and
// exit events (§4.9).
func (m *Manager) QueueDynamicUpdate(pos protocol.RegionPos, entry protocol.DynamicUpdateEntry) {
	rs := m.stateFor(pos)
	rs.pendingDynamic = append(rs.pendingDynamic, entry)
}

// FullObserverCount reports how many Full observers a region currently
// has, used by the tick loop to decide whether a destination region has
// an active observer before migrating an NPC into it live (§4.9).
func (m *Manager) FullObserverCount(pos protocol.RegionPos) int {
	rs, ok := m.regions[pos]
	if !ok {
		return 0
	}
	return rs.fullObserverCount
}
