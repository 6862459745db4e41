package region

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wosim-go/wosim/internal/persistent"
	"github.com/wosim-go/wosim/internal/protocol"
	"github.com/wosim-go/wosim/internal/storage"
)

type fakeSender struct {
	staticSetups     []protocol.RegionPos
	dynamicSetups    []protocol.RegionPos
	staticTeardowns  []protocol.RegionPos
	dynamicTeardowns []protocol.RegionPos
	dynamicUpdates   []protocol.DynamicUpdatesBody
}

func (f *fakeSender) SendStaticSetup(observer uuid.UUID, body protocol.StaticSetupBody) error {
	f.staticSetups = append(f.staticSetups, body.Region)
	return nil
}
func (f *fakeSender) SendDynamicSetup(observer uuid.UUID, body protocol.DynamicSetupBody) error {
	f.dynamicSetups = append(f.dynamicSetups, body.Region)
	return nil
}
func (f *fakeSender) SendStaticTeardown(observer uuid.UUID, pos protocol.RegionPos) error {
	f.staticTeardowns = append(f.staticTeardowns, pos)
	return nil
}
func (f *fakeSender) SendDynamicTeardown(observer uuid.UUID, pos protocol.RegionPos) error {
	f.dynamicTeardowns = append(f.dynamicTeardowns, pos)
	return nil
}
func (f *fakeSender) SendDynamicUpdates(observer uuid.UUID, body protocol.DynamicUpdatesBody) error {
	f.dynamicUpdates = append(f.dynamicUpdates, body)
	return nil
}

func openWorldDB(t *testing.T) (*storage.Database, *persistent.World) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "world.db")
	db, err := storage.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	w := persistent.New(persistent.Configuration{RegionSize: 4, Size: 64, StaticDistance: 2, FullDistance: 1})
	return db, w
}

func TestJoinEmitsOneStaticSetupPerNeighborAndDynamicForFullOnly(t *testing.T) {
	db, w := openWorldDB(t)
	m := NewManager(4, 2, 1)
	sender := &fakeSender{}
	observer := uuid.New()

	err := db.Update(func(tx *storage.Txn, root *storage.Extent) error {
		m.Join(observer, protocol.RegionPos{}, 1, protocol.Entity{ID: 1})
		return m.Drain(tx, w, -1, sender)
	})
	require.NoError(t, err)

	// static_distance=2 -> 5x5=25 static setups; full_distance=1 -> 3x3=9 dynamic setups.
	require.Len(t, sender.staticSetups, 25)
	require.Len(t, sender.dynamicSetups, 9)
}

func TestLeaveTearsDownEveryJoinedRegion(t *testing.T) {
	db, w := openWorldDB(t)
	m := NewManager(4, 2, 1)
	sender := &fakeSender{}
	observer := uuid.New()

	err := db.Update(func(tx *storage.Txn, root *storage.Extent) error {
		m.Join(observer, protocol.RegionPos{}, 1, protocol.Entity{})
		require.NoError(t, m.Drain(tx, w, -1, sender))
		m.Leave(observer)
		return m.Drain(tx, w, -1, sender)
	})
	require.NoError(t, err)

	require.Len(t, sender.staticTeardowns, 25)
	require.Len(t, sender.dynamicTeardowns, 9)
}

func TestQueuePrioritizesSetupsBeforeTeardownsAndByDistance(t *testing.T) {
	var h changeHeap
	far := Change{Region: protocol.RegionPos{X: 5}, Distance: 25, Variant: VariantSetupStatic}
	near := Change{Region: protocol.RegionPos{X: 1}, Distance: 1, Variant: VariantSetupStatic}
	teardown := Change{Region: protocol.RegionPos{}, Distance: 0, Variant: VariantTeardownStatic}

	for _, c := range []Change{far, teardown, near} {
		h = append(h, c)
	}
	require.True(t, less(near, far))
	require.True(t, less(far, teardown))
}

func TestMoveStaysWithinCushionDoesNothing(t *testing.T) {
	m := NewManager(4, 2, 1)
	observer := uuid.New()
	m.Join(observer, protocol.RegionPos{}, 1, protocol.Entity{})
	m.queue = nil // discard join changes for this assertion

	m.Move(observer, protocol.Vec3{X: 1, Z: 1})
	require.Equal(t, 0, m.QueueLen())
}

func TestMoveAcrossCushionEnqueuesTransitions(t *testing.T) {
	m := NewManager(4, 2, 1)
	observer := uuid.New()
	m.Join(observer, protocol.RegionPos{}, 1, protocol.Entity{})
	m.queue = nil

	m.Move(observer, protocol.Vec3{X: 20, Z: 0})
	require.Greater(t, m.QueueLen(), 0)
}

func TestDrainRespectsTimeBudget(t *testing.T) {
	db, w := openWorldDB(t)
	m := NewManager(4, 2, 1)
	sender := &fakeSender{}
	observer := uuid.New()

	err := db.Update(func(tx *storage.Txn, root *storage.Extent) error {
		m.Join(observer, protocol.RegionPos{}, 1, protocol.Entity{})
		before := m.QueueLen()
		require.NoError(t, m.Drain(tx, w, 0, sender))
		require.Equal(t, before, m.QueueLen())
		return nil
	})
	require.NoError(t, err)
}
