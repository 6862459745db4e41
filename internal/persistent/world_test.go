package persistent

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wosim-go/wosim/internal/protocol"
	"github.com/wosim-go/wosim/internal/storage"
)

func openTemp(t *testing.T) *storage.Database {
	t.Helper()
	path := filepath.Join(t.TempDir(), "world.db")
	db, err := storage.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestWorldSaveLoadRoundTripAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "world.db")

	db, err := storage.Open(path)
	require.NoError(t, err)

	pid := uuid.New()
	err = db.Update(func(tx *storage.Txn, root *storage.Extent) error {
		w := New(Configuration{RegionSize: 32, Size: 4096, StaticDistance: 2, FullDistance: 1, TickPeriodMillis: 50})

		npc := NPCRecord{ID: w.NextNPCID(), Home: protocol.RegionPos{X: 1, Z: -1}, T: protocol.Transform{Rot: protocol.Quat{W: 1}}}
		require.NoError(t, w.NPCs.Insert(tx, npc))

		rec, err := w.AddPlayer(tx, pid)
		require.NoError(t, err)
		require.Equal(t, uint32(1), rec.ID)

		pc := PCRecord{ID: w.NextPCID(), Player: pid, Home: protocol.RegionPos{X: 1, Z: -1}}
		require.NoError(t, w.PCs.Insert(tx, pc))

		return w.Save(tx, root)
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db2, err := storage.Open(path)
	require.NoError(t, err)
	defer db2.Close()

	err = db2.View(func(tx *storage.Txn, root storage.Extent) error {
		w, err := Load(tx, root)
		require.NoError(t, err)

		require.Equal(t, uint32(32), uint32(w.Config.RegionSize))
		require.EqualValues(t, 1, w.NPCs.Len())
		require.EqualValues(t, 1, w.PCs.Len())
		require.EqualValues(t, 1, w.Players.Len())

		rec, ok, err := w.LookupPlayer(tx, pid)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, pid, rec.UUID)

		npc, ok, err := w.NPCs.Get(tx, 1)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, protocol.RegionPos{X: 1, Z: -1}, npc.Home)

		return nil
	})
	require.NoError(t, err)
}

func TestAddPlayerRejectsDuplicateUUID(t *testing.T) {
	db := openTemp(t)
	pid := uuid.New()

	err := db.Update(func(tx *storage.Txn, root *storage.Extent) error {
		w := New(Configuration{})
		if _, err := w.AddPlayer(tx, pid); err != nil {
			return err
		}
		_, err := w.AddPlayer(tx, pid)
		require.ErrorIs(t, err, ErrPlayerExists)
		return w.Save(tx, root)
	})
	require.NoError(t, err)
}

func TestSoVSwapRemoveKeepsRemainingEntriesAddressable(t *testing.T) {
	db := openTemp(t)

	err := db.Update(func(tx *storage.Txn, root *storage.Extent) error {
		w := New(Configuration{})
		for i := uint32(1); i <= 5; i++ {
			require.NoError(t, w.NPCs.Insert(tx, NPCRecord{ID: i}))
		}

		ok, err := w.NPCs.Remove(tx, 2)
		require.NoError(t, err)
		require.True(t, ok)
		require.EqualValues(t, 4, w.NPCs.Len())

		for _, id := range []uint32{1, 3, 4, 5} {
			v, ok, err := w.NPCs.Get(tx, id)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, id, v.ID)
		}
		_, ok, err = w.NPCs.Get(tx, 2)
		require.NoError(t, err)
		require.False(t, ok)

		return w.Save(tx, root)
	})
	require.NoError(t, err)
}

func TestPlayerSlotsRoundTripThroughEncoding(t *testing.T) {
	rec := PlayerRecord{ID: 7, UUID: uuid.New()}
	rec.Slots[0] = 42
	rec.Slots[protocol.SlotCount-1] = 99

	b := make([]byte, playerRecordSize)
	encodePlayer(rec, b)
	got := decodePlayer(b)

	require.Equal(t, rec, got)
}

func TestTransformRoundTripsThroughEncoding(t *testing.T) {
	tr := protocol.Transform{
		Pos: protocol.Vec3{X: 1.5, Y: -2.25, Z: 3},
		Rot: protocol.Quat{X: 0.1, Y: 0.2, Z: 0.3, W: 0.9},
	}
	b := make([]byte, 28)
	encodeTransform(tr, b)
	require.Equal(t, tr, decodeTransform(b))
}
