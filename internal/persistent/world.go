package persistent

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/google/uuid"
	"github.com/wosim-go/wosim/internal/protocol"
	"github.com/wosim-go/wosim/internal/storage"
)

// ErrPlayerExists is returned by World.AddPlayer when the given uuid is
// already registered.
var ErrPlayerExists = errors.New("persistent: player already exists")

func floatBits(f float32) uint32 { return math.Float32bits(f) }
func bitsFloat(b uint32) float32 { return math.Float32frombits(b) }

// Configuration holds the world parameters answered by ReqWorldInfo
// and sent in WorldEnter.
type Configuration struct {
	RegionSize     float32
	Size           float32
	StaticDistance uint32
	FullDistance   uint32
	TickPeriodMillis uint32
}

const configurationSize = 4 + 4 + 4 + 4 + 4

func (c Configuration) encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], floatBits(c.RegionSize))
	binary.LittleEndian.PutUint32(b[4:8], floatBits(c.Size))
	binary.LittleEndian.PutUint32(b[8:12], c.StaticDistance)
	binary.LittleEndian.PutUint32(b[12:16], c.FullDistance)
	binary.LittleEndian.PutUint32(b[16:20], c.TickPeriodMillis)
}

func decodeConfiguration(b []byte) Configuration {
	return Configuration{
		RegionSize:       bitsFloat(binary.LittleEndian.Uint32(b[0:4])),
		Size:             bitsFloat(binary.LittleEndian.Uint32(b[4:8])),
		StaticDistance:   binary.LittleEndian.Uint32(b[8:12]),
		FullDistance:     binary.LittleEndian.Uint32(b[12:16]),
		TickPeriodMillis: binary.LittleEndian.Uint32(b[16:20]),
	}
}

// NPCRecord is one persisted NPC: its home region (for migration and
// dynamic-setup scoping) and its last known transform.
type NPCRecord struct {
	ID   uint32
	Home protocol.RegionPos
	T    protocol.Transform
}

const npcRecordSize = 4 + 8 + 28 // id, region pos, transform (vec3+quat)

func encodeNPC(v NPCRecord, b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], v.ID)
	encodeRegionPos(v.Home, b[4:12])
	encodeTransform(v.T, b[12:npcRecordSize])
}

func decodeNPC(b []byte) NPCRecord {
	return NPCRecord{
		ID:   binary.LittleEndian.Uint32(b[0:4]),
		Home: decodeRegionPos(b[4:12]),
		T:    decodeTransform(b[12:npcRecordSize]),
	}
}

// PCRecord is one persisted player character.
type PCRecord struct {
	ID     uint32
	Player uuid.UUID
	Home   protocol.RegionPos
	T      protocol.Transform
}

const pcRecordSize = 4 + 16 + 8 + 28

func encodePC(v PCRecord, b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], v.ID)
	copy(b[4:20], v.Player[:])
	encodeRegionPos(v.Home, b[20:28])
	encodeTransform(v.T, b[28:pcRecordSize])
}

func decodePC(b []byte) PCRecord {
	var id uuid.UUID
	copy(id[:], b[4:20])
	return PCRecord{
		ID:     binary.LittleEndian.Uint32(b[0:4]),
		Player: id,
		Home:   decodeRegionPos(b[20:28]),
		T:      decodeTransform(b[28:pcRecordSize]),
	}
}

// PlayerRecord is one registered player account: a stable uuid (the
// login identity, indexed via PlayerIndex) plus a numeric id (the SoV
// swap-remove key) and the pc id bound to each of its character slots
// (0 = empty).
type PlayerRecord struct {
	ID    uint32
	UUID  uuid.UUID
	Slots [protocol.SlotCount]uint32
}

const playerRecordSize = 4 + 16 + protocol.SlotCount*4

func encodePlayer(v PlayerRecord, b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], v.ID)
	copy(b[4:20], v.UUID[:])
	for i, s := range v.Slots {
		binary.LittleEndian.PutUint32(b[20+i*4:24+i*4], s)
	}
}

func decodePlayer(b []byte) PlayerRecord {
	var v PlayerRecord
	v.ID = binary.LittleEndian.Uint32(b[0:4])
	copy(v.UUID[:], b[4:20])
	for i := range v.Slots {
		v.Slots[i] = binary.LittleEndian.Uint32(b[20+i*4 : 24+i*4])
	}
	return v
}

// RegionRecord is the minimal persisted metadata for a world region
// tile; live observer/update state is never persisted and lives only
// in the region manager (C8).
type RegionRecord struct {
	Pos protocol.RegionPos
}

const regionRecordSize = 8

func encodeRegion(v RegionRecord, b []byte)  { encodeRegionPos(v.Pos, b[0:8]) }
func decodeRegion(b []byte) RegionRecord     { return RegionRecord{Pos: decodeRegionPos(b[0:8])} }

// World is the root persisted object: `world.db`'s single root value
// (§6). Heights is a flat row-major heightmap covering the whole
// world at one byte per sample; PlayerIndex maps a 16-byte player
// uuid to its PlayerRecord.ID (the Players key) for O(log n) login
// lookup.
type World struct {
	Config Configuration
	Heights storage.Vector // byte-elements

	NPCs    *SoV[NPCRecord]
	PCs     *SoV[PCRecord]
	Players *SoV[PlayerRecord]

	PlayerIndex storage.Tree // uuid(16) -> PlayerRecord.ID(4)
	Regions     storage.Vector

	nextNPCID    uint32
	nextPCID     uint32
	nextPlayerID uint32
}

// New returns an empty world with the given configuration, ready to
// be grown by the first Update.
func New(cfg Configuration) *World {
	return &World{
		Config:      cfg,
		Heights:     storage.NewVector(1),
		NPCs:        NewSoV(npcRecordSize, func(v NPCRecord) uint32 { return v.ID }, encodeNPC, decodeNPC),
		PCs:         NewSoV(pcRecordSize, func(v PCRecord) uint32 { return v.ID }, encodePC, decodePC),
		Players:     NewSoV(playerRecordSize, func(v PlayerRecord) uint32 { return v.ID }, encodePlayer, decodePlayer),
		PlayerIndex: storage.NewTree(16, 4),
		Regions:     storage.NewVector(regionRecordSize),
	}
}

// AddPlayer registers a new player account under id, allocating its
// SoV key and indexing it in PlayerIndex for login lookup. Returns
// ErrPlayerExists if id is already registered.
func (w *World) AddPlayer(tx *storage.Txn, id uuid.UUID) (PlayerRecord, error) {
	if _, ok, err := w.LookupPlayer(tx, id); err != nil {
		return PlayerRecord{}, err
	} else if ok {
		return PlayerRecord{}, ErrPlayerExists
	}

	w.nextPlayerID++
	rec := PlayerRecord{ID: w.nextPlayerID, UUID: id}
	if err := w.Players.Insert(tx, rec); err != nil {
		return PlayerRecord{}, err
	}
	var key [16]byte
	copy(key[:], id[:])
	var val [4]byte
	binary.LittleEndian.PutUint32(val[:], rec.ID)
	if err := w.PlayerIndex.Set(tx, key[:], val[:]); err != nil {
		return PlayerRecord{}, err
	}
	return rec, nil
}

// LookupPlayer resolves a login uuid to its persisted record.
func (w *World) LookupPlayer(tx *storage.Txn, id uuid.UUID) (PlayerRecord, bool, error) {
	var key [16]byte
	copy(key[:], id[:])
	var val [4]byte
	found, err := w.PlayerIndex.Get(tx, key[:], val[:])
	if err != nil || !found {
		return PlayerRecord{}, false, err
	}
	return w.Players.Get(tx, binary.LittleEndian.Uint32(val[:]))
}

// NextNPCID returns the next id to assign a newly spawned NPC.
func (w *World) NextNPCID() uint32 { w.nextNPCID++; return w.nextNPCID }

// NextPCID returns the next id to assign a newly created PC.
func (w *World) NextPCID() uint32 { w.nextPCID++; return w.nextPCID }

// vecHandleSize is the encoded width of one putVecHandle/getVecHandle
// pair: extent root page, extent byte length, element count.
const vecHandleSize = 4 + 8 + 8

// rootLayoutSize is the fixed-size handle stored at offset 0 of the
// database's root extent: enough to relocate every collection above
// after reopening the file (§6), plus the three monotonic id counters
// that must survive a restart so freshly allocated NPC/PC/player ids
// never collide with ones already persisted.
const rootLayoutSize = configurationSize +
	vecHandleSize + // heights
	vecHandleSize + // npcs
	vecHandleSize + // pcs
	vecHandleSize + // players
	4 + // player index root
	vecHandleSize + // regions
	4 + 4 + 4 // nextNPCID, nextPCID, nextPlayerID

// Save encodes the world's root layout into the database's root
// extent. Call after every mutation, inside the same Update.
func (w *World) Save(tx *storage.Txn, root *storage.Extent) error {
	b := make([]byte, rootLayoutSize)
	off := 0
	w.Config.encode(b[off : off+configurationSize])
	off += configurationSize

	off = putVecHandle(b, off, w.Heights.Ext, w.Heights.Len)
	off = putVecHandle(b, off, w.NPCs.vec.Ext, w.NPCs.vec.Len)
	off = putVecHandle(b, off, w.PCs.vec.Ext, w.PCs.vec.Len)
	off = putVecHandle(b, off, w.Players.vec.Ext, w.Players.vec.Len)

	binary.LittleEndian.PutUint32(b[off:off+4], uint32(w.PlayerIndex.Root))
	off += 4

	off = putVecHandle(b, off, w.Regions.Ext, w.Regions.Len)

	binary.LittleEndian.PutUint32(b[off:off+4], w.nextNPCID)
	off += 4
	binary.LittleEndian.PutUint32(b[off:off+4], w.nextPCID)
	off += 4
	binary.LittleEndian.PutUint32(b[off:off+4], w.nextPlayerID)
	off += 4

	return tx.WriteExtent(root, 0, b)
}

// Load decodes the world's root layout from the database's root
// extent, then rebuilds the in-memory id→index maps every SoV needs
// (never persisted, see rebuildIndex).
func Load(tx *storage.Txn, root storage.Extent) (*World, error) {
	if root.Len < rootLayoutSize {
		return New(Configuration{}), nil
	}
	b := make([]byte, rootLayoutSize)
	if err := tx.ReadExtent(root, 0, b); err != nil {
		return nil, err
	}

	w := &World{}
	off := 0
	w.Config = decodeConfiguration(b[off : off+configurationSize])
	off += configurationSize

	heightsExt, heightsLen := getVecHandle(b, &off)
	w.Heights = storage.Vector{Ext: heightsExt, Len: heightsLen, Elem: 1}

	npcsExt, npcsLen := getVecHandle(b, &off)
	w.NPCs = NewSoV(npcRecordSize, func(v NPCRecord) uint32 { return v.ID }, encodeNPC, decodeNPC)
	w.NPCs.vec = storage.Vector{Ext: npcsExt, Len: npcsLen, Elem: npcRecordSize}

	pcsExt, pcsLen := getVecHandle(b, &off)
	w.PCs = NewSoV(pcRecordSize, func(v PCRecord) uint32 { return v.ID }, encodePC, decodePC)
	w.PCs.vec = storage.Vector{Ext: pcsExt, Len: pcsLen, Elem: pcRecordSize}

	playersExt, playersLen := getVecHandle(b, &off)
	w.Players = NewSoV(playerRecordSize, func(v PlayerRecord) uint32 { return v.ID }, encodePlayer, decodePlayer)
	w.Players.vec = storage.Vector{Ext: playersExt, Len: playersLen, Elem: playerRecordSize}

	w.PlayerIndex = storage.Tree{Root: storage.PageNum(binary.LittleEndian.Uint32(b[off : off+4])), KeySize: 16, ValSize: 4}
	off += 4

	regionsExt, regionsLen := getVecHandle(b, &off)
	w.Regions = storage.Vector{Ext: regionsExt, Len: regionsLen, Elem: regionRecordSize}

	w.nextNPCID = binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	w.nextPCID = binary.LittleEndian.Uint32(b[off : off+4])
	off += 4
	w.nextPlayerID = binary.LittleEndian.Uint32(b[off : off+4])
	off += 4

	if err := w.NPCs.rebuildIndex(tx); err != nil {
		return nil, err
	}
	if err := w.PCs.rebuildIndex(tx); err != nil {
		return nil, err
	}
	if err := w.Players.rebuildIndex(tx); err != nil {
		return nil, err
	}

	return w, nil
}

func putVecHandle(b []byte, off int, ext storage.Extent, length uint64) int {
	binary.LittleEndian.PutUint32(b[off:off+4], uint32(ext.Root))
	binary.LittleEndian.PutUint64(b[off+4:off+12], ext.Len)
	binary.LittleEndian.PutUint64(b[off+12:off+20], length)
	return off + 20
}

func getVecHandle(b []byte, off *int) (storage.Extent, uint64) {
	ext := storage.Extent{
		Root: storage.PageNum(binary.LittleEndian.Uint32(b[*off : *off+4])),
		Len:  binary.LittleEndian.Uint64(b[*off+4 : *off+12]),
	}
	length := binary.LittleEndian.Uint64(b[*off+12 : *off+20])
	*off += 20
	return ext, length
}

// SampleHeight bilinearly samples the world heightmap at continuous
// world coordinates (x, z), clamping both axes to the map bounds
// (§4.9 NPC update: "bilinearly sample the heightmap at (x,z)
// (clamped)").
func (w *World) SampleHeight(tx *storage.Txn, x, z float32) (float32, error) {
	worldSamples := int(w.Config.Size)
	if worldSamples <= 1 {
		return 0, nil
	}
	clamp := func(v float32) float32 {
		if v < 0 {
			return 0
		}
		if v > float32(worldSamples-1) {
			return float32(worldSamples - 1)
		}
		return v
	}
	x, z = clamp(x), clamp(z)

	x0, z0 := int(x), int(z)
	x1, z1 := x0+1, z0+1
	if x1 > worldSamples-1 {
		x1 = worldSamples - 1
	}
	if z1 > worldSamples-1 {
		z1 = worldSamples - 1
	}
	fx, fz := x-float32(x0), z-float32(z0)

	at := func(sx, sz int) (float32, error) {
		idx := uint64(sz*worldSamples + sx)
		if idx >= w.Heights.Len {
			return 0, nil
		}
		var b [1]byte
		if err := w.Heights.Get(tx, idx, b[:]); err != nil {
			return 0, err
		}
		return float32(b[0]), nil
	}

	h00, err := at(x0, z0)
	if err != nil {
		return 0, err
	}
	h10, err := at(x1, z0)
	if err != nil {
		return 0, err
	}
	h01, err := at(x0, z1)
	if err != nil {
		return 0, err
	}
	h11, err := at(x1, z1)
	if err != nil {
		return 0, err
	}

	top := h00 + (h10-h00)*fx
	bottom := h01 + (h11-h01)*fx
	return top + (bottom-top)*fz, nil
}

// RegionOf returns the tile containing world coordinates (x, z).
func (w *World) RegionOf(x, z float32) protocol.RegionPos {
	rs := w.Config.RegionSize
	if rs <= 0 {
		return protocol.RegionPos{}
	}
	return protocol.RegionPos{
		X: int32(math.Floor(float64(x / rs))),
		Z: int32(math.Floor(float64(z / rs))),
	}
}

// SliceHeights extracts the (region_size+1)^2-byte heightmap patch for
// pos out of the world's flat row-major heightmap (§3 "Region
// (persistent side)"). Samples outside the world bounds (edge regions)
// are left zero.
func (w *World) SliceHeights(tx *storage.Txn, pos protocol.RegionPos) ([]byte, error) {
	regionSamples := int(w.Config.RegionSize)
	worldSamples := int(w.Config.Size)
	side := regionSamples + 1
	out := make([]byte, side*side)

	startX := int(pos.X) * regionSamples
	startZ := int(pos.Z) * regionSamples
	var sample [1]byte
	for z := 0; z < side; z++ {
		wz := startZ + z
		if wz < 0 || wz >= worldSamples {
			continue
		}
		for x := 0; x < side; x++ {
			wx := startX + x
			if wx < 0 || wx >= worldSamples {
				continue
			}
			idx := uint64(wz*worldSamples + wx)
			if idx >= w.Heights.Len {
				continue
			}
			if err := w.Heights.Get(tx, idx, sample[:]); err != nil {
				return nil, err
			}
			out[z*side+x] = sample[0]
		}
	}
	return out, nil
}

func encodeRegionPos(p protocol.RegionPos, b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], uint32(p.X))
	binary.LittleEndian.PutUint32(b[4:8], uint32(p.Z))
}

func decodeRegionPos(b []byte) protocol.RegionPos {
	return protocol.RegionPos{
		X: int32(binary.LittleEndian.Uint32(b[0:4])),
		Z: int32(binary.LittleEndian.Uint32(b[4:8])),
	}
}

func encodeTransform(t protocol.Transform, b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], floatBits(t.Pos.X))
	binary.LittleEndian.PutUint32(b[4:8], floatBits(t.Pos.Y))
	binary.LittleEndian.PutUint32(b[8:12], floatBits(t.Pos.Z))
	binary.LittleEndian.PutUint32(b[12:16], floatBits(t.Rot.X))
	binary.LittleEndian.PutUint32(b[16:20], floatBits(t.Rot.Y))
	binary.LittleEndian.PutUint32(b[20:24], floatBits(t.Rot.Z))
	binary.LittleEndian.PutUint32(b[24:28], floatBits(t.Rot.W))
}

func decodeTransform(b []byte) protocol.Transform {
	return protocol.Transform{
		Pos: protocol.Vec3{
			X: bitsFloat(binary.LittleEndian.Uint32(b[0:4])),
			Y: bitsFloat(binary.LittleEndian.Uint32(b[4:8])),
			Z: bitsFloat(binary.LittleEndian.Uint32(b[8:12])),
		},
		Rot: protocol.Quat{
			X: bitsFloat(binary.LittleEndian.Uint32(b[12:16])),
			Y: bitsFloat(binary.LittleEndian.Uint32(b[16:20])),
			Z: bitsFloat(binary.LittleEndian.Uint32(b[20:24])),
			W: bitsFloat(binary.LittleEndian.Uint32(b[24:28])),
		},
	}
}
