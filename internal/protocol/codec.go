package protocol

import (
	"encoding/binary"
	"errors"
)

// ErrShortBuffer is returned by decode helpers when fewer bytes remain
// than the field being read requires.
var ErrShortBuffer = errors.New("protocol: short buffer")

// Writer accumulates a message body with the same manual little-endian
// encoding the storage engine's header uses, rather than a reflection
// based codec.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{buf: make([]byte, 0, 128)} }

func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *Writer) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *Writer) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *Writer) f32(v float32) { w.u32(float32bits(v)) }

func (w *Writer) bytes(v []byte) {
	w.u32(uint32(len(v)))
	w.buf = append(w.buf, v...)
}

func (w *Writer) str(v string) { w.bytes([]byte(v)) }

func (w *Writer) vec3(v Vec3) { w.f32(v.X); w.f32(v.Y); w.f32(v.Z) }
func (w *Writer) quat(v Quat) { w.f32(v.X); w.f32(v.Y); w.f32(v.Z); w.f32(v.W) }
func (w *Writer) transform(v Transform) {
	w.vec3(v.Pos)
	w.quat(v.Rot)
}
func (w *Writer) regionPos(v RegionPos) {
	w.u32(uint32(int32ToBits(v.X)))
	w.u32(uint32(int32ToBits(v.Z)))
}

// Reader walks a decode cursor over a received body, same layout the
// Writer produces.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

func (r *Reader) remaining() int { return len(r.buf) - r.pos }

func (r *Reader) u8() (uint8, error) {
	if r.remaining() < 1 {
		return 0, ErrShortBuffer
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) u32() (uint32, error) {
	if r.remaining() < 4 {
		return 0, ErrShortBuffer
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) u64() (uint64, error) {
	if r.remaining() < 8 {
		return 0, ErrShortBuffer
	}
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) f32() (float32, error) {
	v, err := r.u32()
	if err != nil {
		return 0, err
	}
	return bitsToFloat32(v), nil
}

func (r *Reader) bytes() ([]byte, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	if r.remaining() < int(n) {
		return nil, ErrShortBuffer
	}
	v := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return v, nil
}

func (r *Reader) str() (string, error) {
	b, err := r.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) vec3() (Vec3, error) {
	x, err := r.f32()
	if err != nil {
		return Vec3{}, err
	}
	y, err := r.f32()
	if err != nil {
		return Vec3{}, err
	}
	z, err := r.f32()
	if err != nil {
		return Vec3{}, err
	}
	return Vec3{X: x, Y: y, Z: z}, nil
}

func (r *Reader) quat() (Quat, error) {
	x, err := r.f32()
	if err != nil {
		return Quat{}, err
	}
	y, err := r.f32()
	if err != nil {
		return Quat{}, err
	}
	z, err := r.f32()
	if err != nil {
		return Quat{}, err
	}
	w, err := r.f32()
	if err != nil {
		return Quat{}, err
	}
	return Quat{X: x, Y: y, Z: z, W: w}, nil
}

func (r *Reader) transform() (Transform, error) {
	pos, err := r.vec3()
	if err != nil {
		return Transform{}, err
	}
	rot, err := r.quat()
	if err != nil {
		return Transform{}, err
	}
	return Transform{Pos: pos, Rot: rot}, nil
}

func (r *Reader) regionPos() (RegionPos, error) {
	x, err := r.u32()
	if err != nil {
		return RegionPos{}, err
	}
	z, err := r.u32()
	if err != nil {
		return RegionPos{}, err
	}
	return RegionPos{X: bitsToInt32(x), Z: bitsToInt32(z)}, nil
}

// EncodeStaticSetup encodes notification 1's body.
func EncodeStaticSetup(b StaticSetupBody) []byte {
	w := NewWriter()
	w.regionPos(b.Region)
	w.bytes(b.Heights)
	w.f32(b.RegionSize)
	return w.Bytes()
}

func DecodeStaticSetup(buf []byte) (StaticSetupBody, error) {
	r := NewReader(buf)
	region, err := r.regionPos()
	if err != nil {
		return StaticSetupBody{}, err
	}
	heights, err := r.bytes()
	if err != nil {
		return StaticSetupBody{}, err
	}
	size, err := r.f32()
	if err != nil {
		return StaticSetupBody{}, err
	}
	return StaticSetupBody{Region: region, Heights: heights, RegionSize: size}, nil
}

func encodeEntities(w *Writer, entities []Entity) {
	w.u32(uint32(len(entities)))
	for _, e := range entities {
		w.u32(e.ID)
		w.transform(e.T)
	}
}

func decodeEntities(r *Reader) ([]Entity, error) {
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]Entity, n)
	for i := range out {
		id, err := r.u32()
		if err != nil {
			return nil, err
		}
		t, err := r.transform()
		if err != nil {
			return nil, err
		}
		out[i] = Entity{ID: id, T: t}
	}
	return out, nil
}

// EncodeDynamicSetup encodes notification 2's body.
func EncodeDynamicSetup(b DynamicSetupBody) []byte {
	w := NewWriter()
	w.regionPos(b.Region)
	encodeEntities(w, b.NPCs)
	encodeEntities(w, b.PCs)
	w.u64(b.Tick)
	return w.Bytes()
}

func DecodeDynamicSetup(buf []byte) (DynamicSetupBody, error) {
	r := NewReader(buf)
	region, err := r.regionPos()
	if err != nil {
		return DynamicSetupBody{}, err
	}
	npcs, err := decodeEntities(r)
	if err != nil {
		return DynamicSetupBody{}, err
	}
	pcs, err := decodeEntities(r)
	if err != nil {
		return DynamicSetupBody{}, err
	}
	tick, err := r.u64()
	if err != nil {
		return DynamicSetupBody{}, err
	}
	return DynamicSetupBody{Region: region, NPCs: npcs, PCs: pcs, Tick: tick}, nil
}

// EncodeDynamicUpdates encodes notification 5's body.
func EncodeDynamicUpdates(b DynamicUpdatesBody) []byte {
	w := NewWriter()
	w.regionPos(b.Region)
	w.u32(uint32(len(b.Entries)))
	for _, e := range b.Entries {
		w.u8(uint8(e.Kind))
		w.u32(e.ID)
		if e.Kind != DynamicExit {
			w.transform(e.T)
		}
	}
	w.u64(b.Tick)
	return w.Bytes()
}

func DecodeDynamicUpdates(buf []byte) (DynamicUpdatesBody, error) {
	r := NewReader(buf)
	region, err := r.regionPos()
	if err != nil {
		return DynamicUpdatesBody{}, err
	}
	n, err := r.u32()
	if err != nil {
		return DynamicUpdatesBody{}, err
	}
	entries := make([]DynamicUpdateEntry, n)
	for i := range entries {
		kind, err := r.u8()
		if err != nil {
			return DynamicUpdatesBody{}, err
		}
		id, err := r.u32()
		if err != nil {
			return DynamicUpdatesBody{}, err
		}
		var t Transform
		if DynamicUpdateKind(kind) != DynamicExit {
			t, err = r.transform()
			if err != nil {
				return DynamicUpdatesBody{}, err
			}
		}
		entries[i] = DynamicUpdateEntry{Kind: DynamicUpdateKind(kind), ID: id, T: t}
	}
	tick, err := r.u64()
	if err != nil {
		return DynamicUpdatesBody{}, err
	}
	return DynamicUpdatesBody{Region: region, Entries: entries, Tick: tick}, nil
}

// EncodeWorldEnter encodes notification 6's body.
func EncodeWorldEnter(b WorldEnterBody) []byte {
	w := NewWriter()
	w.u32(b.SelfID)
	w.vec3(b.Pos)
	w.quat(b.Rotation)
	w.f32(b.Size)
	w.f32(b.RegionSize)
	w.u32(b.MaxActiveRegions)
	w.u32(b.TickDeltaMillis)
	w.u64(b.Tick)
	return w.Bytes()
}

func DecodeWorldEnter(buf []byte) (WorldEnterBody, error) {
	r := NewReader(buf)
	selfID, err := r.u32()
	if err != nil {
		return WorldEnterBody{}, err
	}
	pos, err := r.vec3()
	if err != nil {
		return WorldEnterBody{}, err
	}
	rot, err := r.quat()
	if err != nil {
		return WorldEnterBody{}, err
	}
	size, err := r.f32()
	if err != nil {
		return WorldEnterBody{}, err
	}
	regionSize, err := r.f32()
	if err != nil {
		return WorldEnterBody{}, err
	}
	maxActive, err := r.u32()
	if err != nil {
		return WorldEnterBody{}, err
	}
	tickDelta, err := r.u32()
	if err != nil {
		return WorldEnterBody{}, err
	}
	tick, err := r.u64()
	if err != nil {
		return WorldEnterBody{}, err
	}
	return WorldEnterBody{
		SelfID: selfID, Pos: pos, Rotation: rot, Size: size,
		RegionSize: regionSize, MaxActiveRegions: maxActive,
		TickDeltaMillis: tickDelta, Tick: tick,
	}, nil
}

// EncodeRegionPos / DecodeRegionPos cover the bare-RegionPos payloads
// of StaticTeardown and DynamicTeardown (notifications 7 and 8).
func EncodeRegionPos(p RegionPos) []byte {
	w := NewWriter()
	w.regionPos(p)
	return w.Bytes()
}

func DecodeRegionPos(buf []byte) (RegionPos, error) {
	return NewReader(buf).regionPos()
}

// EncodeUpdateSelf encodes request 7's body.
func EncodeUpdateSelf(b UpdateSelfBody) []byte {
	w := NewWriter()
	w.vec3(b.Pos)
	w.quat(b.Rotation)
	return w.Bytes()
}

func DecodeUpdateSelf(buf []byte) (UpdateSelfBody, error) {
	r := NewReader(buf)
	pos, err := r.vec3()
	if err != nil {
		return UpdateSelfBody{}, err
	}
	rot, err := r.quat()
	if err != nil {
		return UpdateSelfBody{}, err
	}
	return UpdateSelfBody{Pos: pos, Rotation: rot}, nil
}

// EncodeWorldInfoReply encodes the answer to ReqWorldInfo.
func EncodeWorldInfoReply(b WorldInfoReply) []byte {
	w := NewWriter()
	w.f32(b.RegionSize)
	w.f32(b.Size)
	w.u32(b.StaticDistance)
	return w.Bytes()
}

func DecodeWorldInfoReply(buf []byte) (WorldInfoReply, error) {
	r := NewReader(buf)
	regionSize, err := r.f32()
	if err != nil {
		return WorldInfoReply{}, err
	}
	size, err := r.f32()
	if err != nil {
		return WorldInfoReply{}, err
	}
	staticDistance, err := r.u32()
	if err != nil {
		return WorldInfoReply{}, err
	}
	return WorldInfoReply{RegionSize: regionSize, Size: size, StaticDistance: staticDistance}, nil
}

// EncodeSlots encodes the answer to ReqSlots.
func EncodeSlots(b SlotsReply) []byte {
	w := NewWriter()
	for _, s := range b.Slots {
		w.u32(s)
	}
	return w.Bytes()
}

func DecodeSlots(buf []byte) (SlotsReply, error) {
	r := NewReader(buf)
	var out SlotsReply
	for i := range out.Slots {
		v, err := r.u32()
		if err != nil {
			return SlotsReply{}, err
		}
		out.Slots[i] = v
	}
	return out, nil
}

// EncodeSlotRequest encodes the shared payload of ReqCreate, ReqDelete,
// and ReqEnter.
func EncodeSlotRequest(b SlotRequest) []byte {
	w := NewWriter()
	w.u32(b.Slot)
	return w.Bytes()
}

func DecodeSlotRequest(buf []byte) (SlotRequest, error) {
	r := NewReader(buf)
	slot, err := r.u32()
	if err != nil {
		return SlotRequest{}, err
	}
	return SlotRequest{Slot: slot}, nil
}

// EncodeCreateReply encodes the answer to ReqCreate.
func EncodeCreateReply(b CreateReply) []byte {
	w := NewWriter()
	w.u32(b.PCID)
	return w.Bytes()
}

func DecodeCreateReply(buf []byte) (CreateReply, error) {
	r := NewReader(buf)
	id, err := r.u32()
	if err != nil {
		return CreateReply{}, err
	}
	return CreateReply{PCID: id}, nil
}
