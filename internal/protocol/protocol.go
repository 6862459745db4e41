// Package protocol defines the wire messages exchanged between server
// and client over the transport layer: a 4-byte message id prefix
// followed by a bincode-equivalent body, encoded here with
// encoding/binary the way the storage engine encodes its own header
// (no reflection-driven codec is in the corpus for this wire format).
package protocol

import "github.com/google/uuid"

// Notification ids, server to client.
const (
	NotifyGlobalSetup     uint32 = 0
	NotifyStaticSetup     uint32 = 1
	NotifyDynamicSetup    uint32 = 2
	NotifyGlobalUpdates   uint32 = 3
	NotifyStaticUpdates   uint32 = 4
	NotifyDynamicUpdates  uint32 = 5
	NotifyEnter           uint32 = 6
	NotifyStaticTeardown  uint32 = 7
	NotifyDynamicTeardown uint32 = 8
)

// Request ids, client to server.
const (
	ReqDisconnect   uint32 = 0
	ReqWorldInfo    uint32 = 1
	ReqSlots        uint32 = 2
	ReqCreate       uint32 = 3
	ReqDelete       uint32 = 4
	ReqEnter      uint32 = 5
	ReqExit       uint32 = 6
	ReqUpdateSelf uint32 = 7
)

// CloseReason is a numeric code sent on connection close so the client
// can render a specific message instead of a bare disconnect.
type CloseReason uint32

const (
	CloseIllegalSlot     CloseReason = 1001
	CloseSlotAlreadyBound CloseReason = 1002
	CloseSlotNotBound    CloseReason = 1003
	CloseNotInGame       CloseReason = 1004
	CloseAlreadyInGame   CloseReason = 1005
)

func (r CloseReason) String() string {
	switch r {
	case CloseIllegalSlot:
		return "illegal slot"
	case CloseSlotAlreadyBound:
		return "slot already bound"
	case CloseSlotNotBound:
		return "slot not bound"
	case CloseNotInGame:
		return "not in game"
	case CloseAlreadyInGame:
		return "already in game"
	default:
		return "unknown"
	}
}

// SlotCount bounds the fixed-size slot array returned by ReqSlots.
const SlotCount = 8

// RegionPos identifies a region tile by its integer grid coordinates.
type RegionPos struct {
	X, Z int32
}

// Vec3 is a position or scale in world space.
type Vec3 struct {
	X, Y, Z float32
}

// Quat is a rotation.
type Quat struct {
	X, Y, Z, W float32
}

// Transform pairs a position with a rotation, the unit every dynamic
// update and interpolation sample carries.
type Transform struct {
	Pos Vec3
	Rot Quat
}

// ConnectToken is the UTF-8 JSON payload sent on the client's initial
// unidirectional stream (§6): either password/secret auth fields or a
// signed bearer token for dedicated mode.
type ConnectToken struct {
	UUID     uuid.UUID `json:"uuid"`
	Username string    `json:"username"`
	Password string    `json:"password,omitempty"`
	Secret   string    `json:"secret,omitempty"`
	Bearer   string    `json:"bearer,omitempty"`
}

// Entity is one NPC or PC transform sent in a DynamicSetup bundle.
type Entity struct {
	ID  uint32
	T   Transform
}

// DynamicUpdateKind distinguishes the three update variants a region
// can emit for a moving entity between setup and teardown.
type DynamicUpdateKind uint8

const (
	DynamicEnter DynamicUpdateKind = iota
	DynamicExit
	DynamicUpdate
)

// DynamicUpdateEntry is one element of a DynamicUpdates bundle.
type DynamicUpdateEntry struct {
	Kind DynamicUpdateKind
	ID   uint32
	T    Transform // meaningful for Enter and Update
}

// StaticSetupBody is the payload of notification 1.
type StaticSetupBody struct {
	Region     RegionPos
	Heights    []byte
	RegionSize float32
}

// DynamicSetupBody is the payload of notification 2.
type DynamicSetupBody struct {
	Region RegionPos
	NPCs   []Entity
	PCs    []Entity
	Tick   uint64
}

// DynamicUpdatesBody is the payload of notification 5.
type DynamicUpdatesBody struct {
	Region  RegionPos
	Entries []DynamicUpdateEntry
	Tick    uint64
}

// WorldEnterBody is the payload of notification 6, the server's
// welcome packet once a PC has been placed in the world.
type WorldEnterBody struct {
	SelfID           uint32
	Pos              Vec3
	Rotation         Quat
	Size             float32
	RegionSize       float32
	MaxActiveRegions uint32
	TickDeltaMillis  uint32
	Tick             uint64
}

// WorldInfoReply answers ReqWorldInfo.
type WorldInfoReply struct {
	RegionSize     float32
	Size           float32
	StaticDistance uint32
}

// UpdateSelfBody is the payload of request 7, the client's
// self-reported pose each tick while playing.
type UpdateSelfBody struct {
	Pos      Vec3
	Rotation Quat
}

// SlotsReply answers ReqSlots: the pc id bound to each of the
// player's character slots, 0 meaning empty.
type SlotsReply struct {
	Slots [SlotCount]uint32
}

// SlotRequest is the payload shared by ReqCreate, ReqDelete, and
// ReqEnter: the 0-based slot index the request applies to.
type SlotRequest struct {
	Slot uint32
}

// CreateReply answers ReqCreate with the newly created pc's id.
type CreateReply struct {
	PCID uint32
}
