package storage

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// formatTag identifies the file format. Stored verbatim in the first
// formatTagSize bytes of the header page; Open refuses to continue if
// it does not match.
const formatTag = "wosim-storage/1\x00"

const formatTagSize = 256

const checksumSize = 64 // SHA3-512

const numSlots = 2

// freeListState is the persisted half of a generation's free list: the
// root page of its three-level page-number array and the [front, back)
// window into it (§4.2).
type freeListState struct {
	Root  PageNum
	Front uint32
	Back  uint32
}

const freeListStateSize = 4 + 4 + 4

func (s freeListState) encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], uint32(s.Root))
	binary.LittleEndian.PutUint32(b[4:8], s.Front)
	binary.LittleEndian.PutUint32(b[8:12], s.Back)
}

func decodeFreeListState(b []byte) freeListState {
	return freeListState{
		Root:  PageNum(binary.LittleEndian.Uint32(b[0:4])),
		Front: binary.LittleEndian.Uint32(b[4:8]),
		Back:  binary.LittleEndian.Uint32(b[8:12]),
	}
}

// allocatorState is the persisted allocator snapshot (§4.2):
// `previous` (read-only, pages it holds were freed as of the last
// snapshot and are safe to reuse only after the *next* one completes)
// and `current` (rebuilt fresh every transaction), plus the high-water
// mark for pages never yet allocated.
type allocatorState struct {
	Previous freeListState
	Current  freeListState
	LastPage PageNum
}

const allocatorStateSize = freeListStateSize*2 + 4

func (a allocatorState) encode(b []byte) {
	a.Previous.encode(b[0:12])
	a.Current.encode(b[12:24])
	binary.LittleEndian.PutUint32(b[24:28], uint32(a.LastPage))
}

func decodeAllocatorState(b []byte) allocatorState {
	return allocatorState{
		Previous: decodeFreeListState(b[0:12]),
		Current:  decodeFreeListState(b[12:24]),
		LastPage: PageNum(binary.LittleEndian.Uint32(b[24:28])),
	}
}

// slot is one of the two snapshot records in the header page (§3, §6).
// Slot i is valid iff version mod 2 == i and its checksum matches; the
// valid slot with the greater version is the current snapshot.
type slot struct {
	Version   uint64
	Allocator allocatorState
	RootPage  PageNum
	RootLen   uint64
	Checksum  [checksumSize]byte
}

const slotPayloadSize = 8 + allocatorStateSize + 4 + 8 // everything but the checksum
const slotSize = slotPayloadSize + checksumSize

func (s *slot) encodePayload(b []byte) {
	binary.LittleEndian.PutUint64(b[0:8], s.Version)
	s.Allocator.encode(b[8 : 8+allocatorStateSize])
	off := 8 + allocatorStateSize
	binary.LittleEndian.PutUint32(b[off:off+4], uint32(s.RootPage))
	binary.LittleEndian.PutUint64(b[off+4:off+12], s.RootLen)
}

func (s *slot) computeChecksum() [checksumSize]byte {
	var payload [slotPayloadSize]byte
	s.encodePayload(payload[:])
	return sha3.Sum512(payload[:])
}

func (s *slot) sign() {
	s.Checksum = s.computeChecksum()
}

func (s *slot) verify() bool {
	return s.Checksum == s.computeChecksum()
}

func (s *slot) encode(b []byte) {
	s.encodePayload(b)
	copy(b[slotPayloadSize:slotSize], s.Checksum[:])
}

func decodeSlot(b []byte) slot {
	var s slot
	s.Version = binary.LittleEndian.Uint64(b[0:8])
	s.Allocator = decodeAllocatorState(b[8 : 8+allocatorStateSize])
	off := 8 + allocatorStateSize
	s.RootPage = PageNum(binary.LittleEndian.Uint32(b[off : off+4]))
	s.RootLen = binary.LittleEndian.Uint64(b[off+4 : off+12])
	copy(s.Checksum[:], b[slotPayloadSize:slotSize])
	return s
}

func slotOffset(i int) int {
	return formatTagSize + i*slotSize
}

// readHeader loads both slots from the header page and selects the
// current one: the valid slot (version parity matches its index,
// checksum matches) with the greater version. Returns ErrCorrupt if
// the format tag is wrong or neither slot validates.
func readHeader(page Page) (current slot, currentIndex int, err error) {
	data := page.Bytes()
	tag := string(data[0:len(formatTag)])
	if tag != formatTag {
		return slot{}, 0, ErrCorrupt
	}

	currentIndex = -1
	for i := 0; i < numSlots; i++ {
		s := decodeSlot(data[slotOffset(i) : slotOffset(i)+slotSize])
		if int(s.Version%numSlots) != i {
			continue
		}
		if !s.verify() {
			continue
		}
		if currentIndex == -1 || s.Version > current.Version {
			current = s
			currentIndex = i
		}
	}
	if currentIndex == -1 {
		return slot{}, 0, ErrCorrupt
	}
	return current, currentIndex, nil
}

// writeHeader writes the format tag (idempotent) and one slot in
// place. It never touches the other slot, so a crash mid-write leaves
// the previous snapshot's slot intact.
func writeHeader(page Page, index int, s slot) {
	data := page.Bytes()
	copy(data[0:formatTagSize], make([]byte, formatTagSize))
	copy(data[0:len(formatTag)], formatTag)
	s.sign()
	s.encode(data[slotOffset(index) : slotOffset(index)+slotSize])
}

func initialSlot() slot {
	return slot{
		Version: 0,
		Allocator: allocatorState{
			LastPage: HeaderPage,
		},
		RootPage: 0,
		RootLen:  0,
	}
}
