// Package transport implements the connection-oriented, stream
// multiplexed message transport described by C7: Bi (request/reply),
// Uni (one-way reliable), and Datagram (best-effort) message kinds
// over a single net.Conn, framed manually the way the storage engine
// encodes its own header rather than through a generated codec.
package transport

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
)

// Kind selects which of the three message semantics a frame carries.
type Kind uint8

const (
	KindBi Kind = iota
	KindUni
	KindDatagram
)

// kindShift places the kind in the top two bits of a batched-mode frame's length
// field (§4.7: "len|kind (top two bits select Bi/Uni/Datagram)").
const kindShift = 30
const lengthMask = (1 << kindShift) - 1

// batchedSentinel opens a long-lived batched-mode stream; it is never
// a valid frame length for a per-message stream (whose own sentinel,
// 0, flags it as per-message instead).
const batchedSentinel uint32 = 0xFFFFFFFF

// ErrMissingSender is returned when a caller tries to Reply to a
// message that was not a Bi request.
var ErrMissingSender = errors.New("transport: missing sender on non-Bi message")

// ErrOversize reports a frame over the configured per-message size
// ceiling. A send returns it without writing anything; Serve closes
// the connection and returns it when it reads such a frame header.
var ErrOversize = errors.New("transport: message exceeds size ceiling")

// Reason is a numeric close code. closeWithReason accepts one but does
// not transmit it: the peer only observes the connection closing.
type Reason uint32

// Message is one decoded frame delivered to a Handler.
type Message struct {
	ID      uint32
	Kind    Kind
	Payload []byte

	reply func([]byte) error
}

// Reply sends bytes back to the sender of a Bi message. It is an error
// to call Reply on a Uni or Datagram message.
func (m *Message) Reply(payload []byte) error {
	if m.reply == nil {
		return ErrMissingSender
	}
	return m.reply(payload)
}

// Handler processes one inbound Message. Handlers run on the
// connection's single receive goroutine; long work should be handed
// off rather than block it.
type Handler func(*Message)

// Stats tracks cumulative connection counters; Diff returns the delta
// since the last Diff call so callers can expose a read-only
// per-interval view without mutating the live counters directly
// (§4.7, grounded on the original implementation's stats diffing).
type Stats struct {
	BytesSent     uint64
	BytesRecv     uint64
	FramesBi      uint64
	FramesUni     uint64
	FramesDatagram uint64
	CongestionEvents uint64

	mu   sync.Mutex
	prev Snapshot
}

func (s *Stats) addSent(n uint64)  { atomic.AddUint64(&s.BytesSent, n) }
func (s *Stats) addRecv(n uint64)  { atomic.AddUint64(&s.BytesRecv, n) }
func (s *Stats) addFrame(k Kind) {
	switch k {
	case KindBi:
		atomic.AddUint64(&s.FramesBi, 1)
	case KindUni:
		atomic.AddUint64(&s.FramesUni, 1)
	case KindDatagram:
		atomic.AddUint64(&s.FramesDatagram, 1)
	}
}

// Snapshot is a point-in-time copy of Stats safe to read concurrently.
type Snapshot struct {
	BytesSent, BytesRecv                             uint64
	FramesBi, FramesUni, FramesDatagram               uint64
	CongestionEvents                                  uint64
}

func (s *Stats) snapshot() Snapshot {
	return Snapshot{
		BytesSent:        atomic.LoadUint64(&s.BytesSent),
		BytesRecv:        atomic.LoadUint64(&s.BytesRecv),
		FramesBi:         atomic.LoadUint64(&s.FramesBi),
		FramesUni:        atomic.LoadUint64(&s.FramesUni),
		FramesDatagram:   atomic.LoadUint64(&s.FramesDatagram),
		CongestionEvents: atomic.LoadUint64(&s.CongestionEvents),
	}
}

// Diff returns the change in every counter since the last call to
// Diff (or since connection start, on the first call).
func (s *Stats) Diff() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.snapshot()
	prev := s.prev
	s.prev = cur
	return Snapshot{
		BytesSent:        cur.BytesSent - prev.BytesSent,
		BytesRecv:        cur.BytesRecv - prev.BytesRecv,
		FramesBi:         cur.FramesBi - prev.FramesBi,
		FramesUni:        cur.FramesUni - prev.FramesUni,
		FramesDatagram:   cur.FramesDatagram - prev.FramesDatagram,
		CongestionEvents: cur.CongestionEvents - prev.CongestionEvents,
	}
}

// Conn is one batched-mode multiplexed connection: a single
// long-lived bidirectional stream carrying length-prefixed frames for
// every Bi/Uni/Datagram message, matching the "sender holds a
// long-lived channel handle" wire mode from §4.7. Per-message mode
// (a fresh stream per request) is left to callers that open raw
// net.Conns directly; the mailbox-driven server and client in this
// module always hold a long-lived handle, so batched mode is the only
// one exercised end-to-end here.
type Conn struct {
	nc net.Conn
	w  *bufio.Writer
	r  *bufio.Reader

	maxMessageSize uint32

	writeMu sync.Mutex
	pending sync.Map // uint32 reply-tag -> chan []byte
	nextTag uint32
	tagBit  uint32 // top bit distinguishing this side's tags from the peer's

	Stats Stats

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// tagBit reserves the top bit of the 32-bit reply tag for the
// connection initiator so that a client-generated tag can never
// collide with a server-generated one on the same Conn: dispatchBi
// tells a reply from a fresh incoming request only by checking
// whether the tag is in this side's own pending map, which would be
// ambiguous if both peers could pick the same tag value.
const initiatorTagBit uint32 = 1 << 31

// NewConn wraps nc as a batched-mode connection and writes the
// batched-mode header (0xFFFFFFFF) as its first frame. isInitiator
// must be true on exactly one side of the connection (the client).
func NewConn(nc net.Conn, maxMessageSize uint32, isInitiator bool) (*Conn, error) {
	c := &Conn{
		nc:             nc,
		w:              bufio.NewWriter(nc),
		r:              bufio.NewReader(nc),
		maxMessageSize: maxMessageSize,
		closed:         make(chan struct{}),
	}
	if isInitiator {
		c.tagBit = initiatorTagBit
	}
	if err := binary.Write(c.w, binary.LittleEndian, batchedSentinel); err != nil {
		return nil, err
	}
	if err := c.w.Flush(); err != nil {
		return nil, err
	}
	return c, nil
}

func frameHeader(kind Kind, length int) uint32 {
	return uint32(kind)<<kindShift | uint32(length)&lengthMask
}

func parseFrameHeader(h uint32) (Kind, int) {
	return Kind(h >> kindShift), int(h & lengthMask)
}

// writeFrame writes one length|kind framed payload. Payload must
// already contain the 4-byte message id prefix.
func (c *Conn) writeFrame(kind Kind, payload []byte) error {
	if uint32(len(payload)) > c.maxMessageSize {
		return ErrOversize
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := binary.Write(c.w, binary.LittleEndian, frameHeader(kind, len(payload))); err != nil {
		return err
	}
	if _, err := c.w.Write(payload); err != nil {
		return err
	}
	if err := c.w.Flush(); err != nil {
		return err
	}
	c.Stats.addSent(uint64(len(payload) + 4))
	c.Stats.addFrame(kind)
	return nil
}

// SendUni sends a one-way reliable message.
func (c *Conn) SendUni(id uint32, body []byte) error {
	return c.writeFrame(KindUni, withID(id, body))
}

// SendDatagram sends a best-effort message.
func (c *Conn) SendDatagram(id uint32, body []byte) error {
	return c.writeFrame(KindDatagram, withID(id, body))
}

// replyTagSize is reserved space at the front of a Bi payload for the
// 32-bit tag correlating a reply to its request, ahead of the 32-bit
// message id the handler dispatches on.
const replyTagSize = 4

// SendBi sends a request and blocks until the matching reply arrives
// or ctx-less timeout semantics are handled by the caller closing the
// connection; cancellation is cooperative via Close.
func (c *Conn) SendBi(id uint32, body []byte) ([]byte, error) {
	tag := atomic.AddUint32(&c.nextTag, 1) | c.tagBit
	ch := make(chan []byte, 1)
	c.pending.Store(tag, ch)
	defer c.pending.Delete(tag)

	framed := make([]byte, replyTagSize+len(withID(id, body)))
	binary.LittleEndian.PutUint32(framed, tag)
	copy(framed[replyTagSize:], withID(id, body))

	if err := c.writeFrame(KindBi, framed); err != nil {
		return nil, err
	}

	select {
	case reply := <-ch:
		return reply, nil
	case <-c.closed:
		return nil, io.ErrClosedPipe
	}
}

func withID(id uint32, body []byte) []byte {
	out := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(out, id)
	copy(out[4:], body)
	return out
}

// Serve reads frames until the connection closes or the peer sends
// the batched terminator, dispatching each to handle.
func (c *Conn) Serve(handle Handler) error {
	header, err := c.readU32()
	if err != nil {
		return err
	}
	if header != batchedSentinel {
		return fmt.Errorf("transport: expected batched-mode sentinel, got %#x", header)
	}

	for {
		h, err := c.readU32()
		if err != nil {
			return err
		}
		if h == batchedSentinel {
			return nil
		}
		kind, length := parseFrameHeader(h)
		if uint32(length) > c.maxMessageSize {
			c.closeWithReason(Reason(0))
			return ErrOversize
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(c.r, payload); err != nil {
			return err
		}
		c.Stats.addRecv(uint64(length + 4))
		c.Stats.addFrame(kind)

		switch kind {
		case KindBi:
			c.dispatchBi(payload, handle)
		case KindUni:
			c.dispatchPlain(payload, KindUni, handle)
		case KindDatagram:
			c.dispatchPlain(payload, KindDatagram, handle)
		}
	}
}

func (c *Conn) dispatchBi(payload []byte, handle Handler) {
	if len(payload) < replyTagSize+4 {
		return
	}
	tag := binary.LittleEndian.Uint32(payload)
	rest := payload[replyTagSize:]

	// A Bi frame is either an incoming request (dispatch to handle,
	// with a reply closure that frames the tag back) or the reply to
	// one of our own outstanding SendBi calls (deliver to its channel).
	if chAny, ok := c.pending.Load(tag); ok {
		ch := chAny.(chan []byte)
		select {
		case ch <- rest[4:]:
		default:
		}
		return
	}

	id := binary.LittleEndian.Uint32(rest)
	msg := &Message{ID: id, Kind: KindBi, Payload: rest[4:]}
	msg.reply = func(reply []byte) error {
		framed := make([]byte, replyTagSize+4+len(reply))
		binary.LittleEndian.PutUint32(framed, tag)
		copy(framed[replyTagSize+4:], reply)
		return c.writeFrame(KindBi, framed)
	}
	handle(msg)
}

func (c *Conn) dispatchPlain(payload []byte, kind Kind, handle Handler) {
	if len(payload) < 4 {
		return
	}
	id := binary.LittleEndian.Uint32(payload)
	handle(&Message{ID: id, Kind: kind, Payload: payload[4:]})
}

func (c *Conn) readU32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(c.r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// Close closes the underlying connection. No close reason is sent to
// the peer.
func (c *Conn) Close() error {
	return c.closeWithReason(0)
}

func (c *Conn) closeWithReason(_ Reason) error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.closeErr = c.nc.Close()
	})
	return c.closeErr
}
