package sim

import (
	"github.com/google/uuid"
	"github.com/wosim-go/wosim/internal/protocol"
	"github.com/wosim-go/wosim/internal/transport"
)

// connSender adapts a table of live connections, keyed by observer
// uuid, to region.Sender. Missing connections (already disconnected
// but not yet reaped) are silently skipped rather than erroring, since
// a send racing a disconnect is expected, not exceptional.
type connSender struct {
	conns map[uuid.UUID]*transport.Conn
}

func (s *connSender) conn(observer uuid.UUID) *transport.Conn { return s.conns[observer] }

func (s *connSender) SendStaticSetup(observer uuid.UUID, body protocol.StaticSetupBody) error {
	c := s.conn(observer)
	if c == nil {
		return nil
	}
	return c.SendUni(protocol.NotifyStaticSetup, protocol.EncodeStaticSetup(body))
}

func (s *connSender) SendDynamicSetup(observer uuid.UUID, body protocol.DynamicSetupBody) error {
	c := s.conn(observer)
	if c == nil {
		return nil
	}
	return c.SendUni(protocol.NotifyDynamicSetup, protocol.EncodeDynamicSetup(body))
}

func (s *connSender) SendStaticTeardown(observer uuid.UUID, pos protocol.RegionPos) error {
	c := s.conn(observer)
	if c == nil {
		return nil
	}
	return c.SendUni(protocol.NotifyStaticTeardown, protocol.EncodeRegionPos(pos))
}

func (s *connSender) SendDynamicTeardown(observer uuid.UUID, pos protocol.RegionPos) error {
	c := s.conn(observer)
	if c == nil {
		return nil
	}
	return c.SendUni(protocol.NotifyDynamicTeardown, protocol.EncodeRegionPos(pos))
}

func (s *connSender) SendDynamicUpdates(observer uuid.UUID, body protocol.DynamicUpdatesBody) error {
	c := s.conn(observer)
	if c == nil {
		return nil
	}
	return c.SendDatagram(protocol.NotifyDynamicUpdates, protocol.EncodeDynamicUpdates(body))
}
