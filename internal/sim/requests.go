package sim

import (
	"errors"

	"github.com/google/uuid"
	"github.com/wosim-go/wosim/internal/persistent"
	"github.com/wosim-go/wosim/internal/protocol"
	"github.com/wosim-go/wosim/internal/storage"
	"github.com/wosim-go/wosim/internal/transport"
)

// errNoSuchSlot is returned when ReqEnter names a slot with no pc
// bound to it.
var errNoSuchSlot = errors.New("sim: no pc bound to requested slot")

// handleRequest dispatches one decoded frame to its handler. Requests
// answered synchronously reply through msg.Reply; Uni messages
// (ReqEnter, ReqUpdateSelf and ReqDisconnect) never do.
func (w *World) handleRequest(observer uuid.UUID, msg *transport.Message) {
	var err error
	switch msg.ID {
	case protocol.ReqWorldInfo:
		err = w.reqWorldInfo(msg)
	case protocol.ReqSlots:
		err = w.reqSlots(observer, msg)
	case protocol.ReqCreate:
		err = w.reqCreate(observer, msg)
	case protocol.ReqDelete:
		err = w.reqDelete(observer, msg)
	case protocol.ReqEnter:
		err = w.reqEnter(observer, msg)
	case protocol.ReqExit:
		err = w.reqExit(observer, msg)
	case protocol.ReqUpdateSelf:
		err = w.reqUpdateSelf(observer, msg)
	case protocol.ReqDisconnect:
		w.handleDisconnect(observer)
	}
	if err != nil {
		w.log.Warn().Err(err).Uint32("request", msg.ID).Msg("request failed")
	}
}

func (w *World) reqWorldInfo(msg *transport.Message) error {
	reply := protocol.WorldInfoReply{
		RegionSize:     w.world.Config.RegionSize,
		Size:           w.world.Config.Size,
		StaticDistance: w.world.Config.StaticDistance,
	}
	return msg.Reply(protocol.EncodeWorldInfoReply(reply))
}

// playerRecord looks up (and lazily registers) the account behind
// observer, the uuid carried by the connection's initial token.
func (w *World) playerRecord(observer uuid.UUID) (persistent.PlayerRecord, error) {
	var rec persistent.PlayerRecord
	err := w.db.Update(func(tx *storage.Txn, root *storage.Extent) error {
		found, ok, err := w.world.LookupPlayer(tx, observer)
		if err != nil {
			return err
		}
		if ok {
			rec = found
			return nil
		}
		rec, err = w.world.AddPlayer(tx, observer)
		if err != nil {
			return err
		}
		return w.world.Save(tx, root)
	})
	return rec, err
}

func (w *World) reqSlots(observer uuid.UUID, msg *transport.Message) error {
	rec, err := w.playerRecord(observer)
	if err != nil {
		return err
	}
	return msg.Reply(protocol.EncodeSlots(protocol.SlotsReply{Slots: rec.Slots}))
}

func (w *World) reqCreate(observer uuid.UUID, msg *transport.Message) error {
	req, err := protocol.DecodeSlotRequest(msg.Payload)
	if err != nil {
		return err
	}
	if req.Slot >= protocol.SlotCount {
		return msg.Reply(protocol.EncodeCreateReply(protocol.CreateReply{}))
	}

	var pcID uint32
	err = w.db.Update(func(tx *storage.Txn, root *storage.Extent) error {
		rec, ok, lerr := w.world.LookupPlayer(tx, observer)
		if lerr != nil {
			return lerr
		}
		if !ok {
			rec, lerr = w.world.AddPlayer(tx, observer)
			if lerr != nil {
				return lerr
			}
		}
		if rec.Slots[req.Slot] != 0 {
			pcID = rec.Slots[req.Slot]
			return nil
		}

		pcID = w.world.NextPCID()
		home := w.world.RegionOf(0, 0)
		if err := w.world.PCs.Insert(tx, persistent.PCRecord{ID: pcID, Player: observer, Home: home}); err != nil {
			return err
		}
		rec.Slots[req.Slot] = pcID
		if err := w.world.Players.Insert(tx, rec); err != nil {
			return err
		}
		return w.world.Save(tx, root)
	})
	if err != nil {
		return err
	}
	return msg.Reply(protocol.EncodeCreateReply(protocol.CreateReply{PCID: pcID}))
}

func (w *World) reqDelete(observer uuid.UUID, msg *transport.Message) error {
	req, err := protocol.DecodeSlotRequest(msg.Payload)
	if err != nil {
		return err
	}
	err = w.db.Update(func(tx *storage.Txn, root *storage.Extent) error {
		rec, ok, lerr := w.world.LookupPlayer(tx, observer)
		if lerr != nil || !ok || req.Slot >= protocol.SlotCount {
			return lerr
		}
		pcID := rec.Slots[req.Slot]
		if pcID == 0 {
			return nil
		}
		if _, lerr := w.world.PCs.Remove(tx, pcID); lerr != nil {
			return lerr
		}
		rec.Slots[req.Slot] = 0
		if lerr := w.world.Players.Insert(tx, rec); lerr != nil {
			return lerr
		}
		return w.world.Save(tx, root)
	})
	if err != nil {
		return err
	}
	return msg.Reply(nil)
}

// reqEnter places the pc bound to req.Slot into the live world: it
// joins the region manager at the pc's home region and sends the
// welcome WorldEnter notification (§4.8 step "Join", §6 welcome
// packet).
func (w *World) reqEnter(observer uuid.UUID, msg *transport.Message) error {
	req, err := protocol.DecodeSlotRequest(msg.Payload)
	if err != nil {
		return err
	}

	var pc persistent.PCRecord
	err = w.db.View(func(tx *storage.Txn, root storage.Extent) error {
		rec, ok, lerr := w.world.LookupPlayer(tx, observer)
		if lerr != nil {
			return lerr
		}
		if !ok || req.Slot >= protocol.SlotCount || rec.Slots[req.Slot] == 0 {
			return errNoSuchSlot
		}
		found, ok, lerr := w.world.PCs.Get(tx, rec.Slots[req.Slot])
		if lerr != nil {
			return lerr
		}
		if !ok {
			return errNoSuchSlot
		}
		pc = found
		return nil
	})
	if err != nil {
		return err
	}

	w.activePC[observer] = pc.ID
	w.regions.Join(observer, pc.Home, pc.ID, protocol.Entity{ID: pc.ID, T: pc.T})

	welcome := protocol.WorldEnterBody{
		SelfID:           pc.ID,
		Pos:              pc.T.Pos,
		Rotation:         pc.T.Rot,
		Size:             w.world.Config.Size,
		RegionSize:       w.world.Config.RegionSize,
		MaxActiveRegions: (w.world.Config.StaticDistance + 1) * (w.world.Config.StaticDistance + 1) * 4,
		TickDeltaMillis:  w.world.Config.TickPeriodMillis,
		Tick:             w.tick,
	}
	if c := w.conns[observer]; c != nil {
		if err := c.SendUni(protocol.NotifyEnter, protocol.EncodeWorldEnter(welcome)); err != nil {
			return err
		}
	}
	return nil
}

func (w *World) reqExit(observer uuid.UUID, msg *transport.Message) error {
	pcID, ok := w.activePC[observer]
	if !ok {
		return msg.Reply(nil)
	}
	err := w.db.Update(func(tx *storage.Txn, root *storage.Extent) error {
		pc, ok, lerr := w.world.PCs.Get(tx, pcID)
		if lerr != nil || !ok {
			return lerr
		}
		w.regions.Leave(observer)
		delete(w.activePC, observer)
		pc.Home = w.world.RegionOf(pc.T.Pos.X, pc.T.Pos.Z)
		if lerr := w.world.PCs.Insert(tx, pc); lerr != nil {
			return lerr
		}
		return w.world.Save(tx, root)
	})
	if err != nil {
		return err
	}
	return msg.Reply(nil)
}

// reqUpdateSelf applies the client's self-reported pose (§4.9 PC
// update: "player-authoritative, applied as-is"), queues the dynamic
// update it produces for the next flush, and migrates the pc's home
// region if it crossed a boundary.
func (w *World) reqUpdateSelf(observer uuid.UUID, msg *transport.Message) error {
	pcID, ok := w.activePC[observer]
	if !ok {
		return nil
	}
	body, err := protocol.DecodeUpdateSelf(msg.Payload)
	if err != nil {
		return err
	}
	t := protocol.Transform{Pos: body.Pos, Rot: body.Rotation}

	return w.db.Update(func(tx *storage.Txn, root *storage.Extent) error {
		pc, ok, lerr := w.world.PCs.Get(tx, pcID)
		if lerr != nil || !ok {
			return lerr
		}
		oldHome := pc.Home
		pc.T = t
		newHome := w.world.RegionOf(t.Pos.X, t.Pos.Z)

		if newHome != oldHome {
			w.regions.QueueDynamicUpdate(oldHome, protocol.DynamicUpdateEntry{Kind: protocol.DynamicExit, ID: pcID})
			w.regions.QueueDynamicUpdate(newHome, protocol.DynamicUpdateEntry{Kind: protocol.DynamicEnter, ID: pcID, T: t})
			pc.Home = newHome
			w.regions.Move(observer, t.Pos)
		} else {
			w.regions.QueueDynamicUpdate(oldHome, protocol.DynamicUpdateEntry{Kind: protocol.DynamicUpdate, ID: pcID, T: t})
			w.regions.Move(observer, t.Pos)
		}

		if lerr := w.world.PCs.Insert(tx, pc); lerr != nil {
			return lerr
		}
		return w.world.Save(tx, root)
	})
}
