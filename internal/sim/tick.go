package sim

import (
	"time"

	"github.com/wosim-go/wosim/internal/persistent"
	"github.com/wosim-go/wosim/internal/protocol"
	"github.com/wosim-go/wosim/internal/storage"
)

// groundEpsilon is how close to the sampled ground height an NPC must
// be before it is considered landed and gravity stops integrating
// (§4.9: "ground-snap at y <= ground + 1").
const groundEpsilon = 1.0

// npcFallStep advances one falling NPC's height by one tick of
// gravity and reports whether it has landed. Pulled out of runTick so
// it can be exercised without a database.
func npcFallStep(y, ground, gravity float32, dt time.Duration) (newY float32, landed bool) {
	y -= gravity * float32(dt.Seconds())
	if y <= ground+groundEpsilon {
		return ground, true
	}
	return y, false
}

// runTick executes one fixed-period simulation step: NPC update, the
// region-update flush, and a budgeted drain of the observer-change
// queue (§4.9). It has no PC step: reqUpdateSelf applies a PC's
// reported pose when the request arrives.
func (w *World) runTick(skipped bool) error {
	tickStart := time.Now()

	err := w.db.Update(func(tx *storage.Txn, root *storage.Extent) error {
		if err := w.stepNPCs(tx); err != nil {
			return err
		}
		return w.world.Save(tx, root)
	})
	if err != nil {
		return err
	}

	if err := w.regions.FlushUpdates(w.tick, w.sender); err != nil {
		return err
	}

	remaining := w.tickPeriod - time.Since(tickStart)
	if remaining < 0 {
		remaining = 0
	}
	return w.db.Update(func(tx *storage.Txn, root *storage.Extent) error {
		if err := w.regions.Drain(tx, w.world, remaining, w.sender); err != nil {
			return err
		}
		return w.world.Save(tx, root)
	})
}

// stepNPCs applies gravity, heightmap grounding, and region migration
// to every persisted NPC, emitting the Enter/Exit dynamic updates a
// migration produces (§4.9 "NPC update").
func (w *World) stepNPCs(tx *storage.Txn) error {
	var npcs []persistent.NPCRecord
	if err := w.world.NPCs.Each(tx, func(n persistent.NPCRecord) bool {
		npcs = append(npcs, n)
		return true
	}); err != nil {
		return err
	}

	for _, n := range npcs {
		state, ok := w.npcs[n.ID]
		if !ok {
			state = &npcState{}
			w.npcs[n.ID] = state
		}

		ground, err := w.world.SampleHeight(tx, n.T.Pos.X, n.T.Pos.Z)
		if err != nil {
			return err
		}

		if !state.grounded || n.T.Pos.Y > ground+groundEpsilon {
			newY, landed := npcFallStep(n.T.Pos.Y, ground, w.gravity, w.tickPeriod)
			n.T.Pos.Y = newY
			state.grounded = landed
		}

		oldHome := n.Home
		newHome := w.world.RegionOf(n.T.Pos.X, n.T.Pos.Z)
		if newHome != oldHome {
			n.Home = newHome
			if w.regions.FullObserverCount(newHome) > 0 {
				w.regions.QueueDynamicUpdate(oldHome, protocol.DynamicUpdateEntry{Kind: protocol.DynamicExit, ID: n.ID})
				w.regions.QueueDynamicUpdate(newHome, protocol.DynamicUpdateEntry{Kind: protocol.DynamicEnter, ID: n.ID, T: n.T})
			} else {
				// No observer is watching the destination region live:
				// persist the move and stop tracking transient physics
				// state for it until some observer's dynamic setup
				// instantiates it again.
				w.regions.QueueDynamicUpdate(oldHome, protocol.DynamicUpdateEntry{Kind: protocol.DynamicExit, ID: n.ID})
				delete(w.npcs, n.ID)
			}
		} else if w.regions.FullObserverCount(newHome) > 0 {
			w.regions.QueueDynamicUpdate(newHome, protocol.DynamicUpdateEntry{Kind: protocol.DynamicUpdate, ID: n.ID, T: n.T})
		}

		if err := w.world.NPCs.Insert(tx, n); err != nil {
			return err
		}
	}
	return nil
}
