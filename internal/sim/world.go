// Package sim runs the single world actor: the fixed-period tick loop,
// connection lifecycle, and request handling that together own every
// mutation of the persisted world and the live region-interest state
// (§4.9, §5 "single writer goroutine").
package sim

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/wosim-go/wosim/internal/config"
	"github.com/wosim-go/wosim/internal/obs"
	"github.com/wosim-go/wosim/internal/persistent"
	"github.com/wosim-go/wosim/internal/region"
	"github.com/wosim-go/wosim/internal/storage"
	"github.com/wosim-go/wosim/internal/transport"
)

type actionKind int

const (
	actConnected actionKind = iota
	actDisconnected
	actRequest
	actStop
)

// action is one mailbox entry: every piece of state this package owns
// is only ever touched from the goroutine draining this channel in
// Run, matching the actor discipline region.Manager's doc comment
// assumes of its caller.
type action struct {
	kind     actionKind
	observer uuid.UUID
	conn     *transport.Conn
	msg      *transport.Message
	done     chan error
}

// npcState is the transient (non-persisted) simulation state the tick
// loop keeps per active NPC: whether it's currently resting on the
// ground, which suppresses the gravity integration step.
type npcState struct {
	grounded bool
}

// World is the server's single world actor.
type World struct {
	log     *obs.Logger
	metrics *obs.Metrics
	cfg     config.Server

	db      *storage.Database
	world   *persistent.World
	regions *region.Manager
	sender  *connSender

	mailbox chan action

	conns      map[uuid.UUID]*transport.Conn
	playerOf   map[uuid.UUID]uint32 // observer -> PlayerRecord.ID
	observerOf map[uint32]uuid.UUID // PlayerRecord.ID -> observer
	activePC   map[uuid.UUID]uint32 // observer -> the pc id currently being played

	npcs map[uint32]*npcState

	tick       uint64
	tickPeriod time.Duration
	gravity    float32
}

// NewWorld opens (or creates) the database at cfg.DatabasePath and
// returns a world actor ready for Run.
func NewWorld(cfg config.Server, log *obs.Logger, metrics *obs.Metrics) (*World, error) {
	db, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("sim: opening database: %w", err)
	}

	var pw *persistent.World
	err = db.Update(func(tx *storage.Txn, root *storage.Extent) error {
		if root.Len == 0 {
			pw = persistent.New(persistent.Configuration{
				RegionSize:       cfg.RegionSize,
				Size:             cfg.WorldSize,
				StaticDistance:   cfg.StaticDistance,
				FullDistance:     cfg.FullDistance,
				TickPeriodMillis: uint32(cfg.TickPeriodMS),
			})
		} else {
			loaded, lerr := persistent.Load(tx, *root)
			if lerr != nil {
				return lerr
			}
			pw = loaded
		}
		return pw.Save(tx, root)
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sim: initializing world: %w", err)
	}

	w := &World{
		log:        log.WithComponent("sim"),
		metrics:    metrics,
		cfg:        cfg,
		db:         db,
		world:      pw,
		regions:    region.NewManager(pw.Config.RegionSize, pw.Config.StaticDistance, pw.Config.FullDistance),
		mailbox:    make(chan action, cfg.MailboxSize),
		conns:      make(map[uuid.UUID]*transport.Conn),
		playerOf:   make(map[uuid.UUID]uint32),
		observerOf: make(map[uint32]uuid.UUID),
		activePC:   make(map[uuid.UUID]uint32),
		npcs:       make(map[uint32]*npcState),
		tickPeriod: time.Duration(cfg.TickPeriodMS) * time.Millisecond,
		gravity:    9.8,
	}
	w.sender = &connSender{conns: w.conns}
	return w, nil
}

// Close releases the database. Run must have returned before Close is
// called.
func (w *World) Close() error { return w.db.Close() }

// Run drains the mailbox and fires the tick loop until stop is closed.
// It owns every mutation of w's state and must only ever run on one
// goroutine.
func (w *World) Run(stop <-chan struct{}) error {
	ticker := time.NewTicker(w.tickPeriod)
	defer ticker.Stop()
	deadline := time.Now().Add(w.tickPeriod)

	for {
		select {
		case <-stop:
			return w.shutdown()
		case now := <-ticker.C:
			skipped := now.After(deadline)
			deadline = deadline.Add(w.tickPeriod)
			if skipped {
				for deadline.Before(now) {
					deadline = deadline.Add(w.tickPeriod)
				}
			}

			w.tick++
			start := time.Now()
			if err := w.runTick(skipped); err != nil {
				w.log.Error().Err(err).Uint64("tick", w.tick).Msg("tick failed")
			}
			d := time.Since(start)
			w.metrics.RecordTick(d, skipped)
			w.log.LogTick(w.tick, d, skipped)
			w.metrics.RegionChangeQueue.Set(float64(w.regions.QueueLen()))
		case a := <-w.mailbox:
			w.handle(a)
		}
	}
}

// shutdown persists one final snapshot so a clean exit never loses the
// ticks since the last periodic save.
func (w *World) shutdown() error {
	return w.db.Update(func(tx *storage.Txn, root *storage.Extent) error {
		return w.world.Save(tx, root)
	})
}

func (w *World) handle(a action) {
	switch a.kind {
	case actConnected:
		w.conns[a.observer] = a.conn
		a.done <- nil
	case actDisconnected:
		w.handleDisconnect(a.observer)
		a.done <- nil
	case actRequest:
		w.handleRequest(a.observer, a.msg)
		a.done <- nil
	}
}

func (w *World) handleDisconnect(observer uuid.UUID) {
	delete(w.conns, observer)
	w.regions.Leave(observer)
	delete(w.activePC, observer)
	delete(w.playerOf, observer)
}

// Accept serves ln until it errors (typically because the listener was
// closed during shutdown), spawning one goroutine per accepted
// connection.
func (w *World) Accept(ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			return err
		}
		go w.serveConn(nc)
	}
}

// serveConn authenticates the connection's first message as a
// protocol.ConnectToken (sent on the initial unidirectional stream per
// §6), then forwards every subsequent frame to the world actor's
// mailbox as a request. It runs entirely off the actor goroutine;
// only the mailbox sends below ever touch shared state.
func (w *World) serveConn(nc net.Conn) {
	conn, err := transport.NewConn(nc, uint32(w.cfg.MaxMessageSize), false)
	if err != nil {
		nc.Close()
		return
	}

	var observer uuid.UUID
	authenticated := false

	handler := func(msg *transport.Message) {
		if !authenticated {
			var token struct {
				UUID uuid.UUID `json:"uuid"`
			}
			if err := json.Unmarshal(msg.Payload, &token); err != nil {
				conn.Close()
				return
			}
			observer = token.UUID
			authenticated = true
			done := make(chan error, 1)
			w.mailbox <- action{kind: actConnected, observer: observer, conn: conn, done: done}
			<-done
			return
		}
		done := make(chan error, 1)
		w.mailbox <- action{kind: actRequest, observer: observer, msg: msg, done: done}
		<-done
	}

	if err := conn.Serve(handler); err != nil {
		w.log.Debug().Err(err).Msg("connection closed")
	}
	if authenticated {
		done := make(chan error, 1)
		w.mailbox <- action{kind: actDisconnected, observer: observer, done: done}
		<-done
	}
}
