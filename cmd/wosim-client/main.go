// Command wosim-client connects to a wosim-server, drives the
// connect/slot/enter request sequence, and renders a terminal debug
// overlay while playing (§6 CLI surface: "join {direct|token}, play,
// create [--delete] on the client").
package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/wosim-go/wosim/internal/config"
	"github.com/wosim-go/wosim/internal/interpolation"
	"github.com/wosim-go/wosim/internal/protocol"
	"github.com/wosim-go/wosim/internal/render/debugui"
	"github.com/wosim-go/wosim/internal/transport"
)

var configPath string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "wosim-client:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wosim-client",
		Short:         "wosim client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a client config.toml")
	root.AddCommand(joinCmd(), playCmd(), createCmd())
	return root
}

func joinCmd() *cobra.Command {
	var username, password, secret, bearer string
	cmd := &cobra.Command{
		Use:   "join {direct|token}",
		Short: "Record connection credentials for a server, verified with one round trip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient(configPath)
			if err != nil {
				return err
			}
			s := session{
				ServerAddr: cfg.ServerAddr,
				UUID:       uuid.New(),
				Username:   username,
				Password:   password,
				Secret:     secret,
				Bearer:     bearer,
			}
			switch args[0] {
			case "direct":
				if s.Username == "" {
					return fmt.Errorf("join direct requires --username")
				}
			case "token":
				if s.Bearer == "" {
					return fmt.Errorf("join token requires --bearer")
				}
			default:
				return fmt.Errorf("unknown join mode %q, want direct or token", args[0])
			}

			conn, err := connect(s, cfg.MaxMessageSize)
			if err != nil {
				return fmt.Errorf("connecting to %s: %w", s.ServerAddr, err)
			}
			defer conn.Close()

			reply, err := conn.SendBi(protocol.ReqWorldInfo, nil)
			if err != nil {
				return fmt.Errorf("world info request: %w", err)
			}
			info, err := protocol.DecodeWorldInfoReply(reply)
			if err != nil {
				return err
			}
			if err := saveSession(s); err != nil {
				return err
			}
			fmt.Printf("joined %s: region_size=%.0f size=%.0f static_distance=%d\n",
				s.ServerAddr, info.RegionSize, info.Size, info.StaticDistance)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account username (direct mode)")
	cmd.Flags().StringVar(&password, "password", "", "account password (direct mode)")
	cmd.Flags().StringVar(&secret, "secret", "", "shared secret (direct mode)")
	cmd.Flags().StringVar(&bearer, "bearer", "", "signed bearer token (token mode, dedicated servers)")
	return cmd
}

func createCmd() *cobra.Command {
	var slot uint32
	var del bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create (or, with --delete, remove) the character bound to a slot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient(configPath)
			if err != nil {
				return err
			}
			s, err := loadSession()
			if err != nil {
				return err
			}
			conn, err := connect(s, cfg.MaxMessageSize)
			if err != nil {
				return err
			}
			defer conn.Close()

			req := protocol.EncodeSlotRequest(protocol.SlotRequest{Slot: slot})
			if del {
				if _, err := conn.SendBi(protocol.ReqDelete, req); err != nil {
					return err
				}
				fmt.Println("deleted slot", slot)
				return nil
			}
			reply, err := conn.SendBi(protocol.ReqCreate, req)
			if err != nil {
				return err
			}
			created, err := protocol.DecodeCreateReply(reply)
			if err != nil {
				return err
			}
			fmt.Println("created pc", created.PCID, "in slot", slot)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&slot, "slot", 0, "character slot index")
	cmd.Flags().BoolVar(&del, "delete", false, "delete the slot's character instead of creating one")
	return cmd
}

func playCmd() *cobra.Command {
	var slot uint32
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Enter the world with the slot's character and run the client loop until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient(configPath)
			if err != nil {
				return err
			}
			s, err := loadSession()
			if err != nil {
				return err
			}
			return runPlayLoop(s, cfg, slot)
		},
	}
	cmd.Flags().Uint32Var(&slot, "slot", 0, "character slot index to enter with")
	return cmd
}

// connect dials addr and completes the connection handshake: a batched
// Conn followed by the initial unidirectional connect token (§6
// "client opens one unidirectional stream carrying a UTF-8 token").
func connect(s session, maxMessageSize int) (*transport.Conn, error) {
	nc, err := net.Dial("tcp", s.ServerAddr)
	if err != nil {
		return nil, err
	}
	conn, err := transport.NewConn(nc, uint32(maxMessageSize), true)
	if err != nil {
		nc.Close()
		return nil, err
	}
	token := protocol.ConnectToken{
		UUID:     s.UUID,
		Username: s.Username,
		Password: s.Password,
		Secret:   s.Secret,
		Bearer:   s.Bearer,
	}
	body, err := json.Marshal(token)
	if err != nil {
		conn.Close()
		return nil, err
	}
	// The message id carried on the connect token is never inspected
	// by the server's authentication step (it reads the JSON payload
	// of whatever the first frame is); 0 is used for clarity only.
	if err := conn.SendUni(0, body); err != nil {
		conn.Close()
		return nil, err
	}
	go conn.Serve(func(*transport.Message) {})
	return conn, nil
}

// entityView is the interpolation state kept per live NPC/PC while
// playing.
type entityView struct {
	buf *interpolation.Buffer
}

func runPlayLoop(s session, cfg config.Client, slot uint32) error {
	nc, err := net.Dial("tcp", s.ServerAddr)
	if err != nil {
		return err
	}
	conn, err := transport.NewConn(nc, uint32(cfg.MaxMessageSize), true)
	if err != nil {
		nc.Close()
		return err
	}
	defer conn.Close()

	token := protocol.ConnectToken{UUID: s.UUID, Username: s.Username, Password: s.Password, Secret: s.Secret, Bearer: s.Bearer}
	body, err := json.Marshal(token)
	if err != nil {
		return err
	}
	if err := conn.SendUni(0, body); err != nil {
		return err
	}

	entities := make(map[uint32]*entityView)
	var tickDeltaMillis uint32 = 50
	var currentTick uint64
	var selfID uint32
	entered := make(chan struct{}, 1)

	handler := func(msg *transport.Message) {
		switch msg.ID {
		case protocol.NotifyEnter:
			welcome, err := protocol.DecodeWorldEnter(msg.Payload)
			if err != nil {
				return
			}
			selfID = welcome.SelfID
			tickDeltaMillis = welcome.TickDeltaMillis
			currentTick = welcome.Tick
			select {
			case entered <- struct{}{}:
			default:
			}
		case protocol.NotifyDynamicSetup:
			setup, err := protocol.DecodeDynamicSetup(msg.Payload)
			if err != nil {
				return
			}
			currentTick = setup.Tick
			for _, e := range append(append([]protocol.Entity{}, setup.NPCs...), setup.PCs...) {
				v := entities[e.ID]
				if v == nil {
					v = &entityView{buf: interpolation.New(interpolation.ClientWindow)}
					entities[e.ID] = v
				}
				v.buf.Insert(int64(setup.Tick), e.T)
			}
		case protocol.NotifyDynamicUpdates:
			updates, err := protocol.DecodeDynamicUpdates(msg.Payload)
			if err != nil {
				return
			}
			currentTick = updates.Tick
			for _, entry := range updates.Entries {
				switch entry.Kind {
				case protocol.DynamicExit:
					delete(entities, entry.ID)
				default:
					v := entities[entry.ID]
					if v == nil {
						v = &entityView{buf: interpolation.New(interpolation.ClientWindow)}
						entities[entry.ID] = v
					}
					v.buf.Insert(int64(updates.Tick), entry.T)
				}
			}
		}
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- conn.Serve(handler) }()

	if err := conn.SendUni(protocol.ReqEnter, protocol.EncodeSlotRequest(protocol.SlotRequest{Slot: slot})); err != nil {
		return err
	}

	select {
	case <-entered:
	case err := <-serveErr:
		return fmt.Errorf("disconnected before entering world: %w", err)
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timed out waiting for world enter")
	}
	fmt.Println(debugui.Stats{Tick: currentTick}.Render())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	frameTicker := time.NewTicker(time.Duration(tickDeltaMillis) * time.Millisecond)
	defer frameTicker.Stop()
	start := time.Now()

	for {
		select {
		case <-sig:
			_, _ = conn.SendBi(protocol.ReqExit, nil)
			_ = conn.SendUni(protocol.ReqDisconnect, nil)
			return nil
		case err := <-serveErr:
			fmt.Println(debugui.Report{Err: err}.Render())
			return err
		case now := <-frameTicker.C:
			elapsed := now.Sub(start)
			t := interpolation.EvalTick(float64(elapsed.Milliseconds()), float64(tickDeltaMillis), int64(currentTick))
			for id, v := range entities {
				if id == selfID {
					continue
				}
				_ = v.buf.Get(t)
			}
			fmt.Println(debugui.Stats{
				Tick:       currentTick,
				TickDelta:  time.Duration(tickDeltaMillis) * time.Millisecond,
				FrameTime:  time.Duration(tickDeltaMillis) * time.Millisecond,
				QueueDepth: len(entities),
			}.Render())
		}
	}
}
