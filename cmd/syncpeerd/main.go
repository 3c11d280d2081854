// syncpeerd is a demonstration peer for the tabletop sync substrate.
// It bootstraps one session's identity, event store, and sync engine,
// optionally appends a chat message or a signed dice roll locally,
// then listens for inbound peers and, when -dial is set, also dials
// one; it runs the secure-channel handshake on each connection and
// exchanges events until the process is interrupted.
//
// Usage:
//
//	syncpeerd [options]
//
// Options:
//
//	-listen   address to accept an inbound peer on (default ":0")
//	-dial     address of a peer to connect to (default: listen only)
//	-session  session id to synchronize (default: 1)
//	-name     device name fallback if none is persisted yet
//	-storage  path to a SQLite database file (default: in-memory)
//	-chat     a chat message to append locally before syncing
//	-roll     a dice formula (e.g. "2d20+5") to roll locally before syncing
//	-mode     dice mode: normal, advantage, or disadvantage (default: normal)
//
// Example:
//
//	syncpeerd -listen :7700 -name "Game Master"
//	syncpeerd -dial 127.0.0.1:7700 -name "Player One" -chat "hello table"
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"

	_ "github.com/mattn/go-sqlite3"

	"github.com/duskboard/sync/pkg/dice"
	"github.com/duskboard/sync/pkg/discovery"
	"github.com/duskboard/sync/pkg/event"
	"github.com/duskboard/sync/pkg/gossip"
	"github.com/duskboard/sync/pkg/identity"
	"github.com/duskboard/sync/pkg/materializer"
	"github.com/duskboard/sync/pkg/securechannel"
	"github.com/duskboard/sync/pkg/store"
	"github.com/duskboard/sync/pkg/syncengine"
	"github.com/duskboard/sync/pkg/transport"
)

func main() {
	listenAddr := flag.String("listen", ":0", "address to accept an inbound peer on")
	dialAddr := flag.String("dial", "", "address of a peer to connect to")
	sessionID := flag.Int64("session", 1, "session id to synchronize")
	deviceName := flag.String("name", "", "device name fallback if none is persisted yet")
	storagePath := flag.String("storage", "", "path to a SQLite database file (empty = in-memory)")
	chatMessage := flag.String("chat", "", "a chat message to append locally before syncing")
	rollFormula := flag.String("roll", "", "a dice formula to roll locally before syncing")
	rollMode := flag.String("mode", "normal", "dice mode: normal, advantage, or disadvantage")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loggerFactory := logging.NewDefaultLoggerFactory()
	log := loggerFactory.NewLogger("syncpeerd")

	mgr := identity.NewManager(identity.NewMemStorage(), loggerFactory)
	if err := mgr.Initialize(ctx, *deviceName); err != nil {
		fatalf("initialize identity: %v", err)
	}
	self, err := mgr.Identity()
	if err != nil {
		fatalf("read identity: %v", err)
	}
	log.Infof("peer_id=%s device_name=%s", self.PeerID, self.DeviceName)

	st, closeStore, err := openStore(ctx, *storagePath)
	if err != nil {
		fatalf("open store: %v", err)
	}
	defer closeStore()

	eng := syncengine.NewEngine(mgr, st, loggerFactory)
	if err := eng.Initialize(ctx); err != nil {
		fatalf("initialize sync engine: %v", err)
	}

	if *chatMessage != "" {
		if err := appendChat(ctx, eng, *sessionID, self, *chatMessage); err != nil {
			fatalf("append chat: %v", err)
		}
	}
	if *rollFormula != "" {
		if err := appendRoll(ctx, eng, mgr, *sessionID, *rollFormula, *rollMode); err != nil {
			fatalf("roll dice: %v", err)
		}
	}

	dir := discovery.NewDirectory(discovery.DefaultDirectoryConfig())
	scCfg := securechannel.DefaultConfig()

	peer := &peerRunner{
		mgr:           mgr,
		eng:           eng,
		dir:           dir,
		sessionID:     *sessionID,
		scCfg:         scCfg,
		loggerFactory: loggerFactory,
		log:           log,
	}

	ln, err := transport.NewListener(transport.Config{ListenAddr: *listenAddr}, func(conn net.Conn) {
		peer.handleConn(ctx, conn, false)
	}, loggerFactory)
	if err != nil {
		fatalf("listen: %v", err)
	}
	defer ln.Stop()
	if err := ln.Start(); err != nil {
		fatalf("start listener: %v", err)
	}
	log.Infof("listening on %s", ln.LocalAddr())

	if *dialAddr != "" {
		conn, err := transport.Dial(ctx, *dialAddr, transport.Config{})
		if err != nil {
			fatalf("dial %s: %v", *dialAddr, err)
		}
		go peer.handleConn(ctx, conn, true)
	}

	<-ctx.Done()
	log.Info("shutting down")

	printState(ctx, log, eng, *sessionID)
}

// peerRunner holds the shared collaborators every accepted or dialed
// connection needs to hand-shake and gossip over.
type peerRunner struct {
	mgr           *identity.Manager
	eng           *syncengine.Engine
	dir           *discovery.Directory
	sessionID     int64
	scCfg         securechannel.Config
	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger
}

// handleConn drives one connection's secure-channel handshake, then
// loops running gossip exchange rounds with the resulting peer until
// the connection drops or ctx is cancelled.
func (p *peerRunner) handleConn(ctx context.Context, conn net.Conn, dialed bool) {
	defer conn.Close()

	hsCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var ch *securechannel.Channel
	var err error
	if dialed {
		ch, err = securechannel.Dial(hsCtx, conn, p.mgr, p.scCfg, p.loggerFactory)
	} else {
		ch, err = securechannel.Accept(hsCtx, conn, p.mgr, p.scCfg, p.loggerFactory)
	}
	if err != nil {
		p.log.Errorf("handshake with %s failed: %v", conn.RemoteAddr(), err)
		return
	}
	defer ch.Close()

	ch.SetSecurityCallback(func(ev securechannel.SecurityEvent) {
		p.log.Warnf("security event from %s: %v", ev.PeerID, ev.Reason)
	})

	host, portStr, splitErr := net.SplitHostPort(conn.RemoteAddr().String())
	port := 0
	if splitErr == nil {
		fmt.Sscanf(portStr, "%d", &port)
	} else {
		host = conn.RemoteAddr().String()
	}
	if err := p.dir.Upsert(discovery.PeerDescriptor{
		PeerID:     ch.RemotePeerID(),
		DeviceName: ch.RemotePeerID(),
		Host:       host,
		Port:       port,
		LastSeen:   time.Now(),
	}, time.Now()); err != nil {
		p.log.Warnf("discovery: could not record peer %s: %v", ch.RemotePeerID(), err)
	}

	p.log.Infof("secure channel established with %s (session %x)", ch.RemotePeerID(), ch.SessionID())

	incoming := make(chan []byte, 8)
	readErr := p.readLoop(ctx, conn, ch, incoming)

	gossipTransport := gossip.NewChannelTransport(ch, incoming)
	gossipCfg := gossip.DefaultConfig()

	ticker := time.NewTicker(p.scCfg.AckTimeout)
	defer ticker.Stop()

	for {
		imported, err := gossip.Round(ctx, p.eng, p.sessionID, gossipTransport, gossipCfg, p.log)
		if err != nil {
			p.log.Warnf("gossip round with %s failed: %v", ch.RemotePeerID(), err)
			return
		}
		if imported > 0 {
			p.log.Infof("imported %d event(s) from %s", imported, ch.RemotePeerID())
		}

		select {
		case <-ctx.Done():
			return
		case err := <-readErr:
			p.log.Warnf("connection to %s closed: %v", ch.RemotePeerID(), err)
			return
		case <-ticker.C:
			// Re-run the exchange periodically so either side's newly
			// appended local events reach the other without a fresh
			// connection.
		}
	}
}

// readLoop pulls frames off conn, dispatches them through ch, and
// forwards decoded Data-frame plaintext onto incoming for gossip.Round
// to consume. It returns a channel that receives exactly one error
// when the loop exits (EOF, a framing error, or ctx cancellation).
func (p *peerRunner) readLoop(ctx context.Context, conn net.Conn, ch *securechannel.Channel, incoming chan<- []byte) <-chan error {
	done := make(chan error, 1)
	go func() {
		for {
			code, payload, err := securechannel.ReadFrame(conn)
			if err != nil {
				done <- err
				return
			}
			plaintext, ok, err := ch.HandleFrame(code, payload)
			if err != nil {
				done <- err
				return
			}
			if !ok || plaintext == nil {
				continue
			}
			select {
			case incoming <- plaintext:
			case <-ctx.Done():
				done <- ctx.Err()
				return
			}
		}
	}()
	return done
}

func appendChat(ctx context.Context, eng *syncengine.Engine, sessionID int64, self identity.DeviceIdentity, content string) error {
	_, err := eng.AppendLocalEvent(ctx, sessionID, event.ChatMessageBody{
		MessageID:  uuid.NewString(),
		PeerID:     self.PeerID,
		DeviceName: self.DeviceName,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	})
	return err
}

func appendRoll(ctx context.Context, eng *syncengine.Engine, mgr *identity.Manager, sessionID int64, formula, modeFlag string) error {
	mode, err := parseDiceMode(modeFlag)
	if err != nil {
		return err
	}
	body, err := dice.Roll(mgr, dice.Request{Formula: formula, Mode: mode})
	if err != nil {
		return err
	}
	_, err = eng.AppendLocalEvent(ctx, sessionID, body)
	return err
}

func parseDiceMode(s string) (event.DiceMode, error) {
	switch s {
	case "", "normal":
		return event.DiceModeNormal, nil
	case "advantage":
		return event.DiceModeAdvantage, nil
	case "disadvantage":
		return event.DiceModeDisadvantage, nil
	default:
		return 0, fmt.Errorf("syncpeerd: unknown dice mode %q", s)
	}
}

// openStore returns a SQLite-backed Store when storagePath is set, or
// an in-memory Store otherwise. The returned close func must be called
// on shutdown; it is a no-op for the in-memory case.
func openStore(ctx context.Context, storagePath string) (store.Store, func(), error) {
	if storagePath == "" {
		return store.NewMemStore(), func() {}, nil
	}

	db, err := sql.Open("sqlite3", storagePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite3 %s: %w", storagePath, err)
	}
	sqlStore := store.NewSQLStore(db)
	if err := sqlStore.CreateTables(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create tables: %w", err)
	}
	return sqlStore, func() { db.Close() }, nil
}

func printState(ctx context.Context, log logging.LeveledLogger, eng *syncengine.Engine, sessionID int64) {
	state, err := eng.GetSessionState(ctx, sessionID)
	if err != nil {
		log.Errorf("read session state: %v", err)
		return
	}
	printSessionState(state)
}

func printSessionState(state materializer.SessionState) {
	fmt.Println("---- session state ----")
	for _, msg := range state.Chat {
		fmt.Printf("[chat] %s (%s): %s\n", msg.DeviceName, msg.PeerID, msg.Content)
	}
	for _, roll := range state.DiceHistory {
		fmt.Printf("[dice] %s rolled %s = %d (valid=%v)\n",
			roll.Evidence.RollerDeviceName, roll.Evidence.Formula, roll.Evidence.Total, roll.SignatureValid)
	}
	for _, flag := range state.Flags {
		fmt.Printf("[flag] %s = %s\n", flag.Key, flag.Value)
	}
}

func fatalf(format string, args ...interface{}) {
	log.Fatalf("syncpeerd: "+format, args...)
}
