// Package securechannel implements §4.G: the mutually authenticated,
// forward-secret secure channel between two peers — handshake, key
// schedule, AES-GCM framed data transport with ack/retry, and
// anti-replay.
package securechannel

import (
	"context"
	"crypto/cipher"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/duskboard/sync/pkg/identity"
)

// SecurityEvent is emitted on CryptographicFailure, ReplayDetected, or
// a malformed frame — conditions that do not by themselves tear down
// the channel (§7 propagation policy).
type SecurityEvent struct {
	PeerID string
	Reason error
}

// SecurityCallback receives SecurityEvents. May be nil.
type SecurityCallback func(SecurityEvent)

// Channel is one established, authenticated secure channel. Two lock
// domains guard it per §5: sendSeq is a lock-free atomic counter, and
// recvWindow has its own small mutex; writes to the underlying conn
// are serialized by writeMu so interleaved Data/Ack/Heartbeat frames
// don't corrupt each other on the wire.
type Channel struct {
	conn io.ReadWriter
	cfg  Config
	log  logging.LeveledLogger

	sessionID    [16]byte
	localPeerID  string
	remotePeerID string
	isResponder  bool

	sendAEAD cipher.AEAD
	recvAEAD cipher.AEAD
	sendSalt [4]byte
	sendSeq  uint64 // atomic, pre-incremented from 0 so the first value used is 1

	recvWindow replayWindow

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[uint64]chan struct{}

	onSecurity SecurityCallback

	closeOnce sync.Once
	closed    chan struct{}
}

// RemotePeerID returns the authenticated peer_id of the other side.
func (c *Channel) RemotePeerID() string { return c.remotePeerID }

// SessionID returns the 16-byte session id negotiated at handshake.
func (c *Channel) SessionID() [16]byte { return c.sessionID }

// SetSecurityCallback installs the callback invoked for
// CryptographicFailure/ReplayDetected/malformed-frame conditions.
func (c *Channel) SetSecurityCallback(cb SecurityCallback) { c.onSecurity = cb }

func (c *Channel) emitSecurity(reason error) {
	if c.onSecurity != nil {
		c.onSecurity(SecurityEvent{PeerID: c.remotePeerID, Reason: reason})
	}
	if c.log != nil {
		c.log.Warnf("securechannel: security event from %s: %v", c.remotePeerID, reason)
	}
}

// Dial performs the initiator side of the §4.G handshake over conn and
// returns an established Channel.
func Dial(ctx context.Context, conn io.ReadWriter, mgr *identity.Manager, cfg Config, loggerFactory logging.LoggerFactory) (*Channel, error) {
	cfg = cfg.withDefaults()
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	log := loggerFactory.NewLogger("securechannel")

	sessionID := [16]byte(uuid.New())

	ephemeral, err := identity.GenerateEphemeralKXPair()
	if err != nil {
		return nil, err
	}
	defer ephemeral.Zeroize()

	hello, err := BuildHandshakeMessage(mgr, sessionID, ephemeral)
	if err != nil {
		return nil, err
	}
	helloBytes := hello.MarshalBinary()
	if err := writeFrameCtx(ctx, conn, FrameHandshakeHello, helloBytes); err != nil {
		return nil, err
	}

	code, payload, err := readFrameCtx(ctx, conn)
	if err != nil {
		return nil, err
	}
	if code != FrameHandshakeAck {
		return nil, ErrUnknownFrame
	}
	ack, err := UnmarshalHandshakeMessage(payload)
	if err != nil {
		return nil, err
	}
	if err := VerifyHandshakeMessage(ack); err != nil {
		return nil, err
	}
	if ack.SessionID != sessionID {
		return nil, ErrSessionMismatch
	}

	secrets, err := computeSharedSecrets(mgr, ephemeral.Private, ack.EphemeralPublicKey, ack.KeyExchangePublicKey)
	if err != nil {
		return nil, err
	}
	keys, err := deriveChannelKeys(secrets, false, helloBytes, payload)
	if err != nil {
		return nil, err
	}

	return newChannel(conn, cfg, log, sessionID, hello.PeerID, ack.PeerID, false, keys)
}

// Accept performs the responder side of the §4.G handshake over conn
// and returns an established Channel.
func Accept(ctx context.Context, conn io.ReadWriter, mgr *identity.Manager, cfg Config, loggerFactory logging.LoggerFactory) (*Channel, error) {
	cfg = cfg.withDefaults()
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	log := loggerFactory.NewLogger("securechannel")

	code, payload, err := readFrameCtx(ctx, conn)
	if err != nil {
		return nil, err
	}
	if code != FrameHandshakeHello {
		return nil, ErrUnknownFrame
	}
	hello, err := UnmarshalHandshakeMessage(payload)
	if err != nil {
		return nil, err
	}
	if err := VerifyHandshakeMessage(hello); err != nil {
		return nil, err
	}

	ephemeral, err := identity.GenerateEphemeralKXPair()
	if err != nil {
		return nil, err
	}
	defer ephemeral.Zeroize()

	ack, err := BuildHandshakeMessage(mgr, hello.SessionID, ephemeral)
	if err != nil {
		return nil, err
	}
	ackBytes := ack.MarshalBinary()
	if err := writeFrameCtx(ctx, conn, FrameHandshakeAck, ackBytes); err != nil {
		return nil, err
	}

	secrets, err := computeSharedSecrets(mgr, ephemeral.Private, hello.EphemeralPublicKey, hello.KeyExchangePublicKey)
	if err != nil {
		return nil, err
	}
	keys, err := deriveChannelKeys(secrets, true, payload, ackBytes)
	if err != nil {
		return nil, err
	}

	return newChannel(conn, cfg, log, hello.SessionID, ack.PeerID, hello.PeerID, true, keys)
}

func newChannel(conn io.ReadWriter, cfg Config, log logging.LeveledLogger, sessionID [16]byte, localPeerID, remotePeerID string, isResponder bool, keys channelKeys) (*Channel, error) {
	sendAEAD, err := newAEAD(keys.sendKey)
	if err != nil {
		return nil, err
	}
	recvAEAD, err := newAEAD(keys.recvKey)
	if err != nil {
		return nil, err
	}
	salt, err := newSendSalt()
	if err != nil {
		return nil, err
	}
	return &Channel{
		conn:         conn,
		cfg:          cfg,
		log:          log,
		sessionID:    sessionID,
		localPeerID:  localPeerID,
		remotePeerID: remotePeerID,
		isResponder:  isResponder,
		sendAEAD:     sendAEAD,
		recvAEAD:     recvAEAD,
		sendSalt:     salt,
		pending:      make(map[uint64]chan struct{}),
		closed:       make(chan struct{}),
	}, nil
}

// Send encrypts and writes plaintext as a Data frame, then waits up to
// cfg.AckTimeout for the corresponding Ack. A failed wait returns
// ErrAckTimeout; the caller may retry by calling Send again, which
// allocates a new sequence number (§4.G ack semantics).
func (c *Channel) Send(ctx context.Context, plaintext []byte) error {
	select {
	case <-c.closed:
		return ErrChannelClosed
	default:
	}

	seq := atomic.AddUint64(&c.sendSeq, 1)
	payload := encodeDataPayload(c.sendAEAD, c.sessionID, c.sendSalt, seq, plaintext)

	wait := make(chan struct{})
	c.pendingMu.Lock()
	c.pending[seq] = wait
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, seq)
		c.pendingMu.Unlock()
	}()

	if err := c.writeFrame(FrameData, payload); err != nil {
		return err
	}

	timer := time.NewTimer(c.cfg.AckTimeout)
	defer timer.Stop()
	select {
	case <-wait:
		return nil
	case <-timer.C:
		return ErrAckTimeout
	case <-ctx.Done():
		return ErrCancelled
	case <-c.closed:
		return ErrChannelClosed
	}
}

// HandleFrame processes one received wire frame (Data/Ack/Close/
// Heartbeat). Callers own the read loop (over conn, a net.Conn-shaped
// transport) and dispatch each frame here; Data frames that decrypt
// successfully are returned as plaintext, everything else returns a
// nil plaintext with ok=false.
func (c *Channel) HandleFrame(code FrameCode, payload []byte) (plaintext []byte, ok bool, err error) {
	switch code {
	case FrameData:
		pt, seq, decErr := decodeDataPayload(c.recvAEAD, c.sessionID, payload)
		if decErr != nil {
			c.emitSecurity(decErr)
			return nil, false, nil
		}
		if replayErr := c.recvWindow.check(seq); replayErr != nil {
			c.emitSecurity(replayErr)
			return nil, false, nil
		}
		if ackErr := c.sendAckFrame(seq); ackErr != nil {
			return nil, false, ackErr
		}
		return pt, true, nil

	case FrameAck:
		if len(payload) != 8 {
			c.emitSecurity(fmt.Errorf("securechannel: malformed ack frame"))
			return nil, false, nil
		}
		seq := beUint64(payload)
		c.pendingMu.Lock()
		wait, exists := c.pending[seq]
		c.pendingMu.Unlock()
		if exists {
			close(wait)
		}
		return nil, false, nil

	case FrameClose:
		c.Close()
		return nil, false, nil

	case FrameHeartbeat:
		return nil, false, nil

	default:
		return nil, false, ErrUnknownFrame
	}
}

func (c *Channel) sendAckFrame(seq uint64) error {
	return c.writeFrame(FrameAck, beBytes(seq))
}

// SendHeartbeat emits one Heartbeat frame (supplemental feature,
// documented in SPEC_FULL.md). Channel runs no idle timer and never
// calls it itself; HandleFrame ignores a received Heartbeat.
func (c *Channel) SendHeartbeat() error {
	return c.writeFrame(FrameHeartbeat, nil)
}

// Close sends a Close frame (best-effort) and marks the channel
// closed; further Sends fail with ErrChannelClosed.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.writeFrame(FrameClose, nil)
		close(c.closed)
	})
	return err
}

func (c *Channel) writeFrame(code FrameCode, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.conn, code, payload)
}

func writeFrameCtx(ctx context.Context, w io.Writer, code FrameCode, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return ErrCancelled
	}
	return WriteFrame(w, code, payload)
}

func readFrameCtx(ctx context.Context, r io.Reader) (FrameCode, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, ErrCancelled
	}
	return ReadFrame(r)
}
