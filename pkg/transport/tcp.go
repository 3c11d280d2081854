// Package transport supplies the "reliable, in-order, framed byte
// pipe between two authenticated peers" spec.md §1 assumes as a
// precondition. It establishes raw net.Conn ingress over TCP and hands
// each accepted or dialed connection to the caller; the length-prefix
// framing and all cryptographic handshaking live one layer up, in
// pkg/securechannel, which treats any io.ReadWriter-shaped connection
// this package produces as its transport.
package transport

import (
	"context"
	"net"
	"sync"

	"github.com/pion/logging"
)

// ConnHandler is invoked once per accepted inbound connection. It owns
// the connection's lifetime from that point on (typically by driving
// it through securechannel.Accept and a subsequent read loop) and is
// responsible for closing it.
type ConnHandler func(conn net.Conn)

// Listener accepts inbound TCP connections and hands each to a
// ConnHandler, while also tracking them so Stop can unblock any
// handler still reading when shutdown is requested.
type Listener struct {
	cfg     Config
	ln      net.Listener
	handler ConnHandler
	log     logging.LeveledLogger

	closeCh chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
}

// NewListener binds cfg.ListenAddr and returns a Listener ready to
// Start. handler must be non-nil; it is called from the accept loop's
// goroutine for every inbound connection.
func NewListener(cfg Config, handler ConnHandler, loggerFactory logging.LoggerFactory) (*Listener, error) {
	return newListener(cfg, nil, handler, loggerFactory)
}

// NewListenerFrom wraps an already-bound net.Listener (e.g. one built
// with net.Listen by a caller that needs control over socket options,
// or a bufconn/in-memory listener in tests) instead of binding one
// from cfg.ListenAddr.
func NewListenerFrom(ln net.Listener, cfg Config, handler ConnHandler, loggerFactory logging.LoggerFactory) (*Listener, error) {
	return newListener(cfg, ln, handler, loggerFactory)
}

func newListener(cfg Config, ln net.Listener, handler ConnHandler, loggerFactory logging.LoggerFactory) (*Listener, error) {
	if handler == nil {
		return nil, ErrInvalidAddress
	}
	cfg = cfg.withDefaults()

	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}

	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", cfg.ListenAddr)
		if err != nil {
			return nil, err
		}
	}

	return &Listener{
		cfg:     cfg,
		ln:      ln,
		handler: handler,
		log:     loggerFactory.NewLogger("transport-tcp"),
		closeCh: make(chan struct{}),
		conns:   make(map[net.Conn]struct{}),
	}, nil
}

// Start begins accepting connections in a background goroutine. It is
// idempotent-guarded: calling it twice returns ErrAlreadyStarted.
func (l *Listener) Start() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	if l.started {
		l.mu.Unlock()
		return ErrAlreadyStarted
	}
	l.started = true
	l.mu.Unlock()

	l.log.Infof("transport: listening on %s", l.ln.Addr())

	l.wg.Add(1)
	go l.acceptLoop()
	return nil
}

// LocalAddr returns the address the Listener is bound to.
func (l *Listener) LocalAddr() net.Addr {
	return l.ln.Addr()
}

// Stop closes the underlying listener and every connection it has
// accepted, then waits for the accept loop to exit.
func (l *Listener) Stop() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.closed = true
	l.mu.Unlock()

	close(l.closeCh)
	l.ln.Close()

	l.connsMu.Lock()
	for conn := range l.conns {
		conn.Close()
	}
	l.conns = make(map[net.Conn]struct{})
	l.connsMu.Unlock()

	l.wg.Wait()
	return nil
}

func (l *Listener) acceptLoop() {
	defer l.wg.Done()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.closeCh:
				return
			default:
				l.log.Warnf("transport: accept error: %v", err)
				continue
			}
		}

		l.connsMu.Lock()
		l.conns[conn] = struct{}{}
		l.connsMu.Unlock()

		go func() {
			defer func() {
				l.connsMu.Lock()
				delete(l.conns, conn)
				l.connsMu.Unlock()
			}()
			l.handler(conn)
		}()
	}
}

// Dial opens an outbound TCP connection to addr, the raw byte pipe a
// caller then drives through securechannel.Dial. If ctx carries no
// deadline, cfg.DialTimeout bounds the attempt.
func Dial(ctx context.Context, addr string, cfg Config) (net.Conn, error) {
	if addr == "" {
		return nil, ErrInvalidAddress
	}
	cfg = cfg.withDefaults()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}

	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}
