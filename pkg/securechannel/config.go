package securechannel

import "time"

// Config holds the Secure Channel's tunable timeouts (§5). Zero-valued
// fields are replaced with their default by withDefaults, which Dial
// and Accept apply, mirroring the teacher's clamp-to-bounds Config
// pattern.
type Config struct {
	// AckTimeout bounds how long Send waits for the peer's Ack before
	// failing with ErrAckTimeout. Default 5s.
	AckTimeout time.Duration

	// HeartbeatInterval is an idle period for a caller-run heartbeat
	// loop (supplemental to §4.G, documented in SPEC_FULL.md). Channel
	// itself does not read it and sends no Heartbeat on its own.
	// Default 5s, matching AckTimeout.
	HeartbeatInterval time.Duration

	// ReplayWindowSize is clamped to at most 64 by withDefaults. The
	// receive-side replay window is a fixed 64-sequence bitmap and
	// does not read this field. Default 64.
	ReplayWindowSize int
}

const (
	defaultAckTimeout        = 5 * time.Second
	defaultHeartbeatInterval = 5 * time.Second
	defaultReplayWindowSize  = 64
)

// DefaultConfig returns the §5 default timeouts.
func DefaultConfig() Config {
	return Config{
		AckTimeout:        defaultAckTimeout,
		HeartbeatInterval: defaultHeartbeatInterval,
		ReplayWindowSize:  defaultReplayWindowSize,
	}
}

func (c Config) withDefaults() Config {
	if c.AckTimeout <= 0 {
		c.AckTimeout = defaultAckTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.ReplayWindowSize <= 0 {
		c.ReplayWindowSize = defaultReplayWindowSize
	}
	// The replay bitmap is a fixed 64-bit word; window sizes beyond 64
	// don't widen it, they just go unused.
	if c.ReplayWindowSize > 64 {
		c.ReplayWindowSize = 64
	}
	return c
}
