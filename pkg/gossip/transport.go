package gossip

import (
	"context"
	"io"

	"github.com/duskboard/sync/pkg/securechannel"
)

// Transport is the minimal message-exchange seam Round needs: send one
// opaque payload, receive the next one, over an already-authenticated
// channel.
type Transport interface {
	Send(ctx context.Context, payload []byte) error
	Receive(ctx context.Context) ([]byte, error)
}

// ChannelTransport adapts a securechannel.Channel to Transport. The
// channel's Send already does what Transport.Send needs; receiving is
// different because a Channel has no pull-based Receive of its own —
// its owner's read loop feeds every frame through HandleFrame and gets
// plaintext back for Data frames. ChannelTransport expects the owner
// to forward those plaintexts onto incoming; Receive then just blocks
// on that channel.
type ChannelTransport struct {
	ch       *securechannel.Channel
	incoming <-chan []byte
}

// NewChannelTransport constructs a ChannelTransport over ch, reading
// inbound gossip messages from incoming.
func NewChannelTransport(ch *securechannel.Channel, incoming <-chan []byte) *ChannelTransport {
	return &ChannelTransport{ch: ch, incoming: incoming}
}

func (t *ChannelTransport) Send(ctx context.Context, payload []byte) error {
	return t.ch.Send(ctx, payload)
}

func (t *ChannelTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg, ok := <-t.incoming:
		if !ok {
			return nil, io.EOF
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
