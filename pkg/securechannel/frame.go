package securechannel

import (
	"encoding/binary"
	"fmt"
	"io"
)

// FrameCode is the single-byte frame discriminator on the wire (§4.G).
type FrameCode byte

const (
	FrameHandshakeHello FrameCode = 1
	FrameHandshakeAck   FrameCode = 2
	FrameData           FrameCode = 3
	FrameAck            FrameCode = 4
	FrameClose          FrameCode = 5
	FrameHeartbeat      FrameCode = 6
)

func (c FrameCode) String() string {
	switch c {
	case FrameHandshakeHello:
		return "HandshakeHello"
	case FrameHandshakeAck:
		return "HandshakeAck"
	case FrameData:
		return "Data"
	case FrameAck:
		return "Ack"
	case FrameClose:
		return "Close"
	case FrameHeartbeat:
		return "Heartbeat"
	default:
		return fmt.Sprintf("FrameCode(%d)", byte(c))
	}
}

func (c FrameCode) valid() bool {
	switch c {
	case FrameHandshakeHello, FrameHandshakeAck, FrameData, FrameAck, FrameClose, FrameHeartbeat:
		return true
	default:
		return false
	}
}

// maxFramePayload bounds a single frame's payload to guard against a
// corrupt or hostile length prefix forcing an unbounded allocation.
const maxFramePayload = 16 * 1024 * 1024

// WriteFrame writes §6's wire frame: frame_code(1) || payload_len(4 BE)
// || payload.
func WriteFrame(w io.Writer, code FrameCode, payload []byte) error {
	header := make([]byte, 5)
	header[0] = byte(code)
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one wire frame from r.
func ReadFrame(r io.Reader) (FrameCode, []byte, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	code := FrameCode(header[0])
	if !code.valid() {
		return 0, nil, ErrUnknownFrame
	}
	length := binary.BigEndian.Uint32(header[1:])
	if length > maxFramePayload {
		return 0, nil, fmt.Errorf("securechannel: frame payload %d exceeds maximum", length)
	}
	if length == 0 {
		return code, nil, nil
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return code, payload, nil
}
