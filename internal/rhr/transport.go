package rhr

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hpcvis/vizcore/internal/codec"
)

// Framing header, 32 bytes:
//
//	u32 magic | u8 version | u8 msg_type | u8 compression | u8 pad |
//	u32 sub_size | u32 payload_size | u32 raw_payload_size | u32 sequence |
//	u64 pad
const frameHeaderSize = 32

const frameVersion = 1

// TransportError wraps a failed framed read or write; the connection is
// reset on it.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rhr transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrMACVerification is returned when the identification handshake does
// not authenticate.
var ErrMACVerification = fmt.Errorf("rhr: MAC verification failed")

// SessionMAC derives the authentication tag of a role from the shared
// session key.
func SessionMAC(key []byte, role uint8) [macLen]byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte{role})
	var tag [macLen]byte
	mac.Sum(tag[:0])
	return tag
}

// VerifyMAC checks an identification tag in constant time.
func VerifyMAC(key []byte, role uint8, tag [macLen]byte) bool {
	want := SessionMAC(key, role)
	return hmac.Equal(want[:], tag[:])
}

// Conn frames sub-messages plus payloads over an ordered byte stream.
type Conn struct {
	rw  io.ReadWriter
	seq uint32
}

// NewConn wraps an ordered, reliable byte stream.
func NewConn(rw io.ReadWriter) *Conn { return &Conn{rw: rw} }

// Send frames one message. The payload is wrapped with comp at the framing
// level; the header records what actually got applied.
func (c *Conn) Send(sub SubMessage, payload []byte, comp codec.MessageCompression) error {
	used, wrapped := codec.CompressPayload(comp, payload)

	buf := make([]byte, frameHeaderSize+SubMessageSize)
	binary.LittleEndian.PutUint32(buf[0:], frameMagic)
	buf[4] = frameVersion
	buf[5] = sub.MessageType()
	buf[6] = byte(used)
	binary.LittleEndian.PutUint32(buf[8:], SubMessageSize)
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(wrapped)))
	binary.LittleEndian.PutUint32(buf[16:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[20:], c.seq)
	c.seq++

	w := wcur{b: buf[frameHeaderSize:]}
	sub.encode(&w)

	if _, err := c.rw.Write(buf); err != nil {
		return &TransportError{Op: "write header", Err: err}
	}
	if len(wrapped) > 0 {
		if _, err := c.rw.Write(wrapped); err != nil {
			return &TransportError{Op: "write payload", Err: err}
		}
	}
	return nil
}

// Receive reads one message and unwraps its payload.
func (c *Conn) Receive() (SubMessage, []byte, error) {
	buf := make([]byte, frameHeaderSize+SubMessageSize)
	if _, err := io.ReadFull(c.rw, buf); err != nil {
		return nil, nil, &TransportError{Op: "read header", Err: err}
	}
	if binary.LittleEndian.Uint32(buf[0:]) != frameMagic {
		return nil, nil, &TransportError{Op: "read header", Err: fmt.Errorf("bad magic")}
	}
	if buf[4] != frameVersion {
		return nil, nil, &TransportError{Op: "read header", Err: fmt.Errorf("version %d unsupported", buf[4])}
	}
	comp := codec.MessageCompression(buf[6])
	if binary.LittleEndian.Uint32(buf[8:]) != SubMessageSize {
		return nil, nil, &TransportError{Op: "read header", Err: fmt.Errorf("sub-message size mismatch")}
	}
	payloadSize := binary.LittleEndian.Uint32(buf[12:])
	rawSize := binary.LittleEndian.Uint32(buf[16:])

	sub, err := newSubMessage(buf[5])
	if err != nil {
		return nil, nil, &TransportError{Op: "decode", Err: err}
	}
	r := rcur{b: buf[frameHeaderSize:]}
	sub.decode(&r)

	var payload []byte
	if payloadSize > 0 {
		wrapped := make([]byte, payloadSize)
		if _, err := io.ReadFull(c.rw, wrapped); err != nil {
			return nil, nil, &TransportError{Op: "read payload", Err: err}
		}
		payload, err = codec.DecompressPayload(comp, wrapped, int(rawSize))
		if err != nil {
			return nil, nil, &TransportError{Op: "unwrap payload", Err: err}
		}
	}
	return sub, payload, nil
}
