package rhr

import (
	"fmt"
	"io"

	"github.com/hpcvis/vizcore/internal/codec"
	"go.uber.org/zap"
)

// Client is the decoding side of the tile protocol: it requests views and
// reassembles streamed tiles into per-view framebuffers.
type Client struct {
	log  *zap.Logger
	conn *Conn
	key  []byte

	variants map[string]bool
}

// NewClient wraps an established connection.
func NewClient(log *zap.Logger, rw io.ReadWriter, sessionKey []byte) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		log:      log.Named("rhr-client"),
		conn:     NewConn(rw),
		key:      sessionKey,
		variants: make(map[string]bool),
	}
}

// Identify runs the authentication handshake from the client side.
func (c *Client) Identify() error {
	id := &Identify{Role: RoleClient, MAC: SessionMAC(c.key, RoleClient)}
	if err := c.conn.Send(id, nil, codec.CompressionNone); err != nil {
		return err
	}
	sub, _, err := c.conn.Receive()
	if err != nil {
		return err
	}
	reply, ok := sub.(*Identify)
	if !ok {
		return &TransportError{Op: "identify", Err: fmt.Errorf("unexpected message type %d", sub.MessageType())}
	}
	if reply.Role != RoleServer || !VerifyMAC(c.key, reply.Role, reply.MAC) {
		return ErrMACVerification
	}
	return nil
}

// SendMatrices requests rendering of one view.
func (c *Client) SendMatrices(m *Matrices) error {
	return c.conn.Send(m, nil, codec.CompressionNone)
}

// SendLights updates a view's light sources.
func (c *Client) SendLights(l *Lights) error {
	return c.conn.Send(l, nil, codec.CompressionNone)
}

// RequestBounds asks the server for its scene bounding sphere.
func (c *Client) RequestBounds() error {
	return c.conn.Send(&Bounds{SendReply: 1}, nil, codec.CompressionNone)
}

// SendAnimation reports the client-side timestep.
func (c *Client) SendAnimation(a *Animation) error {
	return c.conn.Send(a, nil, codec.CompressionNone)
}

// Variants returns the variant visibilities the server synced.
func (c *Client) Variants() map[string]bool {
	out := make(map[string]bool, len(c.variants))
	for k, v := range c.variants {
		out[k] = v
	}
	return out
}

// Frame is a reassembled tile batch: one framebuffer per view, plus the
// tile headers in arrival order.
type Frame struct {
	Views map[int16]*Framebuffer
	Tiles []Tile
}

// ReceiveFrame drains messages until a Last-flagged tile arrives and
// reconstructs the framebuffers. Tiles may arrive in any spatial order
// between First and Last.
func (c *Client) ReceiveFrame() (*Frame, error) {
	frame := &Frame{Views: make(map[int16]*Framebuffer)}
	seenFirst := false
	for {
		sub, payload, err := c.conn.Receive()
		if err != nil {
			return nil, err
		}
		switch msg := sub.(type) {
		case *Tile:
			if !seenFirst {
				if msg.Flags&TileFirst == 0 {
					return nil, &TransportError{Op: "frame", Err: fmt.Errorf("frame does not start with a First tile")}
				}
				seenFirst = true
			}
			frame.Tiles = append(frame.Tiles, *msg)
			if msg.Width > 0 && msg.Height > 0 {
				fb, ok := frame.Views[msg.ViewNum]
				if !ok {
					fb = &Framebuffer{
						Width:  int(msg.TotalWidth),
						Height: int(msg.TotalHeight),
						RGBA:   make([]byte, int(msg.TotalWidth)*int(msg.TotalHeight)*4),
						Depth:  make([]float32, int(msg.TotalWidth)*int(msg.TotalHeight)),
					}
					frame.Views[msg.ViewNum] = fb
				}
				if err := DecodeTileInto(fb.RGBA, fb.Depth, msg, payload); err != nil {
					return nil, err
				}
			}
			if msg.Flags&TileLast != 0 {
				return frame, nil
			}
		case *Variant:
			if msg.Remove != 0 {
				delete(c.variants, msg.Name)
			} else if msg.ConfigureVisibility != 0 {
				c.variants[msg.Name] = msg.Visible != 0
			}
		case *Bounds, *Animation:
			// Out-of-band state updates may interleave with tile streams.
		default:
			c.log.Debug("ignoring message", zap.Uint8("type", sub.MessageType()))
		}
	}
}

// ReceiveMessage exposes the raw message stream for callers driving the
// protocol manually.
func (c *Client) ReceiveMessage() (SubMessage, []byte, error) {
	return c.conn.Receive()
}
