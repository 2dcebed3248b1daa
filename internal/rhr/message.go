package rhr

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Wire protocol: every message is a 32-byte framing header, a fixed-size
// sub-message slot of SubMessageSize bytes, and an optional payload of
// header.PayloadSize bytes. All integers and doubles are little-endian;
// matrices are column-major.

// SubMessageSize bounds the serialized sub-messages.
const SubMessageSize = 840

const frameMagic = 0x4d524852 // "RHRM"

// Message types.
const (
	TypeMatrices uint8 = iota
	TypeLights
	TypeTile
	TypeBounds
	TypeAnimation
	TypeVariant
	TypeIdentify
)

// Eyes of a stereo view.
const (
	EyeMiddle uint8 = iota
	EyeLeft
	EyeRight
)

// Tile flags.
const (
	TileNone    uint8 = 0
	TileFirst   uint8 = 1
	TileLast    uint8 = 2
	TileRequest uint8 = 4
)

// Tile formats.
const (
	FormatDepth8 uint8 = iota
	FormatDepth16
	FormatDepth24
	FormatDepth32
	FormatDepthFloat
	FormatColorRGBA
	FormatDepthViewer
)

// Tile compression bits.
const (
	CompRaw                uint16 = 0
	CompDepthPredict       uint16 = 1
	CompDepthPredictPlanar uint16 = 2
	CompDepthQuantize      uint16 = 4
	CompDepthQuantizePlanar uint16 = 8
	CompDepthZfp           uint16 = 16
	CompJpeg               uint16 = 32
	CompPredictRGB         uint16 = 64
	CompPredictRGBA        uint16 = 128
	CompClear              uint16 = 256
)

// wcur and rcur are fixed-buffer cursors for the packed layouts.
type wcur struct {
	b   []byte
	pos int
}

func (w *wcur) u8(v uint8) {
	w.b[w.pos] = v
	w.pos++
}

func (w *wcur) u16(v uint16) {
	binary.LittleEndian.PutUint16(w.b[w.pos:], v)
	w.pos += 2
}

func (w *wcur) i16(v int16) { w.u16(uint16(v)) }

func (w *wcur) u32(v uint32) {
	binary.LittleEndian.PutUint32(w.b[w.pos:], v)
	w.pos += 4
}

func (w *wcur) i32(v int32) { w.u32(uint32(v)) }

func (w *wcur) f64(v float64) {
	binary.LittleEndian.PutUint64(w.b[w.pos:], math.Float64bits(v))
	w.pos += 8
}

func (w *wcur) mat(m *[16]float64) {
	for _, v := range m {
		w.f64(v)
	}
}

type rcur struct {
	b   []byte
	pos int
}

func (r *rcur) u8() uint8 {
	v := r.b[r.pos]
	r.pos++
	return v
}

func (r *rcur) u16() uint16 {
	v := binary.LittleEndian.Uint16(r.b[r.pos:])
	r.pos += 2
	return v
}

func (r *rcur) i16() int16 { return int16(r.u16()) }

func (r *rcur) u32() uint32 {
	v := binary.LittleEndian.Uint32(r.b[r.pos:])
	r.pos += 4
	return v
}

func (r *rcur) i32() int32 { return int32(r.u32()) }

func (r *rcur) f64() float64 {
	v := math.Float64frombits(binary.LittleEndian.Uint64(r.b[r.pos:]))
	r.pos += 8
	return v
}

func (r *rcur) mat(m *[16]float64) {
	for i := range m {
		m[i] = r.f64()
	}
}

// SubMessage is one of the protocol's fixed-layout payloads.
type SubMessage interface {
	MessageType() uint8
	encode(w *wcur)
	decode(r *rcur)
}

// Matrices requests rendering of one view; Last marks the final view of a
// frame batch.
type Matrices struct {
	Last          uint8
	Eye           uint8
	ViewNum       int16
	Width, Height uint16
	RequestNumber uint32
	Time          float64
	Model         [16]float64
	View          [16]float64
	Proj          [16]float64
	Head          [16]float64
}

func (*Matrices) MessageType() uint8 { return TypeMatrices }

func (m *Matrices) encode(w *wcur) {
	w.u8(m.Last)
	w.u8(m.Eye)
	w.i16(m.ViewNum)
	w.u16(m.Width)
	w.u16(m.Height)
	w.u32(m.RequestNumber)
	w.f64(m.Time)
	w.mat(&m.Model)
	w.mat(&m.View)
	w.mat(&m.Proj)
	w.mat(&m.Head)
}

func (m *Matrices) decode(r *rcur) {
	m.Last = r.u8()
	m.Eye = r.u8()
	m.ViewNum = r.i16()
	m.Width = r.u16()
	m.Height = r.u16()
	m.RequestNumber = r.u32()
	m.Time = r.f64()
	r.mat(&m.Model)
	r.mat(&m.View)
	r.mat(&m.Proj)
	r.mat(&m.Head)
}

// Equal compares the view-defining fields and ignores the request
// bookkeeping (Last, RequestNumber, Time).
func (m *Matrices) Equal(o *Matrices) bool {
	return m.Eye == o.Eye && m.ViewNum == o.ViewNum && m.Width == o.Width && m.Height == o.Height &&
		m.Model == o.Model && m.View == o.View && m.Proj == o.Proj && m.Head == o.Head
}

// NumLights is the light-source slot count.
const NumLights = 4

// Light mirrors one fixed-function light source.
type Light struct {
	Enabled       uint8
	Position      [4]float64
	Ambient       [4]float64
	Diffuse       [4]float64
	Specular      [4]float64
	SpotDirection [3]float64
	SpotCutoff    float64
	SpotExponent  float64
	Attenuation   [3]float64
}

// DefaultLight returns the conventional defaults of one slot.
func DefaultLight() Light {
	return Light{
		Position:      [4]float64{0, 0, 1, 0},
		Ambient:       [4]float64{0, 0, 0, 1},
		SpotDirection: [3]float64{0, 0, -1},
		SpotCutoff:    180,
		Attenuation:   [3]float64{1, 0, 0},
	}
}

// Lights carries all light slots of one view.
type Lights struct {
	ViewNum int16
	Lights  [NumLights]Light
}

// DefaultLights returns the slot defaults with a white headlight in slot 0.
func DefaultLights() Lights {
	var l Lights
	l.ViewNum = -1
	for i := range l.Lights {
		l.Lights[i] = DefaultLight()
	}
	l.Lights[0].Diffuse = [4]float64{1, 1, 1, 1}
	l.Lights[0].Specular = [4]float64{1, 1, 1, 1}
	return l
}

func (*Lights) MessageType() uint8 { return TypeLights }

func (l *Lights) encode(w *wcur) {
	w.i16(l.ViewNum)
	for i := range l.Lights {
		s := &l.Lights[i]
		w.u8(s.Enabled)
		for _, v := range s.Position {
			w.f64(v)
		}
		for _, v := range s.Ambient {
			w.f64(v)
		}
		for _, v := range s.Diffuse {
			w.f64(v)
		}
		for _, v := range s.Specular {
			w.f64(v)
		}
		for _, v := range s.SpotDirection {
			w.f64(v)
		}
		w.f64(s.SpotCutoff)
		w.f64(s.SpotExponent)
		for _, v := range s.Attenuation {
			w.f64(v)
		}
	}
}

func (l *Lights) decode(r *rcur) {
	l.ViewNum = r.i16()
	for i := range l.Lights {
		s := &l.Lights[i]
		s.Enabled = r.u8()
		for j := range s.Position {
			s.Position[j] = r.f64()
		}
		for j := range s.Ambient {
			s.Ambient[j] = r.f64()
		}
		for j := range s.Diffuse {
			s.Diffuse[j] = r.f64()
		}
		for j := range s.Specular {
			s.Specular[j] = r.f64()
		}
		for j := range s.SpotDirection {
			s.SpotDirection[j] = r.f64()
		}
		s.SpotCutoff = r.f64()
		s.SpotExponent = r.f64()
		for j := range s.Attenuation {
			s.Attenuation[j] = r.f64()
		}
	}
}

// Bounds carries the scene bounding sphere; SendReply asks the peer to
// answer with its own.
type Bounds struct {
	SendReply uint8
	Center    [3]float64
	Radius    float64
}

func (*Bounds) MessageType() uint8 { return TypeBounds }

func (b *Bounds) encode(w *wcur) {
	w.u8(b.SendReply)
	for _, v := range b.Center {
		w.f64(v)
	}
	w.f64(b.Radius)
}

func (b *Bounds) decode(r *rcur) {
	b.SendReply = r.u8()
	for i := range b.Center {
		b.Center[i] = r.f64()
	}
	b.Radius = r.f64()
}

// Animation reports the current timestep and the total count.
type Animation struct {
	Total   int32
	Current int32
	Time    float64
}

func (*Animation) MessageType() uint8 { return TypeAnimation }

func (a *Animation) encode(w *wcur) {
	w.i32(a.Total)
	w.i32(a.Current)
	w.f64(a.Time)
}

func (a *Animation) decode(r *rcur) {
	a.Total = r.i32()
	a.Current = r.i32()
	a.Time = r.f64()
}

// variantNameLen is the fixed name slot of a Variant message.
const variantNameLen = 200

// Variant controls the visibility of one named scene variant.
type Variant struct {
	ConfigureVisibility uint32
	Visible             uint32
	Remove              uint32
	Name                string
}

func (*Variant) MessageType() uint8 { return TypeVariant }

func (v *Variant) encode(w *wcur) {
	w.u32(v.ConfigureVisibility)
	w.u32(v.Visible)
	w.u32(v.Remove)
	name := v.Name
	if len(name) > variantNameLen-1 {
		name = name[:variantNameLen-1]
	}
	copy(w.b[w.pos:w.pos+variantNameLen], name)
	w.pos += variantNameLen
}

func (v *Variant) decode(r *rcur) {
	v.ConfigureVisibility = r.u32()
	v.Visible = r.u32()
	v.Remove = r.u32()
	raw := r.b[r.pos : r.pos+variantNameLen]
	r.pos += variantNameLen
	end := 0
	for end < len(raw) && raw[end] != 0 {
		end++
	}
	v.Name = string(raw[:end])
}

// Tile describes one encoded framebuffer region.
type Tile struct {
	Flags         uint8
	Format        uint8
	Compression   uint16
	Eye           uint8
	FrameNumber   uint32
	RequestNumber uint32
	Size          uint32
	X, Y          uint16
	ViewNum       int16
	Width, Height uint16
	TotalWidth    uint16
	TotalHeight   uint16
	Timestep      int32
	UnzippedSize  int32
	Head          [16]float64
	View          [16]float64
	Proj          [16]float64
	Model         [16]float64
	RequestTime   float64
}

func (*Tile) MessageType() uint8 { return TypeTile }

func (t *Tile) encode(w *wcur) {
	w.u8(t.Flags)
	w.u8(t.Format)
	w.u16(t.Compression)
	w.u8(t.Eye)
	w.u32(t.FrameNumber)
	w.u32(t.RequestNumber)
	w.u32(t.Size)
	w.u16(t.X)
	w.u16(t.Y)
	w.i16(t.ViewNum)
	w.u16(t.Width)
	w.u16(t.Height)
	w.u16(t.TotalWidth)
	w.u16(t.TotalHeight)
	w.i32(t.Timestep)
	w.i32(t.UnzippedSize)
	w.mat(&t.Head)
	w.mat(&t.View)
	w.mat(&t.Proj)
	w.mat(&t.Model)
	w.f64(t.RequestTime)
}

func (t *Tile) decode(r *rcur) {
	t.Flags = r.u8()
	t.Format = r.u8()
	t.Compression = r.u16()
	t.Eye = r.u8()
	t.FrameNumber = r.u32()
	t.RequestNumber = r.u32()
	t.Size = r.u32()
	t.X = r.u16()
	t.Y = r.u16()
	t.ViewNum = r.i16()
	t.Width = r.u16()
	t.Height = r.u16()
	t.TotalWidth = r.u16()
	t.TotalHeight = r.u16()
	t.Timestep = r.i32()
	t.UnzippedSize = r.i32()
	r.mat(&t.Head)
	r.mat(&t.View)
	r.mat(&t.Proj)
	r.mat(&t.Model)
	t.RequestTime = r.f64()
}

// macLen is the authentication tag length.
const macLen = 32

// Identify opens a connection: the peer's role and an HMAC over it derived
// from the shared session key.
type Identify struct {
	Role uint8
	MAC  [macLen]byte
}

// Connection roles.
const (
	RoleClient uint8 = 1
	RoleServer uint8 = 2
)

func (*Identify) MessageType() uint8 { return TypeIdentify }

func (id *Identify) encode(w *wcur) {
	w.u8(id.Role)
	copy(w.b[w.pos:w.pos+macLen], id.MAC[:])
	w.pos += macLen
}

func (id *Identify) decode(r *rcur) {
	id.Role = r.u8()
	copy(id.MAC[:], r.b[r.pos:r.pos+macLen])
	r.pos += macLen
}

func newSubMessage(msgType uint8) (SubMessage, error) {
	switch msgType {
	case TypeMatrices:
		return &Matrices{}, nil
	case TypeLights:
		return &Lights{}, nil
	case TypeTile:
		return &Tile{}, nil
	case TypeBounds:
		return &Bounds{}, nil
	case TypeAnimation:
		return &Animation{}, nil
	case TypeVariant:
		return &Variant{}, nil
	case TypeIdentify:
		return &Identify{}, nil
	}
	return nil, fmt.Errorf("rhr: unknown message type %d", msgType)
}
