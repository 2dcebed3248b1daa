package rhr

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("test-session-key")

// patternRenderer fills every view with a deterministic pattern so the
// client-side reassembly can be checked byte for byte.
type patternRenderer struct {
	rendered [][]Framebuffer
}

func (r *patternRenderer) Render(views []Matrices) ([]Framebuffer, error) {
	fbs := make([]Framebuffer, len(views))
	for i, v := range views {
		w, h := int(v.Width), int(v.Height)
		fb := Framebuffer{Width: w, Height: h, RGBA: make([]byte, w*h*4), Depth: make([]float32, w*h)}
		for p := 0; p < w*h; p++ {
			fb.RGBA[p*4] = byte(p)
			fb.RGBA[p*4+1] = byte(p >> 8)
			fb.RGBA[p*4+2] = byte(int(v.ViewNum) * 31)
			fb.RGBA[p*4+3] = 0xff
			fb.Depth[p] = float32(p%256) / 256
		}
		fbs[i] = fb
	}
	r.rendered = append(r.rendered, fbs)
	return fbs, nil
}

func (r *patternRenderer) Bounds() (center [3]float64, radius float64) {
	return [3]float64{1, 2, 3}, 4.5
}

func startSession(t *testing.T, opts ServerOptions) (*Client, *patternRenderer, chan error) {
	t.Helper()
	srvConn, cliConn := memDuplex()
	renderer := &patternRenderer{}
	opts.SessionKey = testKey
	server := NewServer(nil, renderer, opts)
	server.SetVariant("halfres", true)

	done := make(chan error, 1)
	go func() { done <- server.Serve(srvConn) }()
	t.Cleanup(func() {
		cliConn.Close()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	})

	client := NewClient(nil, cliConn, testKey)
	require.NoError(t, client.Identify())
	return client, renderer, done
}

func matricesFor(view int16, w, h uint16, last uint8) *Matrices {
	m := &Matrices{ViewNum: view, Width: w, Height: h, Last: last, RequestNumber: 7, Time: 0.25}
	m.Model[0], m.Model[5], m.Model[10], m.Model[15] = 1, 1, 1, 1
	return m
}

func TestTileFrameCorrectness(t *testing.T) {
	client, renderer, _ := startSession(t, ServerOptions{
		TileWidth:  64,
		TileHeight: 64,
		RGBA:       RGBAParams{Codec: ColorRaw},
		Depth:      DepthParams{Codec: DepthRaw, Precision: 24},
	})

	require.NoError(t, client.SendMatrices(matricesFor(0, 128, 128, 0)))
	require.NoError(t, client.SendMatrices(matricesFor(1, 128, 128, 1)))

	frame, err := client.ReceiveFrame()
	require.NoError(t, err)

	// 4 tiles per view, one color and one depth message each.
	require.Len(t, frame.Tiles, 16)

	first, last := 0, 0
	colorQuads := make(map[string]int)
	for _, tile := range frame.Tiles {
		if tile.Flags&TileFirst != 0 {
			first++
		}
		if tile.Flags&TileLast != 0 {
			last++
		}
		assert.Equal(t, uint32(7), tile.RequestNumber)
		assert.Equal(t, 0.25, tile.RequestTime)
		if tile.Format == FormatColorRGBA {
			colorQuads[fmt.Sprintf("%d/%d/%d/%d/%d", tile.ViewNum, tile.X, tile.Y, tile.Width, tile.Height)]++
		}
	}
	assert.Equal(t, 1, first, "exactly one First tile")
	assert.Equal(t, 1, last, "exactly one Last tile")

	// The color quadruples cover both 128x128 views exactly once.
	require.Len(t, colorQuads, 8)
	for view := int16(0); view <= 1; view++ {
		for y := 0; y < 128; y += 64 {
			for x := 0; x < 128; x += 64 {
				key := fmt.Sprintf("%d/%d/%d/%d/%d", view, x, y, 64, 64)
				assert.Equal(t, 1, colorQuads[key], key)
			}
		}
	}

	// Reassembled framebuffers match the server-side renders byte for
	// byte with the Raw codecs.
	require.Len(t, renderer.rendered, 1)
	for v := int16(0); v <= 1; v++ {
		fb, ok := frame.Views[v]
		require.True(t, ok, "view %d missing", v)
		assert.Equal(t, renderer.rendered[0][v].RGBA, fb.RGBA, "view %d color", v)
		assert.Equal(t, renderer.rendered[0][v].Depth, fb.Depth, "view %d depth", v)
	}

	// The variant sync arrived before the first frame.
	assert.Equal(t, map[string]bool{"halfres": true}, client.Variants())
}

func TestTileFrameWithPredictCodecs(t *testing.T) {
	client, renderer, _ := startSession(t, ServerOptions{
		TileWidth:  32,
		TileHeight: 32,
		RGBA:       RGBAParams{Codec: ColorPredictRGBA},
		Depth:      DepthParams{Codec: DepthPredict, Precision: 24},
	})

	require.NoError(t, client.SendMatrices(matricesFor(0, 64, 48, 1)))
	frame, err := client.ReceiveFrame()
	require.NoError(t, err)

	fb := frame.Views[0]
	require.NotNil(t, fb)
	assert.Equal(t, renderer.rendered[0][0].RGBA, fb.RGBA)
	// Depth predicts on the 24-bit grid; tolerance is one grid step.
	for i, want := range renderer.rendered[0][0].Depth {
		assert.InDelta(t, want, fb.Depth[i], 1.0/float64(1<<24), "depth %d", i)
	}
}

func TestEmptyFrameSentinel(t *testing.T) {
	client, _, _ := startSession(t, ServerOptions{TileWidth: 64, TileHeight: 64})

	require.NoError(t, client.SendMatrices(matricesFor(0, 0, 0, 1)))
	frame, err := client.ReceiveFrame()
	require.NoError(t, err)

	require.Len(t, frame.Tiles, 1)
	tile := frame.Tiles[0]
	assert.Equal(t, TileFirst|TileLast, tile.Flags)
	assert.Equal(t, uint32(0), tile.Size)
	assert.Empty(t, frame.Views)
}

func TestFrameOrderingAcrossFrames(t *testing.T) {
	client, _, _ := startSession(t, ServerOptions{
		TileWidth: 64, TileHeight: 64,
		RGBA:  RGBAParams{Codec: ColorRaw},
		Depth: DepthParams{Codec: DepthRaw, Precision: 24},
	})

	for frameNo := 0; frameNo < 3; frameNo++ {
		require.NoError(t, client.SendMatrices(matricesFor(0, 64, 64, 1)))
		frame, err := client.ReceiveFrame()
		require.NoError(t, err)
		for _, tile := range frame.Tiles {
			assert.Equal(t, uint32(frameNo), tile.FrameNumber)
		}
	}
}

func TestBoundsReply(t *testing.T) {
	client, _, _ := startSession(t, ServerOptions{})

	require.NoError(t, client.RequestBounds())
	// The variant sync may still be queued ahead of the reply.
	var bounds *Bounds
	for bounds == nil {
		sub, _, err := client.ReceiveMessage()
		require.NoError(t, err)
		if b, ok := sub.(*Bounds); ok {
			bounds = b
		}
	}
	assert.Equal(t, [3]float64{1, 2, 3}, bounds.Center)
	assert.Equal(t, 4.5, bounds.Radius)
}

func TestLightsChangeDetection(t *testing.T) {
	srvConn, cliConn := memDuplex()
	renderer := &patternRenderer{}
	server := NewServer(nil, renderer, ServerOptions{SessionKey: testKey})
	done := make(chan error, 1)
	go func() { done <- server.Serve(srvConn) }()
	defer func() {
		cliConn.Close()
		<-done
	}()

	client := NewClient(nil, cliConn, testKey)
	require.NoError(t, client.Identify())

	lights := DefaultLights()
	lights.ViewNum = 0
	require.NoError(t, client.SendLights(&lights))
	require.NoError(t, client.SendLights(&lights))
	changed := lights
	changed.Lights[1].Enabled = 1
	require.NoError(t, client.SendLights(&changed))

	// A bounds round trip sequences the preceding messages.
	require.NoError(t, client.RequestBounds())
	_, _, err := client.ReceiveMessage()
	require.NoError(t, err)

	assert.Equal(t, uint32(2), server.LightsUpdateCount())
}

func TestMACVerification(t *testing.T) {
	srvConn, cliConn := memDuplex()
	server := NewServer(nil, &patternRenderer{}, ServerOptions{SessionKey: testKey})
	done := make(chan error, 1)
	go func() { done <- server.Serve(srvConn) }()

	client := NewClient(nil, cliConn, []byte("wrong-key"))
	err := client.Identify()
	assert.Error(t, err)

	require.ErrorIs(t, <-done, ErrMACVerification)
	cliConn.Close()
}
