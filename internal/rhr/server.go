package rhr

import (
	"errors"
	"fmt"
	"io"
	"net"
	"runtime"
	"sync"

	"github.com/hpcvis/vizcore/internal/codec"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Framebuffer is one rendered view: an RGBA byte image plus a float depth
// image of the same extent.
type Framebuffer struct {
	Width, Height int
	RGBA          []byte
	Depth         []float32
}

// Renderer is the external collaborator producing framebuffers. The
// matrices are opaque to the tile pipeline.
type Renderer interface {
	// Render produces one framebuffer per requested view.
	Render(views []Matrices) ([]Framebuffer, error)
	// Bounds reports the scene bounding sphere.
	Bounds() (center [3]float64, radius float64)
}

// ServerOptions tune the tile pipeline.
type ServerOptions struct {
	TileWidth  int
	TileHeight int
	// Workers caps the encode pool; zero means hardware concurrency.
	Workers    int
	SessionKey []byte

	RGBA  RGBAParams
	Depth DepthParams
	// Compress wraps encoded tiles at the framing level.
	Compress codec.MessageCompression
}

// Connection states.
type serverState int32

const (
	stateListening serverState = iota
	stateIdentifying
	stateReady
	stateStreaming
	stateDisconnected
)

type encodeTask struct {
	viewIdx    int
	x, y, w, h int
	depth      bool
	fb         *Framebuffer
	header     Tile
}

type encodeResult struct {
	header  Tile
	payload []byte
}

// Server accepts one render client over a framed transport, receives
// view/light/animation/bounds updates, and streams encoded tiles back.
type Server struct {
	log      *zap.Logger
	opts     ServerOptions
	renderer Renderer

	conn  *Conn
	state serverState

	pendingViews []Matrices

	lights            map[int16]Lights
	lightsUpdateCount uint32

	animTotal   int32
	animCurrent int32

	variantMu sync.Mutex
	variants  map[string]bool

	frameNumber uint32

	// deferred resize requests received while a frame streams; applied
	// once Last has shipped.
	deferredViews []Matrices

	// taskMutex guards the task queue, the finished-results queue, the
	// worker handles, and the done-workers set.
	taskMutex   sync.Mutex
	taskCond    *sync.Cond
	resultCond  *sync.Cond
	tasks       []encodeTask
	results     []encodeResult
	outstanding int
	workers     map[int]struct{}
	doneWorkers map[int]struct{}
	quit        bool
}

// NewServer builds a tile server over the given renderer.
func NewServer(log *zap.Logger, renderer Renderer, opts ServerOptions) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.TileWidth <= 0 {
		opts.TileWidth = 256
	}
	if opts.TileHeight <= 0 {
		opts.TileHeight = 256
	}
	if opts.Workers <= 0 || opts.Workers > runtime.NumCPU() {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Depth.Precision == 0 {
		opts.Depth.Precision = 24
	}
	opts.Depth.DepthFloat = true
	s := &Server{
		log:         log.Named("rhr-server"),
		opts:        opts,
		renderer:    renderer,
		state:       stateListening,
		lights:      make(map[int16]Lights),
		variants:    make(map[string]bool),
		workers:     make(map[int]struct{}),
		doneWorkers: make(map[int]struct{}),
	}
	s.taskCond = sync.NewCond(&s.taskMutex)
	s.resultCond = sync.NewCond(&s.taskMutex)
	return s
}

// SetVariant declares a local variant; it is relayed to the client when a
// session connects.
func (s *Server) SetVariant(name string, visible bool) {
	s.variantMu.Lock()
	s.variants[name] = visible
	s.variantMu.Unlock()
}

// LightsUpdateCount reports how many distinct light updates arrived.
func (s *Server) LightsUpdateCount() uint32 { return s.lightsUpdateCount }

// Animation reports the current timestep state.
func (s *Server) Animation() (total, current int32) { return s.animTotal, s.animCurrent }

// ListenAndServe accepts connections on addr, one client at a time.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return &TransportError{Op: "listen", Err: err}
	}
	defer ln.Close()
	s.log.Info("listening", zap.String("addr", addr))

	var g errgroup.Group
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return &TransportError{Op: "accept", Err: err}
			}
			if err := s.Serve(conn); err != nil && !errors.Is(err, io.EOF) {
				s.log.Warn("session ended", zap.Error(err))
			}
		}
	})
	return g.Wait()
}

// Serve runs one client session over an established connection. State is
// rebuilt from scratch per connection; there is no resume.
func (s *Server) Serve(rw io.ReadWriteCloser) error {
	defer rw.Close()
	s.conn = NewConn(rw)
	s.state = stateIdentifying
	s.frameNumber = 0
	s.pendingViews = nil
	s.deferredViews = nil

	s.startWorkers()
	defer s.stopWorkers()

	if err := s.identify(); err != nil {
		s.state = stateDisconnected
		return err
	}
	s.state = stateReady
	if err := s.syncVariants(); err != nil {
		s.state = stateDisconnected
		return err
	}

	for {
		sub, payload, err := s.conn.Receive()
		if err != nil {
			s.state = stateDisconnected
			return err
		}
		_ = payload
		if err := s.dispatch(sub); err != nil {
			s.state = stateDisconnected
			return err
		}
	}
}

func (s *Server) identify() error {
	sub, _, err := s.conn.Receive()
	if err != nil {
		return err
	}
	id, ok := sub.(*Identify)
	if !ok {
		return &TransportError{Op: "identify", Err: fmt.Errorf("unexpected message type %d", sub.MessageType())}
	}
	if id.Role != RoleClient || !VerifyMAC(s.opts.SessionKey, id.Role, id.MAC) {
		return ErrMACVerification
	}
	reply := &Identify{Role: RoleServer, MAC: SessionMAC(s.opts.SessionKey, RoleServer)}
	return s.conn.Send(reply, nil, codec.CompressionNone)
}

func (s *Server) syncVariants() error {
	s.variantMu.Lock()
	variants := make(map[string]bool, len(s.variants))
	for k, v := range s.variants {
		variants[k] = v
	}
	s.variantMu.Unlock()
	for name, visible := range variants {
		msg := &Variant{Name: name, ConfigureVisibility: 1}
		if visible {
			msg.Visible = 1
		}
		if err := s.conn.Send(msg, nil, codec.CompressionNone); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) dispatch(sub SubMessage) error {
	switch msg := sub.(type) {
	case *Matrices:
		return s.handleMatrices(msg)
	case *Lights:
		s.handleLights(msg)
	case *Bounds:
		if msg.SendReply != 0 {
			center, radius := s.renderer.Bounds()
			reply := &Bounds{Center: center, Radius: radius}
			return s.conn.Send(reply, nil, codec.CompressionNone)
		}
	case *Animation:
		s.animTotal = msg.Total
		s.animCurrent = msg.Current
	case *Variant:
		s.variantMu.Lock()
		if msg.Remove != 0 {
			delete(s.variants, msg.Name)
		} else if msg.ConfigureVisibility != 0 {
			s.variants[msg.Name] = msg.Visible != 0
		}
		s.variantMu.Unlock()
	default:
		s.log.Warn("unhandled message", zap.Uint8("type", sub.MessageType()))
	}
	return nil
}

func (s *Server) handleLights(msg *Lights) {
	prev, known := s.lights[msg.ViewNum]
	if known && prev == *msg {
		return
	}
	s.lights[msg.ViewNum] = *msg
	s.lightsUpdateCount++
}

func (s *Server) handleMatrices(msg *Matrices) error {
	// Resizes arriving mid-stream are deferred until Last has shipped.
	if s.state == stateStreaming {
		s.deferredViews = append(s.deferredViews, *msg)
		return nil
	}
	replaced := false
	for i := range s.pendingViews {
		if s.pendingViews[i].ViewNum == msg.ViewNum && s.pendingViews[i].Eye == msg.Eye {
			s.pendingViews[i] = *msg
			replaced = true
			break
		}
	}
	if !replaced {
		s.pendingViews = append(s.pendingViews, *msg)
	}
	if msg.Last == 0 {
		return nil
	}
	views := s.pendingViews
	s.pendingViews = nil
	return s.streamFrame(views)
}

// streamFrame renders the batched views, fans the tiles out to the encode
// pool, and drains results to the transport. Tiles travel in completion
// order; exactly one carries First and one carries Last.
func (s *Server) streamFrame(views []Matrices) error {
	s.state = stateStreaming
	defer func() {
		s.state = stateReady
		deferred := s.deferredViews
		s.deferredViews = nil
		for i := range deferred {
			if err := s.handleMatrices(&deferred[i]); err != nil {
				s.log.Warn("deferred view dropped", zap.Error(err))
			}
		}
	}()

	fbs, err := s.renderer.Render(views)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	if len(fbs) != len(views) {
		return fmt.Errorf("render: %d framebuffers for %d views", len(fbs), len(views))
	}

	frame := s.frameNumber
	s.frameNumber++

	total := s.enqueueFrame(views, fbs, frame)
	if total == 0 {
		// Degenerate frame: a sentinel tile brackets it.
		sentinel := Tile{
			Flags:       TileFirst | TileLast,
			Format:      FormatColorRGBA,
			FrameNumber: frame,
		}
		if len(views) > 0 {
			sentinel.RequestNumber = views[0].RequestNumber
			sentinel.ViewNum = views[0].ViewNum
			sentinel.RequestTime = views[0].Time
		}
		return s.conn.Send(&sentinel, nil, codec.CompressionNone)
	}

	sent := 0
	for sent < total {
		res, ok := s.nextResult()
		if !ok {
			return &TransportError{Op: "encode", Err: fmt.Errorf("worker pool drained early")}
		}
		if sent == 0 {
			res.header.Flags |= TileFirst
		}
		if sent == total-1 {
			res.header.Flags |= TileLast
		}
		if err := s.sendTile(&res); err != nil {
			return err
		}
		sent++
	}
	return nil
}

func (s *Server) sendTile(res *encodeResult) error {
	res.header.UnzippedSize = int32(len(res.payload))
	res.header.Size = uint32(len(res.payload))
	return s.conn.Send(&res.header, res.payload, s.opts.Compress)
}

// enqueueFrame splits every view into tiles and queues one color and one
// depth task per tile; it returns the task count.
func (s *Server) enqueueFrame(views []Matrices, fbs []Framebuffer, frame uint32) int {
	tw, th := s.opts.TileWidth, s.opts.TileHeight
	var tasks []encodeTask
	for v := range views {
		fb := &fbs[v]
		w, h := int(views[v].Width), int(views[v].Height)
		if w > fb.Width {
			w = fb.Width
		}
		if h > fb.Height {
			h = fb.Height
		}
		header := Tile{
			Eye:           views[v].Eye,
			FrameNumber:   frame,
			RequestNumber: views[v].RequestNumber,
			ViewNum:       views[v].ViewNum,
			TotalWidth:    uint16(fb.Width),
			TotalHeight:   uint16(fb.Height),
			Timestep:      s.animCurrent,
			Head:          views[v].Head,
			View:          views[v].View,
			Proj:          views[v].Proj,
			Model:         views[v].Model,
			RequestTime:   views[v].Time,
		}
		for y := 0; y < h; y += th {
			hh := th
			if y+hh > h {
				hh = h - y
			}
			for x := 0; x < w; x += tw {
				ww := tw
				if x+ww > w {
					ww = w - x
				}
				t := encodeTask{viewIdx: v, x: x, y: y, w: ww, h: hh, fb: fb, header: header}
				t.header.X = uint16(x)
				t.header.Y = uint16(y)
				t.header.Width = uint16(ww)
				t.header.Height = uint16(hh)
				tasks = append(tasks, t)
				td := t
				td.depth = true
				tasks = append(tasks, td)
			}
		}
	}

	s.taskMutex.Lock()
	s.tasks = append(s.tasks, tasks...)
	s.outstanding += len(tasks)
	s.taskMutex.Unlock()
	s.taskCond.Broadcast()
	return len(tasks)
}

func (s *Server) nextResult() (encodeResult, bool) {
	s.taskMutex.Lock()
	defer s.taskMutex.Unlock()
	for len(s.results) == 0 {
		if s.outstanding == 0 || s.quit {
			return encodeResult{}, false
		}
		s.resultCond.Wait()
	}
	res := s.results[0]
	s.results = s.results[1:]
	return res, true
}

func (s *Server) startWorkers() {
	s.taskMutex.Lock()
	s.quit = false
	s.tasks = nil
	s.results = nil
	s.outstanding = 0
	s.doneWorkers = make(map[int]struct{})
	for id := 0; id < s.opts.Workers; id++ {
		s.workers[id] = struct{}{}
		go s.worker(id)
	}
	s.taskMutex.Unlock()
}

func (s *Server) stopWorkers() {
	s.taskMutex.Lock()
	s.quit = true
	// In-flight encodes complete; their results are dropped with the
	// queues.
	s.tasks = nil
	s.results = nil
	s.outstanding = 0
	s.taskMutex.Unlock()
	s.taskCond.Broadcast()
	s.resultCond.Broadcast()

	s.taskMutex.Lock()
	for len(s.doneWorkers) < len(s.workers) {
		s.resultCond.Wait()
	}
	s.workers = make(map[int]struct{})
	s.taskMutex.Unlock()
}

func (s *Server) worker(id int) {
	for {
		s.taskMutex.Lock()
		for len(s.tasks) == 0 && !s.quit {
			s.taskCond.Wait()
		}
		if s.quit {
			s.doneWorkers[id] = struct{}{}
			s.resultCond.Broadcast()
			s.taskMutex.Unlock()
			return
		}
		task := s.tasks[0]
		s.tasks = s.tasks[1:]
		s.taskMutex.Unlock()

		res := s.encode(&task)

		s.taskMutex.Lock()
		if s.outstanding > 0 {
			s.outstanding--
		}
		if !s.quit {
			s.results = append(s.results, res)
		}
		s.resultCond.Broadcast()
		s.taskMutex.Unlock()
	}
}

// encode runs one tile through the configured codec; fallbacks rewrite the
// header bits to whatever actually ran.
func (s *Server) encode(task *encodeTask) encodeResult {
	res := encodeResult{header: task.header}
	if task.depth {
		params := s.opts.Depth
		res.payload = CompressDepth(task.fb.Depth, task.x, task.y, task.w, task.h, task.fb.Width, &params)
		res.header.Format = FormatDepthFloat
		if params.Precision == 16 {
			res.header.Format = FormatDepth16
		}
		res.header.Compression = depthCompressionBits(params.Codec)
		return res
	}
	params := s.opts.RGBA
	res.payload = CompressRGBA(task.fb.RGBA, task.x, task.y, task.w, task.h, task.fb.Width, &params)
	res.header.Format = FormatColorRGBA
	res.header.Compression = colorCompressionBits(params.Codec)
	return res
}
