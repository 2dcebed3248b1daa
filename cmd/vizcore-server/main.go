package main

import (
	"os"

	"github.com/hpcvis/vizcore/internal/env"
	"github.com/hpcvis/vizcore/internal/rhr"
	"github.com/hpcvis/vizcore/internal/shm"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// flatRenderer is the stand-in collaborator used until a real renderer is
// attached: it clears every view to a constant color at the far plane.
type flatRenderer struct{}

func (flatRenderer) Render(views []rhr.Matrices) ([]rhr.Framebuffer, error) {
	fbs := make([]rhr.Framebuffer, len(views))
	for i, v := range views {
		w, h := int(v.Width), int(v.Height)
		fb := rhr.Framebuffer{
			Width:  w,
			Height: h,
			RGBA:   make([]byte, w*h*4),
			Depth:  make([]float32, w*h),
		}
		for p := 0; p < w*h; p++ {
			fb.RGBA[p*4+3] = 0xff
			fb.Depth[p] = 1
		}
		fbs[i] = fb
	}
	return fbs, nil
}

func (flatRenderer) Bounds() (center [3]float64, radius float64) {
	return [3]float64{0, 0, 0}, 1
}

func main() {
	// Create Zap logger
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	log := zap.Must(logConfig.Build())
	defer log.Sync()
	log = log.Named("main")

	// Array arena, sized from SHM_SIZE.
	alloc := shm.AllocatorFromEnv()
	store := shm.NewStore(log, alloc, 0)
	log.Info("array store ready", zap.Int64("segment_in_use", store.Allocator().InUse()))

	key := []byte(env.String(env.SessionKey, ""))
	if len(key) == 0 {
		log.Fatal("session key required", zap.String("variable", env.SessionKey))
	}

	server := rhr.NewServer(log, flatRenderer{}, rhr.ServerOptions{
		TileWidth:  env.Int(env.TileWidth, 256),
		TileHeight: env.Int(env.TileHeight, 256),
		SessionKey: key,
		RGBA:       rhr.RGBAParams{Codec: rhr.ColorPredictRGB},
		Depth:      rhr.DepthParams{Codec: rhr.DepthQuant, Precision: 24},
	})

	addr := env.String(env.Listen, "127.0.0.1:31590")
	if err := server.ListenAndServe(addr); err != nil {
		log.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}
