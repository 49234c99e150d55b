package main

import (
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/mrdg/recall/audio"
	"github.com/mrdg/recall/engine"
)

// otoBackend pulls buffers from the engine through an oto player. Samples
// are encoded as little endian float32, or int16 when configured as s16.
type otoBackend struct {
	engine  *engine.Engine
	format  audio.Format
	ctx     *oto.Context
	player  *oto.Player
	mu      sync.Mutex
	buf     []float32
	pending []byte
	enc     []byte
}

func newOtoBackend(e *engine.Engine) (*otoBackend, error) {
	cfg := e.Config()
	format, otoFormat := audio.FormatFloat, oto.FormatFloat32LE
	if cfg.Format == audio.FormatS16 {
		format, otoFormat = audio.FormatS16, oto.FormatSignedInt16LE
	}
	op := &oto.NewContextOptions{
		SampleRate:   cfg.Samplerate,
		ChannelCount: cfg.Channels,
		Format:       otoFormat,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, err
	}
	<-ready
	b := &otoBackend{
		engine: e,
		format: format,
		ctx:    ctx,
		buf:    make([]float32, cfg.BufferSize*cfg.Channels),
		enc:    make([]byte, cfg.BufferSize*cfg.Channels*format.Size()),
	}
	b.player = ctx.NewPlayer(b)
	return b, nil
}

// Read renders as many engine buffers as needed to fill p.
func (b *otoBackend) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cfg := b.engine.Config()
	n := 0
	for n < len(p) {
		if len(b.pending) == 0 {
			b.engine.Tick(nil, b.buf, cfg.BufferSize)
			size := audio.Encode(b.enc, b.buf, b.format)
			b.pending = b.enc[:size]
		}
		k := copy(p[n:], b.pending)
		b.pending = b.pending[k:]
		n += k
	}
	return n, nil
}

func (b *otoBackend) Start() error {
	b.player.Play()
	return nil
}

func (b *otoBackend) Stop() error {
	return b.player.Close()
}
