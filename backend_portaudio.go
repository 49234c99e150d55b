package main

import (
	"errors"

	"github.com/gordonklaus/portaudio"

	"github.com/mrdg/recall/engine"
)

type portaudioBackend struct {
	engine   *engine.Engine
	channels int
	stream   *portaudio.Stream
}

func newPortaudioBackend(e *engine.Engine) (*portaudioBackend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	cfg := e.Config()
	b := &portaudioBackend{engine: e, channels: cfg.Channels}
	stream, err := portaudio.OpenDefaultStream(0, cfg.Channels, float64(cfg.Samplerate), cfg.BufferSize, b.process)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	b.stream = stream
	return b, nil
}

func (b *portaudioBackend) Start() error {
	return b.stream.Start()
}

func (b *portaudioBackend) Stop() error {
	if b.stream == nil {
		return nil
	}
	err := errors.Join(b.stream.Stop(), b.stream.Close(), portaudio.Terminate())
	b.stream = nil
	return err
}

func (b *portaudioBackend) process(out []float32) {
	b.engine.Tick(nil, out, len(out)/b.channels)
}
