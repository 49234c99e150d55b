package main

import (
	"fmt"
	"time"

	"github.com/mrdg/recall/engine"
)

// backend drives the engine from an audio device.
type backend interface {
	Start() error
	Stop() error
}

func newBackend(name string, e *engine.Engine) (backend, error) {
	switch name {
	case "portaudio":
		return newPortaudioBackend(e)
	case "oto":
		return newOtoBackend(e)
	case "null":
		return newNullBackend(e), nil
	default:
		return nil, fmt.Errorf("unknown backend: %s", name)
	}
}

// nullBackend ticks the engine in real time without a device.
type nullBackend struct {
	engine *engine.Engine
	out    []float32
	stop   chan struct{}
	done   chan struct{}
}

func newNullBackend(e *engine.Engine) *nullBackend {
	cfg := e.Config()
	return &nullBackend{
		engine: e,
		out:    make([]float32, cfg.BufferSize*cfg.Channels),
	}
}

func (b *nullBackend) Start() error {
	cfg := b.engine.Config()
	period := time.Duration(float64(time.Second) * float64(cfg.BufferSize) / float64(cfg.Samplerate))
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	go func() {
		defer close(b.done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-b.stop:
				return
			case <-ticker.C:
				b.engine.Tick(nil, b.out, cfg.BufferSize)
			}
		}
	}()
	return nil
}

func (b *nullBackend) Stop() error {
	if b.stop == nil {
		return nil
	}
	close(b.stop)
	<-b.done
	b.stop = nil
	return nil
}
