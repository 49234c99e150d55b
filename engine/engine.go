// Package engine owns the entity graph, the recall dispatcher and the clock,
// and drives them from the soundcard callback. Every structural change is a
// Task queued from the control side and applied at the start of a tick.
package engine

import (
	"fmt"
	"log"
	"sync"

	"github.com/mrdg/recall/audio"
	"github.com/mrdg/recall/recall"
)

type Config struct {
	BPM         float64
	DelayFactor float64
	Samplerate  int
	BufferSize  int
	Channels    int
	Format      audio.Format
	// Workers is the number of goroutines rendering audio signals in
	// parallel; 0 or 1 renders on the audio thread only.
	Workers   int
	QueueSize int
	Logger    *log.Logger
}

func DefaultConfig() Config {
	return Config{
		BPM:         120,
		DelayFactor: 4,
		Samplerate:  44100,
		BufferSize:  256,
		Channels:    2,
		Format:      audio.FormatFloat,
		QueueSize:   256,
	}
}

func (c Config) timing() audio.Timing {
	return audio.Timing{
		BPM:         c.BPM,
		DelayFactor: c.DelayFactor,
		Samplerate:  c.Samplerate,
		BufferSize:  c.BufferSize,
	}
}

func (c Config) Validate() error {
	if err := c.timing().Validate(); err != nil {
		return err
	}
	if c.Channels <= 0 {
		return fmt.Errorf("invalid channel count: %d", c.Channels)
	}
	if c.Workers < 0 {
		return fmt.Errorf("invalid worker count: %d", c.Workers)
	}
	if c.QueueSize <= 0 || c.QueueSize&(c.QueueSize-1) != 0 {
		return fmt.Errorf("queue size must be a power of 2: %d", c.QueueSize)
	}
	return nil
}

// Task is a structural change applied between sweeps.
type Task interface {
	Name() string
	Apply(e *Engine) error
}

// Engine serializes the control side and the audio thread with one phase
// lock: Tick holds it while applying queued tasks and sweeping the recall
// trees, View holds it while reading state.
type Engine struct {
	mu     sync.Mutex
	config Config
	logger *log.Logger

	graph      *audio.Graph
	registry   *audio.Registry
	dispatcher *recall.Dispatcher
	clock      *audio.Clock
	queue      *queue

	tick   recall.Tick
	serial uint64
}

func New(config Config) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}
	clock, err := audio.NewClock(config.timing())
	if err != nil {
		return nil, err
	}
	graph := audio.NewGraph(audio.StreamFormat{
		Samplerate: config.Samplerate,
		BufferSize: config.BufferSize,
		Format:     config.Format,
	})
	registry := audio.NewRegistry()
	e := &Engine{
		config:   config,
		logger:   logger,
		graph:    graph,
		registry: registry,
		dispatcher: recall.NewDispatcher(graph, registry,
			recall.WithLogger(logger),
			recall.WithWorkers(config.Workers)),
		clock: clock,
		queue: newQueue(config.QueueSize),
	}
	return e, nil
}

func (e *Engine) Config() Config { return e.config }

// The accessors below must only be used from tasks or View.

func (e *Engine) Graph() *audio.Graph            { return e.graph }
func (e *Engine) Registry() *audio.Registry      { return e.registry }
func (e *Engine) Dispatcher() *recall.Dispatcher { return e.dispatcher }
func (e *Engine) Clock() *audio.Clock            { return e.clock }

// Schedule queues a task for the next tick.
func (e *Engine) Schedule(task Task) error {
	return e.queue.push([]Task{task})
}

// ScheduleAll queues tasks to be applied in order within the same tick.
func (e *Engine) ScheduleAll(tasks ...Task) error {
	if len(tasks) == 0 {
		return nil
	}
	return e.queue.push(append([]Task(nil), tasks...))
}

// View calls f with the engine locked against the audio thread.
func (e *Engine) View(f func(e *Engine)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f(e)
}

// Close stops accepting tasks.
func (e *Engine) Close() {
	e.queue.close()
}

// Tick renders frames frames of interleaved audio into out. Queued tasks are
// applied first. The recall trees are swept once per buffer of the
// configured size.
func (e *Engine) Tick(in, out []float32, frames int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ch := e.config.Channels
	if n := frames * ch; n < len(out) {
		out = out[:n]
	}
	for i := range out {
		out[i] = 0
	}
	e.drainAndApply()

	bs := e.config.BufferSize
	for off := 0; off < frames; off += bs {
		n := min(bs, frames-off)
		e.serial++
		e.tick = recall.Tick{
			Graph:    e.graph,
			Clock:    e.clock,
			Attacks:  e.clock.Tick(n),
			Out:      out[off*ch : (off+n)*ch],
			Channels: ch,
			Frames:   n,
			Serial:   e.serial,
		}
		if len(in) >= (off+n)*ch {
			e.tick.In = in[off*ch : (off+n)*ch]
		}
		e.dispatcher.Run(&e.tick)
	}
}

// drainAndApply applies queued tasks in order. A failing task is logged and
// skipped; the tasks before it stay applied.
func (e *Engine) drainAndApply() {
	e.queue.drain(func(batch []Task) {
		for _, task := range batch {
			if err := task.Apply(e); err != nil {
				e.logger.Printf("engine: task %s failed: %v", task.Name(), err)
			}
		}
	})
	e.dispatcher.Collect()
}
