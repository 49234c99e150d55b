package recall

import (
	"fmt"

	"github.com/mrdg/recall/audio"
)

// Processor is the implementation of one recall. It implements any subset of
// the hook interfaces below; missing hooks are skipped.
type Processor interface{}

// Initer is called once, on the first tick after mapping.
type Initer interface {
	RunInitPre(r *Recall, t *Tick) error
}

type PreRunner interface {
	RunPre(r *Recall, t *Tick) error
}

// InterRunner runs after every run_pre at the same depth.
type InterRunner interface {
	RunInter(r *Recall, t *Tick) error
}

// PostRunner runs after every run_pre and run_inter of the tick, deepest
// recalls first.
type PostRunner interface {
	RunPost(r *Recall, t *Tick) error
}

// Releaser frees resources held by a recall. It is called exactly once, when
// the recall is done or cancelled.
type Releaser interface {
	Release(r *Recall)
}

// Finisher is implemented by processors that call Done on their own. Their
// ancestors finish once every such descendant has finished.
type Finisher interface {
	Finishes() bool
}

// TreeKind selects the recall trees an effect is instantiated in.
type TreeKind uint8

const (
	// RootTree is the persistent tree started for a scope.
	RootTree TreeKind = 1 << iota
	// VoiceTree is the tree of one voice, e.g. one note.
	VoiceTree
	AnyTree = RootTree | VoiceTree
)

// Side selects the channels an effect attaches channel recalls to.
type Side uint8

const (
	SideOutput Side = 1 << iota
	SideInput
	SideBoth = SideOutput | SideInput
)

func (s Side) has(t audio.ChannelType) bool {
	if t == audio.Output {
		return s&SideOutput != 0
	}
	return s&SideInput != 0
}

// Effect describes a kind of recall: its ports and the processors it runs at
// each level. A nil constructor, or one returning nil, means no recall at
// that level.
type Effect struct {
	Name    string
	Ability Ability
	Trees   TreeKind
	Side    Side

	Ports        []audio.PortSpec
	ChannelPorts []audio.PortSpec

	// Init prepares state shared by every recall of a container.
	Init func(c *Container) error

	AudioRun    func(r *Recall) Processor
	ChannelRun  func(r *Recall) Processor
	Recycling   func(r *Recall) Processor
	AudioSignal func(r *Recall) Processor
}

func (e *Effect) constructor(l Level) func(*Recall) Processor {
	switch l {
	case LevelAudioRun:
		return e.AudioRun
	case LevelChannelRun:
		return e.ChannelRun
	case LevelRecycling:
		return e.Recycling
	case LevelAudioSignal:
		return e.AudioSignal
	}
	return nil
}

// Container binds one effect to one audio. It owns the audio recall and the
// ports shared by every recall it spawns; channel recalls hold per-channel
// ports.
type Container struct {
	Effect *Effect
	Audio  audio.AudioID
	Ports  *audio.Ports
	// Data holds effect specific state shared by the container's recalls.
	Data interface{}

	audio    *Recall
	channels map[audio.ChannelID]*Recall
	removed  bool
}

func newContainer(e *Effect, id audio.AudioID) (*Container, error) {
	c := &Container{
		Effect:   e,
		Audio:    id,
		Ports:    audio.NewPorts(),
		channels: make(map[audio.ChannelID]*Recall),
	}
	for _, spec := range e.Ports {
		if _, err := c.Ports.Register(spec); err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name, err)
		}
	}
	if e.Init != nil {
		if err := e.Init(c); err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name, err)
		}
	}
	c.audio = &Recall{Level: LevelAudio, Container: c, Audio: id, state: Mapped}
	return c, nil
}

// AudioRecall returns the audio level recall of the container.
func (c *Container) AudioRecall() *Recall { return c.audio }

// ChannelRecall returns the channel recall mapped for ch, or nil.
func (c *Container) ChannelRecall(ch audio.ChannelID) *Recall { return c.channels[ch] }

// ChannelPorts returns the ports of the channel recall for ch, or nil.
func (c *Container) ChannelPorts(ch audio.ChannelID) *audio.Ports {
	if r, ok := c.channels[ch]; ok {
		return r.ports
	}
	return nil
}

// Removed reports whether the container has been detached from its audio.
func (c *Container) Removed() bool { return c.removed }

func (c *Container) mapChannel(ch audio.ChannelID, typ audio.ChannelType) error {
	if _, ok := c.channels[ch]; ok || !c.Effect.Side.has(typ) {
		return nil
	}
	ports := audio.NewPorts()
	for _, spec := range c.Effect.ChannelPorts {
		if _, err := ports.Register(spec); err != nil {
			return fmt.Errorf("%s: %w", c.Effect.Name, err)
		}
	}
	c.channels[ch] = &Recall{
		Level:     LevelChannel,
		Container: c,
		Audio:     c.Audio,
		Channel:   ch,
		ports:     ports,
		state:     Mapped,
	}
	return nil
}
