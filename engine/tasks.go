package engine

import (
	"fmt"

	"github.com/mrdg/recall/audio"
	"github.com/mrdg/recall/fx"
	"github.com/mrdg/recall/recall"
)

// ChannelRef names a channel by its audio and position. It is resolved when
// the task is applied, so tasks can refer to audios created earlier in the
// same batch.
type ChannelRef struct {
	Audio string
	Type  audio.ChannelType
	Line  int
	Pad   int
}

func (r ChannelRef) String() string {
	return fmt.Sprintf("%s:%s:%d:%d", r.Audio, r.Type, r.Line, r.Pad)
}

func (r ChannelRef) resolve(g *audio.Graph) (audio.ChannelID, error) {
	id, err := findAudio(g, r.Audio)
	if err != nil {
		return audio.ChannelID{}, err
	}
	return g.ChannelAt(id, r.Type, r.Line, r.Pad)
}

func findAudio(g *audio.Graph, name string) (audio.AudioID, error) {
	id, ok := g.FindAudio(name)
	if !ok {
		return audio.AudioID{}, fmt.Errorf("unknown audio %s: %w", name, audio.ErrStaleHandle)
	}
	return id, nil
}

type AddAudio struct {
	Audio         string
	AudioChannels int
	OutputPads    int
	InputPads     int
}

func (t AddAudio) Name() string { return "add-audio" }

func (t AddAudio) Apply(e *Engine) error {
	if _, ok := e.graph.FindAudio(t.Audio); ok {
		return fmt.Errorf("audio %s already exists", t.Audio)
	}
	_, err := e.graph.AddAudio(t.Audio, t.AudioChannels, t.OutputPads, t.InputPads)
	return err
}

type RemoveAudio struct {
	Audio string
}

func (t RemoveAudio) Name() string { return "remove-audio" }

// Apply stops every scope running on the audio, detaches its effects and
// destroys its channels.
func (t RemoveAudio) Apply(e *Engine) error {
	id, err := findAudio(e.graph, t.Audio)
	if err != nil {
		return err
	}
	for s := audio.ScopePlayback; s <= audio.ScopeMidi; s++ {
		e.dispatcher.Stop(id, s)
	}
	for _, c := range e.dispatcher.Containers(id) {
		e.dispatcher.RemoveContainer(c)
	}
	return e.graph.RemoveAudio(id)
}

type ResizeChannels struct {
	Audio string
	N     int
}

func (t ResizeChannels) Name() string { return "resize-channels" }

func (t ResizeChannels) Apply(e *Engine) error {
	id, err := findAudio(e.graph, t.Audio)
	if err != nil {
		return err
	}
	return e.graph.ResizeChannels(id, t.N)
}

type ResizePads struct {
	Audio string
	Type  audio.ChannelType
	N     int
}

func (t ResizePads) Name() string { return "resize-pads" }

func (t ResizePads) Apply(e *Engine) error {
	id, err := findAudio(e.graph, t.Audio)
	if err != nil {
		return err
	}
	return e.graph.ResizePads(id, t.Type, t.N)
}

// SetLink links two channels. A nil Link unlinks Channel.
type SetLink struct {
	Channel ChannelRef
	Link    *ChannelRef
}

func (t SetLink) Name() string { return "set-link" }

func (t SetLink) Apply(e *Engine) error {
	ch, err := t.Channel.resolve(e.graph)
	if err != nil {
		return err
	}
	var link audio.ChannelID
	if t.Link != nil {
		if link, err = t.Link.resolve(e.graph); err != nil {
			return err
		}
	}
	return e.graph.SetLink(ch, link)
}

// LinkAudio links every line of the first output pad of From to the input
// pad Pad of To. A To of "" unlinks From.
type LinkAudio struct {
	From string
	To   string
	Pad  int
}

func (t LinkAudio) Name() string { return "link-audio" }

func (t LinkAudio) Apply(e *Engine) error {
	from, err := findAudio(e.graph, t.From)
	if err != nil {
		return err
	}
	a, _ := e.graph.Audio(from)
	lines := a.AudioChannels
	if t.To != "" {
		to, err := findAudio(e.graph, t.To)
		if err != nil {
			return err
		}
		b, _ := e.graph.Audio(to)
		lines = min(lines, b.AudioChannels)
	}
	for line := 0; line < lines; line++ {
		task := SetLink{Channel: ChannelRef{Audio: t.From, Type: audio.Output, Line: line}}
		if t.To != "" {
			task.Link = &ChannelRef{Audio: t.To, Type: audio.Input, Line: line, Pad: t.Pad}
		}
		if err := task.Apply(e); err != nil {
			return err
		}
	}
	return nil
}

// SetRecycling makes Channel use the recycling of Source.
type SetRecycling struct {
	Channel     ChannelRef
	Source      ChannelRef
	EmitSignals bool
	ReplaceAll  bool
}

func (t SetRecycling) Name() string { return "set-recycling" }

func (t SetRecycling) Apply(e *Engine) error {
	ch, err := t.Channel.resolve(e.graph)
	if err != nil {
		return err
	}
	src, err := t.Source.resolve(e.graph)
	if err != nil {
		return err
	}
	c, _ := e.graph.Channel(src)
	return e.graph.SetRecycling(ch, c.Recycling, audio.RecyclingID{}, t.EmitSignals, t.ReplaceAll)
}

// AddContainer attaches a registered effect to an audio.
type AddContainer struct {
	Audio  string
	Effect string
}

func (t AddContainer) Name() string { return "add-container" }

func (t AddContainer) Apply(e *Engine) error {
	id, err := findAudio(e.graph, t.Audio)
	if err != nil {
		return err
	}
	effect, ok := fx.Lookup(t.Effect)
	if !ok {
		return fmt.Errorf("unknown effect %s", t.Effect)
	}
	_, err = e.dispatcher.AddContainer(id, effect)
	return err
}

// RemoveContainer detaches the most recently added container of an effect.
type RemoveContainer struct {
	Audio  string
	Effect string
}

func (t RemoveContainer) Name() string { return "remove-container" }

func (t RemoveContainer) Apply(e *Engine) error {
	id, err := findAudio(e.graph, t.Audio)
	if err != nil {
		return err
	}
	c := findContainer(e.dispatcher, id, t.Effect)
	if c == nil {
		return fmt.Errorf("no %s on %s", t.Effect, t.Audio)
	}
	e.dispatcher.RemoveContainer(c)
	return nil
}

func findContainer(d *recall.Dispatcher, id audio.AudioID, effect string) *recall.Container {
	list := d.Containers(id)
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].Effect.Name == effect {
			return list[i]
		}
	}
	return nil
}

type StartScope struct {
	Audio string
	Scope audio.Scope
}

func (t StartScope) Name() string { return "start-scope" }

func (t StartScope) Apply(e *Engine) error {
	id, err := findAudio(e.graph, t.Audio)
	if err != nil {
		return err
	}
	_, err = e.dispatcher.Start(id, t.Scope)
	return err
}

type StopScope struct {
	Audio string
	Scope audio.Scope
}

func (t StopScope) Name() string { return "stop-scope" }

func (t StopScope) Apply(e *Engine) error {
	id, err := findAudio(e.graph, t.Audio)
	if err != nil {
		return err
	}
	e.dispatcher.Stop(id, t.Scope)
	return nil
}

// NoteOn plays an input pad once, on every line, at the start of the next
// buffer. The scope is started on the audio if it is not running.
type NoteOn struct {
	Audio string
	Pad   int
	Scope audio.Scope
	Note  audio.Note
}

func (t NoteOn) Name() string { return "note-on" }

func (t NoteOn) Apply(e *Engine) error {
	id, err := findAudio(e.graph, t.Audio)
	if err != nil {
		return err
	}
	a, _ := e.graph.Audio(id)
	if t.Pad < 0 || t.Pad >= a.InputPads {
		return fmt.Errorf("pad %d of %s: %w", t.Pad, t.Audio, audio.ErrOutOfRange)
	}
	root, err := e.dispatcher.Start(id, t.Scope)
	if err != nil {
		return err
	}
	for line := 0; line < a.AudioChannels; line++ {
		v := recall.Voice{Notes: []audio.Note{t.Note}}
		if _, err := e.dispatcher.Spawn(root.ID.Context, a.Input[t.Pad*a.AudioChannels+line], v); err != nil {
			return err
		}
	}
	return nil
}

// SetTemplate replaces the waveform of the input pad on every line.
type SetTemplate struct {
	Audio string
	Pad   int
	Data  []float64
}

func (t SetTemplate) Name() string { return "set-template" }

func (t SetTemplate) Apply(e *Engine) error {
	id, err := findAudio(e.graph, t.Audio)
	if err != nil {
		return err
	}
	a, _ := e.graph.Audio(id)
	for line := 0; line < a.AudioChannels; line++ {
		ch, err := e.graph.ChannelAt(id, audio.Input, line, t.Pad)
		if err != nil {
			return err
		}
		c, _ := e.graph.Channel(ch)
		if err := e.graph.SetTemplateData(c.Recycling, t.Data); err != nil {
			return err
		}
	}
	return nil
}

// SetPattern replaces the step pattern of an input pad on every line.
type SetPattern struct {
	Audio string
	Pad   int
	Steps []bool
}

func (t SetPattern) Name() string { return "set-pattern" }

func (t SetPattern) Apply(e *Engine) error {
	id, err := findAudio(e.graph, t.Audio)
	if err != nil {
		return err
	}
	a, _ := e.graph.Audio(id)
	for line := 0; line < a.AudioChannels; line++ {
		ch, err := e.graph.ChannelAt(id, audio.Input, line, t.Pad)
		if err != nil {
			return err
		}
		if err := e.graph.SetPattern(ch, t.Steps); err != nil {
			return err
		}
	}
	return nil
}

type SetNotation struct {
	Audio string
	Notes []audio.Note
}

func (t SetNotation) Name() string { return "set-notation" }

func (t SetNotation) Apply(e *Engine) error {
	id, err := findAudio(e.graph, t.Audio)
	if err != nil {
		return err
	}
	return e.graph.SetNotation(id, t.Notes)
}

// SetTiming changes tempo and delay factor. Zero fields keep their value.
type SetTiming struct {
	BPM         float64
	DelayFactor float64
}

func (t SetTiming) Name() string { return "set-timing" }

func (t SetTiming) Apply(e *Engine) error {
	timing := e.clock.Timing()
	if t.BPM != 0 {
		timing.BPM = t.BPM
	}
	if t.DelayFactor != 0 {
		timing.DelayFactor = t.DelayFactor
	}
	return e.clock.SetTiming(timing)
}

// SetPort writes a port of the most recently added container of an effect.
// With a Channel the channel port is written.
type SetPort struct {
	Audio   string
	Effect  string
	Port    string
	Channel *ChannelRef
	Value   float64
}

// SetPadPort writes a channel port on every line of an input pad.
type SetPadPort struct {
	Audio  string
	Effect string
	Pad    int
	Port   string
	Value  float64
}

func (t SetPadPort) Name() string { return "set-pad-port" }

func (t SetPadPort) Apply(e *Engine) error {
	id, err := findAudio(e.graph, t.Audio)
	if err != nil {
		return err
	}
	a, _ := e.graph.Audio(id)
	for line := 0; line < a.AudioChannels; line++ {
		err := SetPort{
			Audio:   t.Audio,
			Effect:  t.Effect,
			Port:    t.Port,
			Channel: &ChannelRef{Audio: t.Audio, Type: audio.Input, Line: line, Pad: t.Pad},
			Value:   t.Value,
		}.Apply(e)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t SetPort) Name() string { return "set-port" }

func (t SetPort) Apply(e *Engine) error {
	id, err := findAudio(e.graph, t.Audio)
	if err != nil {
		return err
	}
	c := findContainer(e.dispatcher, id, t.Effect)
	if c == nil {
		return fmt.Errorf("no %s on %s", t.Effect, t.Audio)
	}
	ports := c.Ports
	if t.Channel != nil {
		ch, err := t.Channel.resolve(e.graph)
		if err != nil {
			return err
		}
		if err := e.dispatcher.MapChannel(ch); err != nil {
			return err
		}
		if ports = c.ChannelPorts(ch); ports == nil {
			return fmt.Errorf("%s has no ports on %v", t.Effect, t.Channel)
		}
	}
	return ports.Set(t.Port, t.Value)
}

// Func runs an arbitrary function as a task, e.g. starting or stopping a
// device from the backend layer.
type Func struct {
	Label string
	F     func(e *Engine) error
}

func (t Func) Name() string { return t.Label }

func (t Func) Apply(e *Engine) error { return t.F(e) }
