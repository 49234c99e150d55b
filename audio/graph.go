package audio

import "fmt"

type ChannelType int

const (
	Output ChannelType = iota
	Input
)

func (t ChannelType) String() string {
	if t == Output {
		return "output"
	}
	return "input"
}

// Channel flags.
const (
	// ChannelPremapped marks a channel created by a resize whose recalls have
	// not been mapped yet. Mapping happens the first time the channel is used.
	ChannelPremapped uint32 = 1 << iota
	ChannelMappedRecall
)

// Audio is a sound producing unit owning a matrix of channels. Channels are
// stored pad-major: index = pad*AudioChannels + line.
type Audio struct {
	Name          string
	AudioChannels int
	OutputPads    int
	InputPads     int
	Output        []ChannelID
	Input         []ChannelID
	Notation      []Note
}

// Channels returns the channel slice of the given type.
func (a *Audio) Channels(typ ChannelType) []ChannelID {
	if typ == Output {
		return a.Output
	}
	return a.Input
}

// Pads returns the pad count of the given type.
func (a *Audio) Pads(typ ChannelType) int {
	if typ == Output {
		return a.OutputPads
	}
	return a.InputPads
}

type Channel struct {
	Audio AudioID
	Type  ChannelType
	Line  int
	Pad   int
	Flags uint32

	Recycling     RecyclingID
	OwnsRecycling bool
	Link          ChannelID

	Next, Prev       ChannelID
	NextPad, PrevPad ChannelID

	Pattern []bool
}

// Recycling holds the signals of one node in the mixing tree. Signals[0] is
// the template; all others are run signals keyed by RecallID.
type Recycling struct {
	Channel ChannelID
	Signals []SignalID
	runs    map[uint64]SignalID
}

// Format describes the stream layout shared by every signal of a graph.
type StreamFormat struct {
	Samplerate int
	BufferSize int
	Format     Format
}

// Observer receives structural change notifications. It is called
// synchronously from the mutating operation, between ticks.
type Observer interface {
	ChannelAdded(ch ChannelID)
	ChannelRemoved(ch ChannelID)
	RecyclingChanged(ch ChannelID, old, new RecyclingID)
}

// Graph owns every Audio, Channel, Recycling and AudioSignal. It is not safe
// for concurrent use; the engine serializes access with its phase lock.
type Graph struct {
	stream StreamFormat

	audios     arena[Audio]
	channels   arena[Channel]
	recyclings arena[Recycling]
	signals    arena[AudioSignal]

	observers []Observer
}

func NewGraph(stream StreamFormat) *Graph {
	return &Graph{stream: stream}
}

func (g *Graph) Stream() StreamFormat { return g.stream }

func (g *Graph) Observe(o Observer) {
	g.observers = append(g.observers, o)
}

func (g *Graph) Audio(id AudioID) (*Audio, bool)             { return g.audios.get(id) }
func (g *Graph) Channel(id ChannelID) (*Channel, bool)       { return g.channels.get(id) }
func (g *Graph) Recycling(id RecyclingID) (*Recycling, bool) { return g.recyclings.get(id) }
func (g *Graph) Signal(id SignalID) (*AudioSignal, bool)     { return g.signals.get(id) }

func (g *Graph) NumAudios() int     { return g.audios.len() }
func (g *Graph) NumChannels() int   { return g.channels.len() }
func (g *Graph) NumRecyclings() int { return g.recyclings.len() }
func (g *Graph) NumSignals() int    { return g.signals.len() }

// Audios returns the handles of all live audios in creation slot order.
func (g *Graph) Audios() []AudioID {
	var ids []AudioID
	g.audios.each(func(id AudioID, _ *Audio) { ids = append(ids, id) })
	return ids
}

// FindAudio looks up an audio by name.
func (g *Graph) FindAudio(name string) (AudioID, bool) {
	var found AudioID
	g.audios.each(func(id AudioID, a *Audio) {
		if found.IsZero() && a.Name == name {
			found = id
		}
	})
	return found, !found.IsZero()
}

// ChannelAt returns the channel of audio at (typ, line, pad).
func (g *Graph) ChannelAt(audio AudioID, typ ChannelType, line, pad int) (ChannelID, error) {
	a, ok := g.audios.get(audio)
	if !ok {
		return ChannelID{}, fmt.Errorf("audio %v: %w", audio, ErrStaleHandle)
	}
	if line < 0 || line >= a.AudioChannels || pad < 0 || pad >= a.Pads(typ) {
		return ChannelID{}, fmt.Errorf("%s channel %d:%d of %s: %w", typ, line, pad, a.Name, ErrOutOfRange)
	}
	return a.Channels(typ)[pad*a.AudioChannels+line], nil
}

// AddAudio creates an audio with the given matrix. Every channel is created
// premapped with its own recycling.
func (g *Graph) AddAudio(name string, audioChannels, outputPads, inputPads int) (AudioID, error) {
	if audioChannels < 0 || outputPads < 0 || inputPads < 0 {
		return AudioID{}, fmt.Errorf("add audio %s: %w", name, ErrOutOfRange)
	}
	id := g.audios.insert(&Audio{Name: name})
	if err := g.ResizeChannels(id, audioChannels); err != nil {
		g.audios.remove(id)
		return AudioID{}, err
	}
	if err := g.ResizePads(id, Output, outputPads); err != nil {
		g.RemoveAudio(id)
		return AudioID{}, err
	}
	if err := g.ResizePads(id, Input, inputPads); err != nil {
		g.RemoveAudio(id)
		return AudioID{}, err
	}
	return id, nil
}

// RemoveAudio unlinks and destroys every channel of the audio.
func (g *Graph) RemoveAudio(id AudioID) error {
	a, ok := g.audios.get(id)
	if !ok {
		return fmt.Errorf("remove audio %v: %w", id, ErrStaleHandle)
	}
	for _, typ := range []ChannelType{Input, Output} {
		g.destroyChannels(a.Channels(typ))
	}
	a.Output, a.Input = nil, nil
	g.audios.remove(id)
	return nil
}

// MixTarget returns the channel that ch's audio flows into: inputs mix into
// the output on the same line (pad 0), outputs flow into their linked input.
func (g *Graph) MixTarget(ch ChannelID) (ChannelID, bool) {
	c, ok := g.channels.get(ch)
	if !ok {
		return ChannelID{}, false
	}
	if c.Type == Output {
		if _, ok := g.channels.get(c.Link); ok {
			return c.Link, true
		}
		return ChannelID{}, false
	}
	a, ok := g.audios.get(c.Audio)
	if !ok || a.OutputPads == 0 || c.Line >= a.AudioChannels {
		return ChannelID{}, false
	}
	return a.Output[c.Line], true
}

// MixPath returns the recyclings ch's signal passes through, starting with
// ch's own recycling. Consecutive channels sharing a recycling contribute it
// once.
func (g *Graph) MixPath(ch ChannelID) []RecyclingID {
	var path []RecyclingID
	seen := make(map[ChannelID]bool)
	for cur, ok := ch, true; ok; cur, ok = g.MixTarget(cur) {
		if seen[cur] {
			panicOrLog("mix path of %v revisits %v", ch, cur)
			break
		}
		seen[cur] = true
		c, _ := g.channels.get(cur)
		if n := len(path); n == 0 || path[n-1] != c.Recycling {
			path = append(path, c.Recycling)
		}
	}
	return path
}

// Upstream returns the channels whose recycling feeds ch's recycling
// directly: for an output, the inputs on its line; for an input, its link.
func (g *Graph) Upstream(ch ChannelID) []ChannelID {
	c, ok := g.channels.get(ch)
	if !ok {
		return nil
	}
	if c.Type == Input {
		if _, ok := g.channels.get(c.Link); ok {
			return []ChannelID{c.Link}
		}
		return nil
	}
	if c.Pad != 0 {
		return nil
	}
	a, _ := g.audios.get(c.Audio)
	var up []ChannelID
	for pad := 0; pad < a.InputPads; pad++ {
		up = append(up, a.Input[pad*a.AudioChannels+c.Line])
	}
	return up
}

func (g *Graph) newChannel(audio AudioID, typ ChannelType, line, pad int) ChannelID {
	id := g.channels.insert(&Channel{
		Audio: audio,
		Type:  typ,
		Line:  line,
		Pad:   pad,
		Flags: ChannelPremapped,
	})
	c, _ := g.channels.get(id)
	c.Recycling = g.newRecycling(id)
	c.OwnsRecycling = true
	return id
}

func (g *Graph) newRecycling(owner ChannelID) RecyclingID {
	id := g.recyclings.insert(&Recycling{
		Channel: owner,
		runs:    make(map[uint64]SignalID),
	})
	r, _ := g.recyclings.get(id)
	r.Signals = append(r.Signals, g.signals.insert(newSignal(id, nil, g.stream)))
	return id
}

func (g *Graph) destroyRecycling(id RecyclingID) {
	r, ok := g.recyclings.get(id)
	if !ok {
		return
	}
	for _, s := range r.Signals {
		g.signals.remove(s)
	}
	g.recyclings.remove(id)
}

// destroyChannels unlinks, announces and frees the given channels.
func (g *Graph) destroyChannels(ids []ChannelID) {
	for _, id := range ids {
		if c, ok := g.channels.get(id); ok && !c.Link.IsZero() {
			g.unlink(id)
		}
	}
	for _, id := range ids {
		for _, o := range g.observers {
			o.ChannelRemoved(id)
		}
	}
	for _, id := range ids {
		c, ok := g.channels.get(id)
		if !ok {
			continue
		}
		if c.OwnsRecycling {
			g.destroyRecycling(c.Recycling)
		}
		g.channels.remove(id)
	}
}

func (g *Graph) announceAdded(ids []ChannelID) {
	for _, id := range ids {
		for _, o := range g.observers {
			o.ChannelAdded(id)
		}
	}
}

// relink rebuilds the next/prev and next_pad/prev_pad lists of one side of an
// audio.
func (g *Graph) relink(a *Audio, typ ChannelType) {
	ids := a.Channels(typ)
	pads := a.Pads(typ)
	for pad := 0; pad < pads; pad++ {
		for line := 0; line < a.AudioChannels; line++ {
			c, _ := g.channels.get(ids[pad*a.AudioChannels+line])
			c.Line, c.Pad = line, pad
			c.Next, c.Prev, c.NextPad, c.PrevPad = ChannelID{}, ChannelID{}, ChannelID{}, ChannelID{}
			if line+1 < a.AudioChannels {
				c.Next = ids[pad*a.AudioChannels+line+1]
			}
			if line > 0 {
				c.Prev = ids[pad*a.AudioChannels+line-1]
			}
			if pad+1 < pads {
				c.NextPad = ids[(pad+1)*a.AudioChannels+line]
			}
			if pad > 0 {
				c.PrevPad = ids[(pad-1)*a.AudioChannels+line]
			}
		}
	}
}
