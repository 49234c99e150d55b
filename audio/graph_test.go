package audio

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
)

func newTestGraph() *Graph {
	return NewGraph(StreamFormat{Samplerate: 44100, BufferSize: 64, Format: FormatFloat})
}

type recordingObserver struct {
	added   []ChannelID
	removed []ChannelID
	changed [][2]RecyclingID
}

func (o *recordingObserver) ChannelAdded(ch ChannelID)   { o.added = append(o.added, ch) }
func (o *recordingObserver) ChannelRemoved(ch ChannelID) { o.removed = append(o.removed, ch) }
func (o *recordingObserver) RecyclingChanged(ch ChannelID, old, new RecyclingID) {
	o.changed = append(o.changed, [2]RecyclingID{old, new})
}

func TestAddAudio(t *testing.T) {
	g := newTestGraph()
	id, err := g.AddAudio("drums", 2, 1, 4)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := g.Audio(id)
	if want, got := 2, len(a.Output); want != got {
		t.Errorf("expected %d outputs, got %d", want, got)
	}
	if want, got := 8, len(a.Input); want != got {
		t.Errorf("expected %d inputs, got %d", want, got)
	}
	if want, got := 10, g.NumRecyclings(); want != got {
		t.Errorf("expected %d recyclings, got %d", want, got)
	}
	if want, got := 10, g.NumSignals(); want != got {
		t.Errorf("expected one template per recycling, got %d signals", got)
	}

	for i, ch := range a.Input {
		c, _ := g.Channel(ch)
		if want, got := i%2, c.Line; want != got {
			t.Errorf("input %d: expected line %d, got %d", i, want, got)
		}
		if want, got := i/2, c.Pad; want != got {
			t.Errorf("input %d: expected pad %d, got %d", i, want, got)
		}
		if c.Flags&ChannelPremapped == 0 {
			t.Errorf("input %d: expected channel to be premapped", i)
		}
		if !c.OwnsRecycling {
			t.Errorf("input %d: expected channel to own its recycling", i)
		}
	}

	c, _ := g.Channel(a.Input[2])
	if want, got := a.Input[3], c.Next; want != got {
		t.Errorf("expected next %v, got %v", want, got)
	}
	if want, got := a.Input[0], c.PrevPad; want != got {
		t.Errorf("expected prev pad %v, got %v", want, got)
	}
	if want, got := a.Input[4], c.NextPad; want != got {
		t.Errorf("expected next pad %v, got %v", want, got)
	}

	if _, err := g.AddAudio("bad", -1, 0, 0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
}

func TestResizePads(t *testing.T) {
	g := newTestGraph()
	id, _ := g.AddAudio("drums", 2, 1, 4)
	a, _ := g.Audio(id)
	before := append([]ChannelID(nil), a.Input...)
	doomedRec := mustChannel(t, g, before[6]).Recycling

	obs := &recordingObserver{}
	g.Observe(obs)
	if err := g.ResizePads(id, Input, 2); err != nil {
		t.Fatal(err)
	}

	if want, got := before[:4], a.Input; !reflect.DeepEqual(want, got) {
		t.Errorf("expected surviving inputs %v, got %v", want, got)
	}
	if want, got := 2, a.InputPads; want != got {
		t.Errorf("expected %d input pads, got %d", want, got)
	}
	if want, got := before[4:], obs.removed; !reflect.DeepEqual(want, got) {
		t.Errorf("expected removed %v, got %v", want, got)
	}
	for _, ch := range before[4:] {
		if _, ok := g.Channel(ch); ok {
			t.Errorf("expected %v to be destroyed", ch)
		}
	}
	if _, ok := g.Recycling(doomedRec); ok {
		t.Errorf("expected recycling %v to be released", doomedRec)
	}
	if want, got := 6, g.NumRecyclings(); want != got {
		t.Errorf("expected %d recyclings, got %d", want, got)
	}
	if want, got := 6, g.NumSignals(); want != got {
		t.Errorf("expected %d signals, got %d", want, got)
	}
	c := mustChannel(t, g, a.Input[2])
	if !c.NextPad.IsZero() {
		t.Errorf("expected last pad to have no next pad, got %v", c.NextPad)
	}
}

type channelShape struct {
	Type          ChannelType
	Line, Pad     int
	OwnsRecycling bool
	Linked        bool
	// positions of the neighbours on the same side, -1 for none
	Next, Prev, NextPad, PrevPad int
}

func shapeOf(t *testing.T, g *Graph, a *Audio) []channelShape {
	t.Helper()
	var shapes []channelShape
	for _, typ := range []ChannelType{Output, Input} {
		ids := a.Channels(typ)
		pos := func(id ChannelID) int {
			for i, other := range ids {
				if other == id {
					return i
				}
			}
			return -1
		}
		for _, id := range ids {
			c := mustChannel(t, g, id)
			shapes = append(shapes, channelShape{
				Type:          c.Type,
				Line:          c.Line,
				Pad:           c.Pad,
				OwnsRecycling: c.OwnsRecycling,
				Linked:        !c.Link.IsZero(),
				Next:          pos(c.Next),
				Prev:          pos(c.Prev),
				NextPad:       pos(c.NextPad),
				PrevPad:       pos(c.PrevPad),
			})
		}
	}
	return shapes
}

func TestResizeRoundTrip(t *testing.T) {
	tests := []struct {
		n, m int
	}{
		{2, 3},
		{2, 1},
		{2, 0},
		{0, 2},
		{1, 1},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d-%d-%d", test.n, test.m, test.n), func(t *testing.T) {
			g := newTestGraph()
			id, _ := g.AddAudio("synth", test.n, 1, 2)
			a, _ := g.Audio(id)
			outputs := append([]ChannelID(nil), a.Output...)
			inputs := append([]ChannelID(nil), a.Input...)
			shape := shapeOf(t, g, a)
			recyclings, signals := g.NumRecyclings(), g.NumSignals()

			obs := &recordingObserver{}
			g.Observe(obs)
			if err := g.ResizeChannels(id, test.m); err != nil {
				t.Fatal(err)
			}
			if want, got := test.m*3, len(a.Output)+len(a.Input); want != got {
				t.Errorf("expected %d channels, got %d", want, got)
			}
			if err := g.ResizeChannels(id, test.n); err != nil {
				t.Fatal(err)
			}

			if want, got := test.n, a.AudioChannels; want != got {
				t.Errorf("expected %d audio channels, got %d", want, got)
			}
			if want, got := shape, shapeOf(t, g, a); !reflect.DeepEqual(want, got) {
				t.Errorf("expected topology %+v, got %+v", want, got)
			}
			if want, got := recyclings, g.NumRecyclings(); want != got {
				t.Errorf("expected %d recyclings, got %d", want, got)
			}
			if want, got := signals, g.NumSignals(); want != got {
				t.Errorf("expected %d signals, got %d", want, got)
			}
			if want, got := len(obs.added), len(obs.removed); want != got {
				t.Errorf("expected every added channel to be removed or replace a removed one, got %d added and %d removed", want, got)
			}
			if test.m >= test.n {
				if want, got := outputs, a.Output; !reflect.DeepEqual(want, got) {
					t.Errorf("expected outputs %v, got %v", want, got)
				}
				if want, got := inputs, a.Input; !reflect.DeepEqual(want, got) {
					t.Errorf("expected inputs %v, got %v", want, got)
				}
			}
		})
	}
}

func TestRemoveAudio(t *testing.T) {
	g := newTestGraph()
	master, _ := g.AddAudio("master", 1, 1, 1)
	drums, _ := g.AddAudio("drums", 1, 1, 1)
	m, _ := g.Audio(master)
	d, _ := g.Audio(drums)
	if err := g.SetLink(d.Output[0], m.Input[0]); err != nil {
		t.Fatal(err)
	}
	shared := mustChannel(t, g, d.Output[0]).Recycling

	if err := g.RemoveAudio(drums); err != nil {
		t.Fatal(err)
	}
	in := mustChannel(t, g, m.Input[0])
	if !in.Link.IsZero() {
		t.Errorf("expected input to be unlinked, got %v", in.Link)
	}
	if in.Recycling == shared || !in.OwnsRecycling {
		t.Errorf("expected input to get a fresh recycling")
	}
	if _, ok := g.Recycling(shared); ok {
		t.Errorf("expected shared recycling to be released")
	}
	if _, ok := g.Audio(drums); ok {
		t.Errorf("expected audio handle to be stale")
	}
	if err := g.RemoveAudio(drums); !errors.Is(err, ErrStaleHandle) {
		t.Errorf("expected ErrStaleHandle, got %v", err)
	}
	if want, got := 2, g.NumChannels(); want != got {
		t.Errorf("expected %d channels, got %d", want, got)
	}
}

func TestMixPath(t *testing.T) {
	g := newTestGraph()
	master, _ := g.AddAudio("master", 1, 1, 1)
	drums, _ := g.AddAudio("drums", 1, 1, 2)
	m, _ := g.Audio(master)
	d, _ := g.Audio(drums)
	if err := g.SetLink(m.Input[0], d.Output[0]); err != nil {
		t.Fatal(err)
	}

	rec := func(ch ChannelID) RecyclingID { return mustChannel(t, g, ch).Recycling }
	want := []RecyclingID{rec(d.Input[1]), rec(d.Output[0]), rec(m.Output[0])}
	if got := g.MixPath(d.Input[1]); !reflect.DeepEqual(want, got) {
		t.Errorf("expected path %v, got %v", want, got)
	}

	target, ok := g.MixTarget(d.Output[0])
	if !ok || target != m.Input[0] {
		t.Errorf("expected output to flow into %v, got %v", m.Input[0], target)
	}
	if want, got := []ChannelID{d.Input[0], d.Input[1]}, g.Upstream(d.Output[0]); !reflect.DeepEqual(want, got) {
		t.Errorf("expected upstream %v, got %v", want, got)
	}
}

func TestChannelAt(t *testing.T) {
	g := newTestGraph()
	id, _ := g.AddAudio("drums", 2, 1, 3)
	a, _ := g.Audio(id)
	ch, err := g.ChannelAt(id, Input, 1, 2)
	if err != nil {
		t.Fatal(err)
	}
	if want, got := a.Input[5], ch; want != got {
		t.Errorf("expected %v, got %v", want, got)
	}
	if _, err := g.ChannelAt(id, Input, 2, 0); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("expected ErrOutOfRange, got %v", err)
	}
	if found, ok := g.FindAudio("drums"); !ok || found != id {
		t.Errorf("expected to find drums")
	}
}

func mustChannel(t *testing.T, g *Graph, id ChannelID) *Channel {
	t.Helper()
	c, ok := g.Channel(id)
	if !ok {
		t.Fatalf("channel %v not found", id)
	}
	return c
}
