package fx

import (
	"errors"
	"log"

	"github.com/mrdg/recall/audio"
	"github.com/mrdg/recall/recall"
)

// Notation plays the notes of an audio. A note starts on the tact equal to
// its X0, counted from the first tact after the scope started, and plays on
// every line of the input pad selected by its Y.
var Notation = register(&recall.Effect{
	Name:    "notation",
	Ability: recall.AbilityOf(audio.ScopeNotation),
	Trees:   recall.RootTree,
	Ports: []audio.PortSpec{
		{Name: "loop", Type: audio.PortBool, Min: 0, Max: 1},
		{Name: "loop-end", Type: audio.PortInt, Min: 1, Max: 1 << 16, Default: 64},
	},
	AudioRun: func(r *recall.Recall) recall.Processor {
		return &notation{}
	},
})

type notation struct {
	started bool
	start   uint64
}

func (n *notation) RunPre(r *recall.Recall, t *recall.Tick) error {
	a, ok := t.Graph.Audio(r.Audio)
	if !ok {
		return nil
	}
	loop := r.Ports().Lookup("loop").ReadBool()
	end := uint64(r.Ports().Lookup("loop-end").ReadInt())
	delay := t.Clock.Timing().AbsoluteDelay()
	for _, at := range t.Attacks {
		if !n.started {
			n.started = true
			n.start = at.Tact
		}
		rel := at.Tact - n.start
		if loop && rel >= end {
			n.start = at.Tact
			rel = 0
		}
		for _, note := range a.Notation {
			if note.X0 != rel || note.Y < 0 || note.Y >= a.InputPads {
				continue
			}
			v := recall.Voice{
				Attack: at.Offset,
				Notes:  []audio.Note{note},
			}
			if note.X1 > note.X0 {
				v.Length = audio.FeedFrameCount(t.Graph.Stream().Samplerate, delay, note.X0, note.X1)
			}
			for line := 0; line < a.AudioChannels; line++ {
				ch := a.Input[note.Y*a.AudioChannels+line]
				_, err := t.Spawn(r, ch, v)
				if err != nil && !errors.Is(err, recall.ErrNothingToRun) {
					log.Printf("fx: notation note at %d on %v: %v", note.X0, ch, err)
				}
			}
		}
	}
	return nil
}
