package fx

import (
	"errors"
	"log"

	"github.com/mrdg/recall/audio"
	"github.com/mrdg/recall/recall"
)

// Pattern is the step sequencer. On every tact it selects step
// tact % length and spawns a voice on each input whose pattern has that step
// set. The current step is published on the offset port.
var Pattern = register(&recall.Effect{
	Name:    "pattern",
	Ability: recall.AbilityOf(audio.ScopeSequencer),
	Trees:   recall.RootTree,
	Ports: []audio.PortSpec{
		{Name: "length", Type: audio.PortInt, Min: 1, Max: 64, Default: 16},
		{Name: "offset", Type: audio.PortInt, Min: 0, Max: 63},
	},
	AudioRun: func(r *recall.Recall) recall.Processor {
		return &pattern{step: -1}
	},
})

type pattern struct {
	step int
}

func (p *pattern) RunPre(r *recall.Recall, t *recall.Tick) error {
	a, ok := t.Graph.Audio(r.Audio)
	if !ok {
		return nil
	}
	n := r.Ports().Lookup("length").ReadInt()
	for _, at := range t.Attacks {
		p.step = int(at.Tact % uint64(n))
		for _, ch := range a.Input {
			c, _ := t.Graph.Channel(ch)
			if p.step >= len(c.Pattern) || !c.Pattern[p.step] {
				continue
			}
			_, err := t.Spawn(r, ch, recall.Voice{Attack: at.Offset})
			if err != nil && !errors.Is(err, recall.ErrNothingToRun) {
				log.Printf("fx: pattern step %d on %v: %v", p.step, ch, err)
			}
		}
	}
	return nil
}

func (p *pattern) RunInter(r *recall.Recall, t *recall.Tick) error {
	if p.step < 0 {
		return nil
	}
	return r.Ports().Set("offset", float64(p.step))
}
