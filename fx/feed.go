package fx

import (
	"github.com/mrdg/recall/recall"
)

// Feed renders the template of a voice's source recycling into the voice,
// starting at the attack offset of its first buffer. The voice is done when
// the template or the voice length runs out.
var Feed = register(&recall.Effect{
	Name:    "feed",
	Ability: recall.AbilityAll,
	Trees:   recall.VoiceTree,
	Side:    recall.SideBoth,
	AudioSignal: func(r *recall.Recall) recall.Processor {
		if !isSource(r) {
			return nil
		}
		return feed{}
	},
})

type feed struct{}

func (feed) Finishes() bool { return true }

func (feed) RunPre(r *recall.Recall, t *recall.Tick) error {
	s, ok := t.Graph.Signal(r.Signal)
	if !ok {
		return nil
	}
	tmpl, err := t.Graph.Template(r.Recycling)
	if err != nil {
		return err
	}
	end := len(tmpl.Data)
	if s.Length > 0 && s.Length < end {
		end = s.Length
	}
	gain := 1.0
	if len(s.Notes) > 0 && s.Notes[0].Velocity > 0 {
		gain = float64(s.Notes[0].Velocity) / 127
	}
	start := 0
	if s.Frame == 0 {
		start = s.Attack
	}
	n := frames(t, s.Buffer)
	for i := start; i < n && s.Frame < end; i++ {
		s.Buffer[i] = tmpl.Data[s.Frame] * gain
		s.Frame++
	}
	if s.Frame >= end {
		r.Done()
	}
	return nil
}
