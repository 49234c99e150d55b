package fx

import (
	"math"

	"github.com/mrdg/recall/audio"
	"github.com/mrdg/recall/recall"
)

// Peak measures the absolute peak of the mix at every output of an audio once
// per tick. The channel port holds the channel's peak, the audio port the
// largest of them.
var Peak = register(&recall.Effect{
	Name:    "peak",
	Ability: recall.AbilityAll,
	Trees:   recall.RootTree,
	Side:    recall.SideOutput,
	Ports: []audio.PortSpec{
		{Name: "peak", Type: audio.PortFloat, Min: 0, Max: math.MaxFloat64},
	},
	ChannelPorts: []audio.PortSpec{
		{Name: "peak", Type: audio.PortFloat, Min: 0, Max: math.MaxFloat64},
	},
	Init: func(c *recall.Container) error {
		c.Data = &peakState{}
		return nil
	},
	ChannelRun: func(r *recall.Recall) recall.Processor {
		return &peak{}
	},
})

type peakState struct {
	serial uint64
	max    float64
}

type peak struct {
	mix []float64
}

func (p *peak) RunInitPre(r *recall.Recall, t *recall.Tick) error {
	p.mix = make([]float64, t.Graph.Stream().BufferSize)
	return nil
}

func (p *peak) RunPost(r *recall.Recall, t *recall.Tick) error {
	for i := range p.mix {
		p.mix[i] = 0
	}
	t.Graph.RunSignals(r.Recycling, func(_ audio.SignalID, s *audio.AudioSignal) {
		n := min(frames(t, s.Buffer), len(p.mix))
		for i := 0; i < n; i++ {
			p.mix[i] += s.Buffer[i]
		}
	})
	var v float64
	for i := 0; i < min(t.Frames, len(p.mix)); i++ {
		v = math.Max(v, math.Abs(p.mix[i]))
	}
	if ports := r.ChannelPorts(); ports != nil {
		if err := ports.Set("peak", v); err != nil {
			return err
		}
	}
	st := r.Container.Data.(*peakState)
	if st.serial != t.Serial {
		st.serial = t.Serial
		st.max = 0
	}
	st.max = math.Max(st.max, v)
	return r.Ports().Set("peak", st.max)
}
