package fx

import (
	"github.com/mrdg/recall/audio"
	"github.com/mrdg/recall/recall"
)

// Volume scales a voice at its source by the volume port of its channel.
var Volume = register(&recall.Effect{
	Name:    "volume",
	Ability: recall.AbilityAll,
	Trees:   recall.VoiceTree,
	Side:    recall.SideInput,
	ChannelPorts: []audio.PortSpec{
		{Name: "volume", Type: audio.PortFloat, Min: 0, Max: 2, Default: 1},
	},
	AudioSignal: func(r *recall.Recall) recall.Processor {
		if !isSource(r) {
			return nil
		}
		return volume{}
	},
})

type volume struct{}

func (volume) RunPost(r *recall.Recall, t *recall.Tick) error {
	ports := r.ChannelPorts()
	if ports == nil {
		return nil
	}
	gain := ports.Lookup("volume").SafeRead()
	s, ok := t.Graph.Signal(r.Signal)
	if !ok || gain == 1 {
		return nil
	}
	n := frames(t, s.Buffer)
	for i := 0; i < n; i++ {
		s.Buffer[i] *= gain
	}
	return nil
}
