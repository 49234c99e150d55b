package fx

import (
	"github.com/mrdg/recall/audio"
	"github.com/mrdg/recall/recall"
)

// Play writes the signals arriving at an audio's outputs to the device
// buffer. It belongs on the audio that is not linked any further, usually
// the master.
var Play = register(&recall.Effect{
	Name:    "play",
	Ability: recall.AbilityOf(audio.ScopePlayback),
	Trees:   recall.RootTree,
	Side:    recall.SideOutput,
	ChannelRun: func(r *recall.Recall) recall.Processor {
		return play{}
	},
})

type play struct{}

func (play) RunPost(r *recall.Recall, t *recall.Tick) error {
	c, ok := t.Graph.Channel(r.Channel)
	if !ok || c.Pad != 0 || c.Line >= t.Channels {
		return nil
	}
	t.Graph.RunSignals(r.Recycling, func(_ audio.SignalID, s *audio.AudioSignal) {
		n := frames(t, s.Buffer)
		for i := 0; i < n; i++ {
			t.Out[i*t.Channels+c.Line] += float32(s.Buffer[i])
		}
	})
	return nil
}
