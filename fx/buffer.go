package fx

import (
	"github.com/mrdg/recall/audio"
	"github.com/mrdg/recall/recall"
)

// Buffer mixes a voice from an input's recycling into the next recycling on
// the voice path, normally the output on the same line.
var Buffer = register(&recall.Effect{
	Name:    "buffer",
	Ability: recall.AbilityAll,
	Trees:   recall.VoiceTree,
	Side:    recall.SideInput,
	ChannelRun: func(r *recall.Recall) recall.Processor {
		return &buffer{dest: make(map[audio.RecyclingID]audio.SignalID)}
	},
})

type buffer struct {
	dest map[audio.RecyclingID]audio.SignalID
}

func (b *buffer) RunInitPre(r *recall.Recall, t *recall.Tick) error {
	for rec := range b.dest {
		delete(b.dest, rec)
	}
	return nil
}

func (b *buffer) RunPost(r *recall.Recall, t *recall.Tick) error {
	ctx := r.ID.Context
	i := ctx.Index(r.Recycling)
	if i < 0 || i+1 >= len(ctx.Recyclings) {
		return nil
	}
	next := ctx.Recyclings[i+1]
	srcID, ok := t.Graph.RunSignal(r.Recycling, r.ID)
	if !ok {
		return nil
	}
	dstID, ok := b.dest[next]
	if !ok {
		if dstID, ok = t.Graph.RunSignal(next, r.ID); !ok {
			return nil
		}
		b.dest[next] = dstID
	}
	src, ok := t.Graph.Signal(srcID)
	if !ok {
		return nil
	}
	dst, ok := t.Graph.Signal(dstID)
	if !ok {
		delete(b.dest, next)
		return nil
	}
	n := min(frames(t, src.Buffer), len(dst.Buffer))
	for i := 0; i < n; i++ {
		dst.Buffer[i] += src.Buffer[i]
	}
	return nil
}
