// Package fx implements the effects that run as recalls: routing voices
// through the mixing tree, rendering templates, sequencing and metering.
package fx

import (
	"sort"

	"github.com/mrdg/recall/recall"
)

var effects = map[string]*recall.Effect{}

func register(e *recall.Effect) *recall.Effect {
	effects[e.Name] = e
	return e
}

// Lookup returns the effect registered under name.
func Lookup(name string) (*recall.Effect, bool) {
	e, ok := effects[name]
	return e, ok
}

// Names returns the names of all registered effects.
func Names() []string {
	var names []string
	for name := range effects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// isSource reports whether r runs on the first recycling of its voice, the
// one the voice is rendered into.
func isSource(r *recall.Recall) bool {
	recs := r.ID.Context.Recyclings
	return len(recs) > 0 && recs[0] == r.Recycling
}

func frames(t *recall.Tick, buf []float64) int {
	return min(t.Frames, len(buf))
}
