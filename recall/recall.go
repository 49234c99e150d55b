// Package recall runs signal processing units ("recalls") over the entity
// graph. Every running recall is bound to a RecallID and to one entity of the
// graph; recalls form trees mirroring the graph which are swept once per
// soundcard buffer.
package recall

import (
	"fmt"

	"github.com/mrdg/recall/audio"
)

// Level is the entity level a recall is attached to.
type Level int

const (
	LevelAudio Level = iota
	LevelAudioRun
	LevelChannel
	LevelChannelRun
	LevelRecycling
	LevelAudioSignal
)

var levelNames = [...]string{"audio", "audio-run", "channel", "channel-run", "recycling", "audio-signal"}

func (l Level) String() string { return levelNames[l] }

type State int

const (
	Uninitialized State = iota
	Premapped
	Mapped
	Running
	Done
	Cancelled
)

var stateNames = [...]string{"uninitialized", "premapped", "mapped", "running", "done", "cancelled"}

func (s State) String() string { return stateNames[s] }

// Finished reports whether s is terminal.
func (s State) Finished() bool { return s == Done || s == Cancelled }

// Ability is a set of scopes a recall runs in.
type Ability uint32

func AbilityOf(scopes ...audio.Scope) Ability {
	var a Ability
	for _, s := range scopes {
		a |= 1 << uint(s)
	}
	return a
}

const AbilityAll Ability = 1<<5 - 1

func (a Ability) Has(s audio.Scope) bool { return a&(1<<uint(s)) != 0 }

// Recall is one node of a recall tree. Nodes without a container are
// structural: they mirror an entity and exist to order and finish their
// children.
type Recall struct {
	Level     Level
	ID        *audio.RecallID
	Container *Container
	Audio     audio.AudioID
	Channel   audio.ChannelID
	Recycling audio.RecyclingID
	Signal    audio.SignalID

	proc  Processor
	ports *audio.Ports
	kind  TreeKind
	state State
	depth int

	parent   *Recall
	children []*Recall

	// finite is set when the node finishes on its own; pending counts the
	// finite children not finished yet.
	finite      bool
	pending     int
	initialized bool
	released    bool

	d *Dispatcher
}

func (r *Recall) State() State { return r.state }

func (r *Recall) Parent() *Recall { return r.parent }

func (r *Recall) Children() []*Recall { return r.children }

// Depth returns the distance from the root of the tree.
func (r *Recall) Depth() int { return r.depth }

// Processor returns the effect implementation, nil for structural nodes.
func (r *Recall) Processor() Processor { return r.proc }

// Ports returns the per-audio ports of the container.
func (r *Recall) Ports() *audio.Ports {
	if r.Container == nil {
		return nil
	}
	return r.Container.Ports
}

// ChannelPorts returns the ports of the channel recall this node runs for.
func (r *Recall) ChannelPorts() *audio.Ports {
	if r.Container == nil {
		return nil
	}
	return r.Container.ChannelPorts(r.Channel)
}

func (r *Recall) String() string {
	name := "structural"
	if r.Container != nil {
		name = r.Container.Effect.Name
	}
	switch r.Level {
	case LevelAudio, LevelAudioRun:
		return fmt.Sprintf("%s %s %v", name, r.Level, r.Audio)
	case LevelChannel, LevelChannelRun:
		return fmt.Sprintf("%s %s %v", name, r.Level, r.Channel)
	case LevelRecycling:
		return fmt.Sprintf("%s %s %v", name, r.Level, r.Recycling)
	}
	return fmt.Sprintf("%s %s %v", name, r.Level, r.Signal)
}

func (r *Recall) add(child *Recall) {
	child.parent = r
	child.depth = r.depth + 1
	child.kind = r.kind
	child.d = r.d
	r.children = append(r.children, child)
}

// markFinite flags r and its ancestors as finishing on their own.
func (r *Recall) markFinite() {
	for n := r; n != nil && !n.finite; n = n.parent {
		n.finite = true
		if n.parent != nil {
			n.parent.pending++
		}
	}
}

// Done finishes the recall. Calls on a finished recall are no-ops. During a
// sweep the transition is deferred until every run_post of the tick has
// completed.
func (r *Recall) Done() {
	if r.state.Finished() {
		return
	}
	if r.d != nil && r.d.sweeping {
		r.d.deferDone(r)
		return
	}
	r.finish(Done)
}

// Cancel forces the recall and its subtree to finish without normal
// completion. Resources are released exactly once.
func (r *Recall) Cancel() {
	if r.state.Finished() {
		return
	}
	r.finish(Cancelled)
}

func (r *Recall) finish(state State) {
	if r.state.Finished() {
		return
	}
	r.state = state
	for _, child := range r.children {
		child.finishSubtree(state)
	}
	r.release()
	if p := r.parent; p != nil && r.finite && !p.state.Finished() {
		p.pending--
		if p.pending <= 0 {
			p.Done()
		}
	}
}

// finishSubtree finishes r without notifying its parent, which is finishing
// itself.
func (r *Recall) finishSubtree(state State) {
	if r.state.Finished() {
		return
	}
	r.state = state
	for _, child := range r.children {
		child.finishSubtree(state)
	}
	r.release()
}

func (r *Recall) release() {
	if r.released {
		return
	}
	r.released = true
	if rel, ok := r.proc.(Releaser); ok {
		rel.Release(r)
	}
}

// walk calls f for r and every descendant, parents first.
func (r *Recall) walk(f func(*Recall)) {
	f(r)
	for _, child := range r.children {
		child.walk(f)
	}
}
