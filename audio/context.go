package audio

import (
	"fmt"
	"strings"
)

// Scope is one of the independent processing contexts running over the same
// graph.
type Scope int

const (
	ScopePlayback Scope = iota
	ScopeSequencer
	ScopeNotation
	ScopeWave
	ScopeMidi
	numScopes
)

var scopeNames = [...]string{"playback", "sequencer", "notation", "wave", "midi"}

func (s Scope) String() string {
	if s < 0 || s >= numScopes {
		return fmt.Sprintf("scope(%d)", int(s))
	}
	return scopeNames[s]
}

// ParseScope parses the lowercase name of a scope.
func ParseScope(name string) (Scope, error) {
	for i, n := range scopeNames {
		if n == name {
			return Scope(i), nil
		}
	}
	return 0, fmt.Errorf("unknown scope %q", name)
}

// RecyclingContext identifies one execution path through the mixing tree. A
// context with a nil Parent is a root.
type RecyclingContext struct {
	Recyclings []RecyclingID
	Parent     *RecyclingContext
	Scope      Scope
	// Voice distinguishes concurrent voices over the same path; zero for
	// contexts found by structure.
	Voice uint64
	// Audio is the audio a root context was started on.
	Audio AudioID

	id       *RecallID
	released bool
}

// Contains reports whether rec is on the context path.
func (c *RecyclingContext) Contains(rec RecyclingID) bool {
	for _, r := range c.Recyclings {
		if r == rec {
			return true
		}
	}
	return false
}

// Index returns the position of rec on the context path, or -1.
func (c *RecyclingContext) Index(rec RecyclingID) int {
	for i, r := range c.Recyclings {
		if r == rec {
			return i
		}
	}
	return -1
}

// RecallID returns the id bound to the context.
func (c *RecyclingContext) RecallID() *RecallID { return c.id }

// Released reports whether the context has been released.
func (c *RecyclingContext) Released() bool { return c.released }

// Root returns the top of the parent chain.
func (c *RecyclingContext) Root() *RecyclingContext {
	cur := c
	for depth := 0; cur.Parent != nil; depth++ {
		if depth > maxContextDepth {
			panicOrLog("recycling context %p has a cyclic parent chain", c)
			return cur
		}
		cur = cur.Parent
	}
	return cur
}

// DescendsFrom reports whether c is anc or has anc in its parent chain.
func (c *RecyclingContext) DescendsFrom(anc *RecyclingContext) bool {
	cur := c
	for depth := 0; cur != nil; depth++ {
		if cur == anc {
			return true
		}
		if depth > maxContextDepth {
			panicOrLog("recycling context %p has a cyclic parent chain", c)
			return false
		}
		cur = cur.Parent
	}
	return false
}

func (c *RecyclingContext) equal(recs []RecyclingID, parent *RecyclingContext, scope Scope, voice uint64) bool {
	if c.Parent != parent || c.Scope != scope || c.Voice != voice || len(c.Recyclings) != len(recs) {
		return false
	}
	for i := range recs {
		if c.Recyclings[i] != recs[i] {
			return false
		}
	}
	return true
}

func (c *RecyclingContext) String() string {
	var parts []string
	for _, r := range c.Recyclings {
		parts = append(parts, r.String())
	}
	return fmt.Sprintf("%s[%s]#%d", c.Scope, strings.Join(parts, " "), c.Voice)
}

const maxContextDepth = 1 << 10

// RecallID pairs a recycling context with its sound scope. It keys every
// run signal and run recall created for that context.
type RecallID struct {
	Context *RecyclingContext
	Scope   Scope

	serial    uint64
	cancelled bool
}

func (id *RecallID) Serial() uint64 { return id.serial }

// Cancelled reports whether the id has been invalidated.
func (id *RecallID) Cancelled() bool { return id.cancelled }

// Cancel marks the id as cancellable. Recalls keyed by it skip their next
// phase.
func (id *RecallID) Cancel() { id.cancelled = true }

func (id *RecallID) String() string {
	return fmt.Sprintf("recall-id %d (%v)", id.serial, id.Context)
}

// Registry creates and looks up recycling contexts.
type Registry struct {
	contexts []*RecyclingContext
	serial   uint64
	voice    uint64
}

func NewRegistry() *Registry {
	return &Registry{}
}

// FindOrCreate returns the context for the mixing path starting at ch's
// recycling, parented to parent. A structurally equal live context is reused.
func (r *Registry) FindOrCreate(g *Graph, ch ChannelID, scope Scope, parent *RecyclingContext) (*RecyclingContext, error) {
	if _, ok := g.Channel(ch); !ok {
		return nil, fmt.Errorf("find context for %v: %w", ch, ErrStaleHandle)
	}
	return r.lookup(g.MixPath(ch), parent, scope, 0), nil
}

// Root returns the root context of audio for scope. Its path is the union of
// the mix paths of every output of the audio. A live root keeps its identity
// while channels and links change; its path is refreshed on every call.
func (r *Registry) Root(g *Graph, audio AudioID, scope Scope) (*RecyclingContext, error) {
	a, ok := g.Audio(audio)
	if !ok {
		return nil, fmt.Errorf("root context for %v: %w", audio, ErrStaleHandle)
	}
	var recs []RecyclingID
	seen := make(map[RecyclingID]bool)
	for _, out := range a.Output {
		for _, rec := range g.MixPath(out) {
			if !seen[rec] {
				seen[rec] = true
				recs = append(recs, rec)
			}
		}
	}
	for _, c := range r.contexts {
		if c.Parent == nil && c.Voice == 0 && c.Scope == scope && c.Audio == audio {
			c.Recyclings = recs
			return c, nil
		}
	}
	c := r.create(recs, nil, scope, 0)
	c.Audio = audio
	return c, nil
}

// NewVoice always creates a new context for the path of ch, so that several
// notes on the same channel run independently.
func (r *Registry) NewVoice(g *Graph, ch ChannelID, scope Scope, parent *RecyclingContext) (*RecyclingContext, error) {
	if _, ok := g.Channel(ch); !ok {
		return nil, fmt.Errorf("new voice on %v: %w", ch, ErrStaleHandle)
	}
	r.voice++
	return r.create(g.MixPath(ch), parent, scope, r.voice), nil
}

func (r *Registry) lookup(recs []RecyclingID, parent *RecyclingContext, scope Scope, voice uint64) *RecyclingContext {
	for _, c := range r.contexts {
		if c.equal(recs, parent, scope, voice) {
			return c
		}
	}
	return r.create(recs, parent, scope, voice)
}

func (r *Registry) create(recs []RecyclingID, parent *RecyclingContext, scope Scope, voice uint64) *RecyclingContext {
	r.serial++
	c := &RecyclingContext{
		Recyclings: recs,
		Parent:     parent,
		Scope:      scope,
		Voice:      voice,
	}
	c.id = &RecallID{Context: c, Scope: scope, serial: r.serial}
	r.contexts = append(r.contexts, c)
	return c
}

// RecallID returns the id running for ctx and scope over rec, or nil if no
// such recall is live.
func (r *Registry) RecallID(rec RecyclingID, ctx *RecyclingContext, scope Scope) *RecallID {
	if ctx == nil || ctx.released || ctx.Scope != scope || !ctx.Contains(rec) {
		return nil
	}
	if ctx.id.cancelled {
		return nil
	}
	return ctx.id
}

// Release drops a context. Its id is cancelled and it can no longer be found.
func (r *Registry) Release(ctx *RecyclingContext) {
	for i, c := range r.contexts {
		if c == ctx {
			r.contexts = append(r.contexts[:i], r.contexts[i+1:]...)
			break
		}
	}
	ctx.id.cancelled = true
	ctx.released = true
}

// Live returns the live contexts in creation order.
func (r *Registry) Live() []*RecyclingContext {
	return append([]*RecyclingContext(nil), r.contexts...)
}

// Children returns the live contexts whose parent is ctx.
func (r *Registry) Children(ctx *RecyclingContext) []*RecyclingContext {
	var children []*RecyclingContext
	for _, c := range r.contexts {
		if c.Parent == ctx {
			children = append(children, c)
		}
	}
	return children
}
