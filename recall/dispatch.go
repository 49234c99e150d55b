package recall

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mrdg/recall/audio"
)

// ErrStaleReference is reported when a recall finds that an entity it is bound
// to was removed or re-pointed by a structural change.
var ErrStaleReference = errors.New("stale reference")

// Tick carries the state of one soundcard buffer through a sweep.
type Tick struct {
	Graph   *audio.Graph
	Clock   *audio.Clock
	Attacks []audio.Attack
	// In and Out are interleaved device buffers of Frames frames and
	// Channels channels.
	In, Out  []float32
	Channels int
	Frames   int
	Serial   uint64

	d *Dispatcher
}

// Voice describes a voice to spawn.
type Voice struct {
	// Attack is the frame offset in the current buffer where the voice starts.
	Attack int
	// Length is the number of frames to render, zero for the whole template.
	Length int
	Notes  []audio.Note
}

// Spawn starts a voice on ch below the context of parent. The voice is
// processed starting with the current tick.
func (t *Tick) Spawn(parent *Recall, ch audio.ChannelID, v Voice) (*Recall, error) {
	return t.d.Spawn(parent.ID.Context, ch, v)
}

type Option func(*Dispatcher)

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithWorkers runs the run_pre of audio signal recalls on up to n goroutines.
func WithWorkers(n int) Option {
	return func(d *Dispatcher) { d.workers = n }
}

type instanceKey struct {
	serial    uint64
	level     Level
	container *Container
	audio     audio.AudioID
	channel   audio.ChannelID
	recycling audio.RecyclingID
	signal    audio.SignalID
}

// Dispatcher owns every recall tree and sweeps them once per tick. It must
// only be used from the goroutine holding the engine's phase lock.
type Dispatcher struct {
	graph    *audio.Graph
	registry *audio.Registry
	logger   *log.Logger
	workers  int

	containers map[audio.AudioID][]*Container
	roots      []*Recall
	byChannel  map[audio.ChannelID][]*Recall
	instances  map[instanceKey]*Recall

	sweeping bool
	mu       sync.Mutex
	pending  []*Recall

	levels  [][]*Recall
	scratch []*Recall
	errs    []error
}

func NewDispatcher(g *audio.Graph, reg *audio.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		graph:      g,
		registry:   reg,
		logger:     log.Default(),
		containers: make(map[audio.AudioID][]*Container),
		byChannel:  make(map[audio.ChannelID][]*Recall),
		instances:  make(map[instanceKey]*Recall),
	}
	for _, opt := range opts {
		opt(d)
	}
	g.Observe(d)
	return d
}

// Roots returns the top level recall trees in sweep order.
func (d *Dispatcher) Roots() []*Recall {
	return append([]*Recall(nil), d.roots...)
}

// Run sweeps every recall tree for one tick: run_init_pre and run_pre then
// run_inter level by level from the root down, then run_post from the
// deepest level up. Trees are entered in creation order for the pre phases.
// run_post visits voice trees before root trees, each in reverse creation
// order, so voices finish mixing before the scope trees that play them.
// Done transitions requested during the sweep are applied afterwards and
// finished trees are released.
func (d *Dispatcher) Run(t *Tick) {
	t.d = d
	d.sweeping = true
	for i := 0; i < len(d.roots); i++ {
		d.runPre(d.roots[i], t)
	}
	for _, kind := range []TreeKind{VoiceTree, RootTree} {
		for i := len(d.roots) - 1; i >= 0; i-- {
			if d.roots[i].kind == kind {
				d.runPost(d.roots[i], t)
			}
		}
	}
	d.sweeping = false
	d.flush()
	d.Collect()
}

func (d *Dispatcher) runPre(root *Recall, t *Tick) {
	for _, level := range d.collectLevels(root) {
		d.scratch = d.scratch[:0]
		for _, r := range level {
			if !d.enter(r) {
				continue
			}
			if d.workers > 1 && r.Level == LevelAudioSignal {
				d.scratch = append(d.scratch, r)
				continue
			}
			if err := d.pre(r, t); err != nil {
				d.fail(r, err)
			}
		}
		if len(d.scratch) > 0 {
			d.preParallel(d.scratch, t)
		}
		for _, r := range level {
			if !d.enter(r) {
				continue
			}
			if p, ok := r.proc.(InterRunner); ok {
				if err := p.RunInter(r, t); err != nil {
					d.fail(r, fmt.Errorf("run_inter: %w", err))
				}
			}
		}
	}
}

func (d *Dispatcher) preParallel(nodes []*Recall, t *Tick) {
	if cap(d.errs) < len(nodes) {
		d.errs = make([]error, len(nodes))
	}
	errs := d.errs[:len(nodes)]
	var g errgroup.Group
	g.SetLimit(d.workers)
	for i, r := range nodes {
		i, r := i, r
		g.Go(func() error {
			errs[i] = d.pre(r, t)
			return nil
		})
	}
	g.Wait()
	for i, err := range errs {
		if err != nil {
			d.fail(nodes[i], err)
		}
		errs[i] = nil
	}
}

func (d *Dispatcher) pre(r *Recall, t *Tick) error {
	if !r.initialized {
		r.initialized = true
		r.state = Running
		if p, ok := r.proc.(Initer); ok {
			if err := p.RunInitPre(r, t); err != nil {
				return fmt.Errorf("run_init_pre: %w", err)
			}
		}
	}
	if r.Container == nil && r.Level == LevelAudioSignal {
		if s, ok := d.graph.Signal(r.Signal); ok {
			s.Clear()
		}
	}
	if p, ok := r.proc.(PreRunner); ok {
		if err := p.RunPre(r, t); err != nil {
			return fmt.Errorf("run_pre: %w", err)
		}
	}
	return nil
}

func (d *Dispatcher) runPost(root *Recall, t *Tick) {
	levels := d.collectLevels(root)
	for i := len(levels) - 1; i >= 0; i-- {
		for _, r := range levels[i] {
			if !d.enter(r) {
				continue
			}
			if p, ok := r.proc.(PostRunner); ok {
				if err := p.RunPost(r, t); err != nil {
					d.fail(r, fmt.Errorf("run_post: %w", err))
				}
			}
		}
	}
}

// collectLevels groups the live nodes of a tree by depth. The returned slices
// are reused by the next call.
func (d *Dispatcher) collectLevels(root *Recall) [][]*Recall {
	for i := range d.levels {
		d.levels[i] = d.levels[i][:0]
	}
	n := 0
	root.walk(func(r *Recall) {
		if r.state.Finished() {
			return
		}
		for len(d.levels) <= r.depth {
			d.levels = append(d.levels, nil)
		}
		d.levels[r.depth] = append(d.levels[r.depth], r)
		if r.depth >= n {
			n = r.depth + 1
		}
	})
	return d.levels[:n]
}

// enter reports whether r may run its next phase. Recalls whose id was
// invalidated or whose entities went away are cancelled here.
func (d *Dispatcher) enter(r *Recall) bool {
	if r.state.Finished() {
		return false
	}
	if r.ID != nil && r.ID.Cancelled() {
		r.Cancel()
		return false
	}
	if err := d.validate(r); err != nil {
		d.logger.Printf("recall: cancel %v: %v", r, err)
		r.Cancel()
		return false
	}
	return true
}

func (d *Dispatcher) validate(r *Recall) error {
	if !r.Audio.IsZero() {
		if _, ok := d.graph.Audio(r.Audio); !ok {
			return fmt.Errorf("audio %v removed: %w", r.Audio, ErrStaleReference)
		}
	}
	if !r.Channel.IsZero() {
		c, ok := d.graph.Channel(r.Channel)
		if !ok {
			return fmt.Errorf("channel %v removed: %w", r.Channel, ErrStaleReference)
		}
		if r.Level == LevelChannelRun && c.Recycling != r.Recycling {
			return fmt.Errorf("channel %v now uses recycling %v, not %v: %w", r.Channel, c.Recycling, r.Recycling, ErrStaleReference)
		}
	}
	if r.Level >= LevelRecycling {
		if _, ok := d.graph.Recycling(r.Recycling); !ok {
			return fmt.Errorf("recycling %v removed: %w", r.Recycling, ErrStaleReference)
		}
	}
	if r.Level == LevelAudioSignal {
		if _, ok := d.graph.Signal(r.Signal); !ok {
			return fmt.Errorf("signal %v removed: %w", r.Signal, ErrStaleReference)
		}
	}
	return nil
}

// fail cancels a recall whose hook returned an error. Siblings keep running.
func (d *Dispatcher) fail(r *Recall, err error) {
	d.logger.Printf("recall: %v: %v", r, err)
	r.Cancel()
}

func (d *Dispatcher) deferDone(r *Recall) {
	d.mu.Lock()
	d.pending = append(d.pending, r)
	d.mu.Unlock()
}

// flush applies the done transitions requested during the sweep, deepest
// recalls first.
func (d *Dispatcher) flush() {
	sort.SliceStable(d.pending, func(i, j int) bool {
		return d.pending[i].depth > d.pending[j].depth
	})
	for _, r := range d.pending {
		r.finish(Done)
	}
	d.pending = d.pending[:0]
}

// Collect releases every finished tree together with its context.
func (d *Dispatcher) Collect() {
	var finished []*Recall
	for _, r := range d.roots {
		if r.state.Finished() {
			finished = append(finished, r)
		}
	}
	for _, r := range finished {
		if !r.ID.Context.Released() {
			d.Invalidate(r.ID.Context)
		}
	}
}

// Invalidate cancels everything running for ctx and its child contexts,
// removes their signals and releases the contexts.
func (d *Dispatcher) Invalidate(ctx *audio.RecyclingContext) {
	for _, child := range d.registry.Children(ctx) {
		d.Invalidate(child)
	}
	id := ctx.RecallID()
	id.Cancel()
	if root := d.rootOf(ctx); root != nil {
		root.Cancel()
		d.drop(root)
	}
	d.graph.RemoveRunSignals(id)
	d.registry.Release(ctx)
}

func (d *Dispatcher) rootOf(ctx *audio.RecyclingContext) *Recall {
	for _, r := range d.roots {
		if r.ID.Context == ctx {
			return r
		}
	}
	return nil
}

func (d *Dispatcher) drop(root *Recall) {
	for i, r := range d.roots {
		if r == root {
			d.roots = append(d.roots[:i], d.roots[i+1:]...)
			break
		}
	}
	root.walk(d.unindex)
}

func (d *Dispatcher) index(r *Recall) error {
	if r.ID != nil {
		key := r.key()
		if other, ok := d.instances[key]; ok && !other.state.Finished() {
			return fmt.Errorf("%v for %v: %w", r, r.ID, audio.ErrDuplicateRecallInstance)
		}
		d.instances[key] = r
	}
	if !r.Channel.IsZero() {
		d.byChannel[r.Channel] = append(d.byChannel[r.Channel], r)
	}
	return nil
}

func (d *Dispatcher) unindex(r *Recall) {
	if r.ID != nil {
		if d.instances[r.key()] == r {
			delete(d.instances, r.key())
		}
	}
	if r.Channel.IsZero() {
		return
	}
	nodes := d.byChannel[r.Channel]
	for i, n := range nodes {
		if n == r {
			nodes = append(nodes[:i], nodes[i+1:]...)
			break
		}
	}
	if len(nodes) == 0 {
		delete(d.byChannel, r.Channel)
	} else {
		d.byChannel[r.Channel] = nodes
	}
}

func (r *Recall) key() instanceKey {
	k := instanceKey{
		serial:    r.ID.Serial(),
		level:     r.Level,
		container: r.Container,
		audio:     r.Audio,
		channel:   r.Channel,
		recycling: r.Recycling,
		signal:    r.Signal,
	}
	// Channel run recalls are re-pointed when their channel's recycling
	// changes, so the recycling is not part of their identity.
	if r.Level <= LevelChannelRun {
		k.recycling = audio.RecyclingID{}
	}
	return k
}
