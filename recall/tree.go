package recall

import (
	"errors"
	"fmt"

	"github.com/mrdg/recall/audio"
)

// ErrNothingToRun is returned when a voice would contain no recall that ever
// finishes, e.g. a pad without a feed.
var ErrNothingToRun = errors.New("nothing to run")

// AddContainer attaches an effect to an audio. Channels that are already
// mapped get their channel recall right away, premapped ones on first use.
// Running trees over the audio pick up the new recalls immediately.
func (d *Dispatcher) AddContainer(id audio.AudioID, e *Effect) (*Container, error) {
	a, ok := d.graph.Audio(id)
	if !ok {
		return nil, fmt.Errorf("add %s to %v: %w", e.Name, id, audio.ErrStaleHandle)
	}
	c, err := newContainer(e, id)
	if err != nil {
		return nil, err
	}
	for _, typ := range []audio.ChannelType{audio.Output, audio.Input} {
		for _, ch := range a.Channels(typ) {
			chn, _ := d.graph.Channel(ch)
			if chn.Flags&audio.ChannelMappedRecall == 0 {
				continue
			}
			if err := c.mapChannel(ch, typ); err != nil {
				return nil, err
			}
		}
	}
	d.containers[id] = append(d.containers[id], c)
	for _, root := range d.roots {
		if root.state.Finished() {
			continue
		}
		var nodes []*Recall
		root.walk(func(r *Recall) {
			if r.Container == nil && !r.state.Finished() && r.Audio == id {
				nodes = append(nodes, r)
			}
		})
		for _, n := range nodes {
			d.attach(n, c)
		}
	}
	return c, nil
}

// RemoveContainer detaches a container and cancels every recall it runs.
func (d *Dispatcher) RemoveContainer(c *Container) {
	if c.removed {
		return
	}
	c.removed = true
	list := d.containers[c.Audio]
	for i, other := range list {
		if other == c {
			d.containers[c.Audio] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(d.containers[c.Audio]) == 0 {
		delete(d.containers, c.Audio)
	}
	for _, root := range d.Roots() {
		root.walk(func(r *Recall) {
			if r.Container == c {
				r.Cancel()
			}
		})
	}
	c.audio.finish(Cancelled)
	for ch, r := range c.channels {
		r.finish(Cancelled)
		delete(c.channels, ch)
	}
}

// Containers returns the containers attached to an audio.
func (d *Dispatcher) Containers(id audio.AudioID) []*Container {
	return d.containers[id]
}

// Start runs the scope on an audio: it creates the root context over the
// audio's outputs and the persistent tree for it. Starting a running scope
// returns the running tree.
func (d *Dispatcher) Start(id audio.AudioID, scope audio.Scope) (*Recall, error) {
	a, ok := d.graph.Audio(id)
	if !ok {
		return nil, fmt.Errorf("start %v on %v: %w", scope, id, audio.ErrStaleHandle)
	}
	ctx, err := d.registry.Root(d.graph, id, scope)
	if err != nil {
		return nil, err
	}
	if root := d.rootOf(ctx); root != nil {
		if !root.state.Finished() {
			return root, nil
		}
		d.Invalidate(ctx)
		if ctx, err = d.registry.Root(d.graph, id, scope); err != nil {
			return nil, err
		}
	}
	root, err := d.build(ctx, RootTree, id, a.Output)
	if err != nil {
		d.Invalidate(ctx)
		return nil, err
	}
	d.roots = append(d.roots, root)
	return root, nil
}

// Stop cancels the scope on an audio together with every voice it started.
func (d *Dispatcher) Stop(id audio.AudioID, scope audio.Scope) {
	for _, ctx := range d.registry.Live() {
		if ctx.Parent != nil || ctx.Scope != scope {
			continue
		}
		if root := d.rootOf(ctx); root != nil && root.Audio == id {
			d.Invalidate(ctx)
		}
	}
}

// Spawn starts a voice on ch below parent. Every recycling on the voice path
// gets a run signal; the source signal carries the attack, length and notes
// of the voice.
func (d *Dispatcher) Spawn(parent *audio.RecyclingContext, ch audio.ChannelID, v Voice) (*Recall, error) {
	c, ok := d.graph.Channel(ch)
	if !ok {
		return nil, fmt.Errorf("spawn on %v: %w", ch, audio.ErrStaleHandle)
	}
	if parent.Released() {
		return nil, fmt.Errorf("spawn on %v below %v: %w", ch, parent, audio.ErrContextReleased)
	}
	ctx, err := d.registry.NewVoice(d.graph, ch, parent.Scope, parent)
	if err != nil {
		return nil, err
	}
	id := ctx.RecallID()
	for i, rec := range ctx.Recyclings {
		sid, err := d.graph.AddRunSignal(rec, id)
		if err != nil {
			d.Invalidate(ctx)
			return nil, err
		}
		if i == 0 {
			s, _ := d.graph.Signal(sid)
			s.Attack = v.Attack
			s.Length = v.Length
			s.Notes = v.Notes
		}
	}
	root, err := d.build(ctx, VoiceTree, c.Audio, []audio.ChannelID{ch})
	if err != nil {
		d.Invalidate(ctx)
		return nil, err
	}
	if !root.finite {
		root.Cancel()
		root.walk(d.unindex)
		d.Invalidate(ctx)
		return nil, fmt.Errorf("spawn on %v: %w", ch, ErrNothingToRun)
	}
	d.roots = append(d.roots, root)
	return root, nil
}

// build creates the tree for ctx: an audio run node for the starting audio,
// then one channel run node per channel from each source down its mix path.
// Each channel node is a child of the channel its audio flows into, so the
// sources are the deepest nodes.
func (d *Dispatcher) build(ctx *audio.RecyclingContext, kind TreeKind, id audio.AudioID, sources []audio.ChannelID) (*Recall, error) {
	top := &Recall{
		Level: LevelAudioRun,
		ID:    ctx.RecallID(),
		Audio: id,
		kind:  kind,
		state: Mapped,
		d:     d,
	}
	if err := d.index(top); err != nil {
		return nil, err
	}
	for _, c := range d.containers[id] {
		d.attach(top, c)
	}
	nodes := make(map[audio.ChannelID]*Recall)
	for _, src := range sources {
		if err := d.addChain(top, ctx, nodes, src); err != nil {
			top.Cancel()
			top.walk(d.unindex)
			return nil, err
		}
	}
	return top, nil
}

// addChain adds the channel run nodes for src and every channel it flows
// into that nodes does not hold yet.
func (d *Dispatcher) addChain(top *Recall, ctx *audio.RecyclingContext, nodes map[audio.ChannelID]*Recall, src audio.ChannelID) error {
	chain := d.chain(src)
	for j := len(chain) - 1; j >= 0; j-- {
		ch := chain[j]
		if _, ok := nodes[ch]; ok {
			continue
		}
		parent := top
		if j+1 < len(chain) {
			parent = nodes[chain[j+1]]
		}
		n, err := d.channelNode(parent, ctx, ch)
		if err != nil {
			return err
		}
		nodes[ch] = n
	}
	return nil
}

// grow adds the nodes for a channel that appeared on the audio of a running
// root tree.
func (d *Dispatcher) grow(root *Recall, src audio.ChannelID) error {
	ctx, err := d.registry.Root(d.graph, root.Audio, root.ID.Scope)
	if err != nil {
		return err
	}
	if ctx != root.ID.Context {
		return fmt.Errorf("grow %v: context moved to %v", root, ctx)
	}
	nodes := make(map[audio.ChannelID]*Recall)
	root.walk(func(r *Recall) {
		if r.Level == LevelChannelRun && r.Container == nil && !r.state.Finished() {
			nodes[r.Channel] = r
		}
	})
	return d.addChain(root, ctx, nodes, src)
}

// chain returns ch followed by every channel its audio flows into.
func (d *Dispatcher) chain(ch audio.ChannelID) []audio.ChannelID {
	var chain []audio.ChannelID
	seen := make(map[audio.ChannelID]bool)
	for cur, ok := ch, true; ok && !seen[cur]; cur, ok = d.graph.MixTarget(cur) {
		seen[cur] = true
		chain = append(chain, cur)
	}
	return chain
}

func (d *Dispatcher) channelNode(parent *Recall, ctx *audio.RecyclingContext, ch audio.ChannelID) (*Recall, error) {
	if err := d.ensureMapped(ch); err != nil {
		return nil, err
	}
	c, _ := d.graph.Channel(ch)
	n := &Recall{
		Level:     LevelChannelRun,
		ID:        ctx.RecallID(),
		Audio:     c.Audio,
		Channel:   ch,
		Recycling: c.Recycling,
		state:     Mapped,
	}
	parent.add(n)
	if err := d.index(n); err != nil {
		return nil, err
	}
	for _, cont := range d.containers[c.Audio] {
		d.attach(n, cont)
	}
	if !c.OwnsRecycling || d.registry.RecallID(c.Recycling, ctx, ctx.Scope) == nil {
		return n, nil
	}
	rn := &Recall{
		Level:     LevelRecycling,
		ID:        ctx.RecallID(),
		Audio:     c.Audio,
		Channel:   ch,
		Recycling: c.Recycling,
		state:     Mapped,
	}
	n.add(rn)
	if err := d.index(rn); err != nil {
		return nil, err
	}
	for _, cont := range d.containers[c.Audio] {
		d.attach(rn, cont)
	}
	sid, ok := d.graph.RunSignal(c.Recycling, ctx.RecallID())
	if !ok {
		return n, nil
	}
	sn := &Recall{
		Level:     LevelAudioSignal,
		ID:        ctx.RecallID(),
		Audio:     c.Audio,
		Channel:   ch,
		Recycling: c.Recycling,
		Signal:    sid,
		state:     Mapped,
	}
	rn.add(sn)
	if err := d.index(sn); err != nil {
		return nil, err
	}
	for _, cont := range d.containers[c.Audio] {
		d.attach(sn, cont)
	}
	return n, nil
}

// attach adds the recall of container c to the structural node n if the
// effect runs at n's level, in n's tree and scope, and on n's channel side.
func (d *Dispatcher) attach(n *Recall, c *Container) {
	e := c.Effect
	if c.removed || e.Trees&n.kind == 0 || !e.Ability.Has(n.ID.Scope) {
		return
	}
	ctor := e.constructor(n.Level)
	if ctor == nil {
		return
	}
	if n.Level != LevelAudioRun {
		ch, ok := d.graph.Channel(n.Channel)
		if !ok || !e.Side.has(ch.Type) {
			return
		}
	}
	r := &Recall{
		Level:     n.Level,
		ID:        n.ID,
		Container: c,
		Audio:     n.Audio,
		Channel:   n.Channel,
		Recycling: n.Recycling,
		Signal:    n.Signal,
		state:     Mapped,
	}
	if cr := c.channels[n.Channel]; cr != nil {
		r.ports = cr.ports
	}
	n.add(r)
	r.proc = ctor(r)
	if r.proc == nil {
		n.children = n.children[:len(n.children)-1]
		return
	}
	if err := d.index(r); err != nil {
		n.children = n.children[:len(n.children)-1]
		d.logger.Printf("recall: %v", err)
		return
	}
	if f, ok := r.proc.(Finisher); ok && f.Finishes() {
		r.markFinite()
	}
}

// MapChannel maps the channel recalls of ch if it is still premapped.
func (d *Dispatcher) MapChannel(ch audio.ChannelID) error {
	return d.ensureMapped(ch)
}

// ensureMapped maps the channel recalls of a premapped channel.
func (d *Dispatcher) ensureMapped(ch audio.ChannelID) error {
	c, ok := d.graph.Channel(ch)
	if !ok {
		return fmt.Errorf("map %v: %w", ch, audio.ErrStaleHandle)
	}
	if c.Flags&audio.ChannelMappedRecall != 0 {
		return nil
	}
	for _, cont := range d.containers[c.Audio] {
		if err := cont.mapChannel(ch, c.Type); err != nil {
			return err
		}
	}
	c.Flags = c.Flags&^audio.ChannelPremapped | audio.ChannelMappedRecall
	return nil
}

// ChannelAdded grows the running root trees of the channel's audio when an
// output appears. Other new channels stay premapped until first used.
func (d *Dispatcher) ChannelAdded(ch audio.ChannelID) {
	c, ok := d.graph.Channel(ch)
	if !ok || c.Type != audio.Output {
		return
	}
	for _, root := range d.Roots() {
		if root.kind != RootTree || root.Audio != c.Audio || root.state.Finished() {
			continue
		}
		if err := d.grow(root, ch); err != nil {
			d.logger.Printf("recall: %v", err)
		}
	}
}

// ChannelRemoved cancels every recall bound to ch and drops its channel
// recalls.
func (d *Dispatcher) ChannelRemoved(ch audio.ChannelID) {
	for _, r := range append([]*Recall(nil), d.byChannel[ch]...) {
		r.Cancel()
	}
	for _, list := range d.containers {
		for _, c := range list {
			if r, ok := c.channels[ch]; ok {
				r.finish(Cancelled)
				delete(c.channels, ch)
			}
		}
	}
}

// RecyclingChanged re-points the channel run recalls of ch at the new
// recycling. A voice whose context path does not hold the new recycling lost
// the mix path it was spawned for and its channel run recalls are cancelled.
// Recalls bound to the old recycling are cancelled too: their signals no
// longer belong to the channel.
func (d *Dispatcher) RecyclingChanged(ch audio.ChannelID, old, new audio.RecyclingID) {
	for _, r := range append([]*Recall(nil), d.byChannel[ch]...) {
		if r.state.Finished() {
			continue
		}
		switch {
		case r.Level == LevelChannelRun && (r.kind == RootTree || r.ID.Context.Contains(new)):
			r.Recycling = new
		case r.Level == LevelChannelRun:
			d.logger.Printf("recall: cancel %v: mix path changed", r)
			r.Cancel()
		case r.Level >= LevelRecycling && r.Recycling == old:
			d.logger.Printf("recall: cancel %v: recycling replaced", r)
			r.Cancel()
		}
	}
}
