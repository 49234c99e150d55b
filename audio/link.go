package audio

import "fmt"

// SetLink connects an output channel with an input channel of another audio.
// The input gives up its own recycling and shares the output's. Passing a
// zero link removes any existing link, giving an input a fresh recycling.
// On error neither channel is modified.
func (g *Graph) SetLink(ch, link ChannelID) error {
	c, ok := g.channels.get(ch)
	if !ok {
		return &LinkError{Channel: ch, Link: link, Err: ErrStaleHandle}
	}
	if link.IsZero() {
		if !c.Link.IsZero() {
			g.unlink(ch)
		}
		return nil
	}
	l, ok := g.channels.get(link)
	if !ok {
		return &LinkError{Channel: ch, Link: link, Err: ErrStaleHandle}
	}
	if c.Type == l.Type {
		return &LinkError{Channel: ch, Link: link, Err: ErrIncompatibleType}
	}
	if c.Link == link {
		return nil
	}
	out, in := ch, link
	if c.Type == Input {
		out, in = link, ch
	}
	if g.wouldCycle(out, in) {
		return &LinkError{Channel: ch, Link: link, Err: ErrWouldCreateCycle}
	}

	if o, _ := g.channels.get(out); !o.Link.IsZero() {
		g.unlink(out)
	}
	if i, _ := g.channels.get(in); !i.Link.IsZero() {
		g.unlink(in)
	}
	o, _ := g.channels.get(out)
	i, _ := g.channels.get(in)
	o.Link, i.Link = in, out
	g.setRecycling(in, o.Recycling, false, true)
	return nil
}

// wouldCycle reports whether linking out -> in lets the signal of out flow
// back into out. Mixing is per line, so only the channels downstream of in
// are followed.
func (g *Graph) wouldCycle(out, in ChannelID) bool {
	seen := make(map[ChannelID]bool)
	for cur, ok := in, true; ok && !seen[cur]; cur, ok = g.MixTarget(cur) {
		if cur == out {
			return true
		}
		seen[cur] = true
	}
	return false
}

func (g *Graph) unlink(ch ChannelID) {
	c, _ := g.channels.get(ch)
	partner := c.Link
	c.Link = ChannelID{}
	p, ok := g.channels.get(partner)
	if ok {
		p.Link = ChannelID{}
	}
	in := ch
	if c.Type == Output {
		if !ok {
			return
		}
		in = partner
	}
	fresh := g.newRecycling(in)
	g.setRecycling(in, fresh, true, true)
}

// SetRecycling replaces the recycling of ch with first. Channels in this
// graph hold a single recycling, so last must be zero or equal to first.
// With replaceAll every channel sharing ch's current recycling is re-pointed
// too. emitSignals controls whether observers are told, which re-points
// recall nodes already running below the channel.
func (g *Graph) SetRecycling(ch ChannelID, first, last RecyclingID, emitSignals, replaceAll bool) error {
	c, ok := g.channels.get(ch)
	if !ok {
		return fmt.Errorf("set recycling of %v: %w", ch, ErrStaleHandle)
	}
	if _, ok := g.recyclings.get(first); !ok {
		return fmt.Errorf("set recycling of %v to %v: %w", ch, first, ErrStaleHandle)
	}
	if !last.IsZero() && last != first {
		return fmt.Errorf("set recycling of %v to %v..%v: %w", ch, first, last, ErrOutOfRange)
	}
	old := c.Recycling
	if old == first {
		return nil
	}
	targets := []ChannelID{ch}
	if replaceAll {
		g.channels.each(func(id ChannelID, other *Channel) {
			if id != ch && other.Recycling == old {
				targets = append(targets, id)
			}
		})
	}
	for _, id := range targets {
		r, _ := g.recyclings.get(first)
		g.setRecycling(id, first, r.Channel == id, emitSignals)
	}
	// The owner may have moved before the channels sharing its recycling.
	if _, ok := g.recyclings.get(old); ok && !g.recyclingInUse(old) {
		g.destroyRecycling(old)
	}
	return nil
}

// setRecycling re-points ch and frees the previous recycling if ch owned it
// and nobody else uses it anymore.
func (g *Graph) setRecycling(ch ChannelID, rec RecyclingID, owns, emit bool) {
	c, _ := g.channels.get(ch)
	old, ownedOld := c.Recycling, c.OwnsRecycling
	c.Recycling, c.OwnsRecycling = rec, owns
	if emit {
		for _, o := range g.observers {
			o.RecyclingChanged(ch, old, rec)
		}
	}
	if !ownedOld || g.recyclingInUse(old) {
		return
	}
	g.destroyRecycling(old)
}

func (g *Graph) recyclingInUse(id RecyclingID) bool {
	used := false
	g.channels.each(func(_ ChannelID, c *Channel) {
		if c.Recycling == id {
			used = true
		}
	})
	return used
}
