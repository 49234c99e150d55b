package audio

import "fmt"

// ResizeChannels changes the number of audio channels (lines) of every pad on
// both sides. Existing channels keep their handles; channels beyond the new
// bound are unlinked and destroyed; new channels are created premapped.
func (g *Graph) ResizeChannels(id AudioID, n int) error {
	a, ok := g.audios.get(id)
	if !ok {
		return fmt.Errorf("resize channels %v: %w", id, ErrStaleHandle)
	}
	if n < 0 {
		return fmt.Errorf("resize channels of %s to %d: %w", a.Name, n, ErrOutOfRange)
	}
	if n == a.AudioChannels {
		return nil
	}
	var added, doomed []ChannelID
	for _, typ := range []ChannelType{Output, Input} {
		old := a.Channels(typ)
		pads := a.Pads(typ)
		next := make([]ChannelID, 0, n*pads)
		for pad := 0; pad < pads; pad++ {
			for line := 0; line < n; line++ {
				if line < a.AudioChannels {
					next = append(next, old[pad*a.AudioChannels+line])
					continue
				}
				ch := g.newChannel(id, typ, line, pad)
				next = append(next, ch)
				added = append(added, ch)
			}
			for line := n; line < a.AudioChannels; line++ {
				doomed = append(doomed, old[pad*a.AudioChannels+line])
			}
		}
		if typ == Output {
			a.Output = next
		} else {
			a.Input = next
		}
	}
	a.AudioChannels = n
	g.relink(a, Output)
	g.relink(a, Input)
	g.destroyChannels(doomed)
	g.announceAdded(added)
	return nil
}

// ResizePads changes the pad count of one side of an audio.
func (g *Graph) ResizePads(id AudioID, typ ChannelType, n int) error {
	a, ok := g.audios.get(id)
	if !ok {
		return fmt.Errorf("resize pads %v: %w", id, ErrStaleHandle)
	}
	if n < 0 {
		return fmt.Errorf("resize %s pads of %s to %d: %w", typ, a.Name, n, ErrOutOfRange)
	}
	pads := a.Pads(typ)
	if n == pads {
		return nil
	}
	old := a.Channels(typ)
	var added, doomed []ChannelID
	next := make([]ChannelID, 0, n*a.AudioChannels)
	if n < pads {
		next = append(next, old[:n*a.AudioChannels]...)
		doomed = append(doomed, old[n*a.AudioChannels:]...)
	} else {
		next = append(next, old...)
		for pad := pads; pad < n; pad++ {
			for line := 0; line < a.AudioChannels; line++ {
				ch := g.newChannel(id, typ, line, pad)
				next = append(next, ch)
				added = append(added, ch)
			}
		}
	}
	if typ == Output {
		a.Output, a.OutputPads = next, n
	} else {
		a.Input, a.InputPads = next, n
	}
	g.relink(a, typ)
	g.destroyChannels(doomed)
	g.announceAdded(added)
	return nil
}
