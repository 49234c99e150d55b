package audio

// Note is a notation record. X0 and X1 are tact positions, Y selects the input
// pad the note plays on.
type Note struct {
	X0, X1   uint64
	Y        int
	BaseNote int
	Velocity int
}

// SetPattern replaces the step pattern of a channel. A nil pattern clears it.
func (g *Graph) SetPattern(ch ChannelID, steps []bool) error {
	c, ok := g.channels.get(ch)
	if !ok {
		return ErrStaleHandle
	}
	c.Pattern = append([]bool(nil), steps...)
	return nil
}

// SetNotation replaces the notes of an audio.
func (g *Graph) SetNotation(id AudioID, notes []Note) error {
	a, ok := g.audios.get(id)
	if !ok {
		return ErrStaleHandle
	}
	a.Notation = append([]Note(nil), notes...)
	return nil
}
