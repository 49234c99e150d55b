package audio

import "fmt"

// AudioSignal is one stream of audio frames inside a recycling. The template
// signal (RecallID == nil) holds the source waveform of its recycling, e.g. a
// loaded sample. Run signals are rendered per tick into Buffer; their stream
// is allocated once when the signal is created.
type AudioSignal struct {
	Recycling RecyclingID
	RecallID  *RecallID
	StreamFormat

	// Data is the template waveform, mono, one frame per sample.
	Data []float64
	// Buffer receives the frames of the current tick.
	Buffer []float64
	// Frame counts the frames rendered so far.
	Frame int
	// Length is the number of frames the signal renders before it is done;
	// zero means unbounded.
	Length int
	Notes  []Note
	// Attack is the offset inside the first buffer where rendering starts.
	Attack int
}

func newSignal(rec RecyclingID, id *RecallID, f StreamFormat) *AudioSignal {
	return &AudioSignal{
		Recycling:    rec,
		RecallID:     id,
		StreamFormat: f,
		Buffer:       make([]float64, f.BufferSize),
	}
}

// IsTemplate reports whether s is the template signal of its recycling.
func (s *AudioSignal) IsTemplate() bool { return s.RecallID == nil }

// Clear zeroes the current buffer.
func (s *AudioSignal) Clear() {
	for i := range s.Buffer {
		s.Buffer[i] = 0
	}
}

// Template returns the template signal of a recycling.
func (g *Graph) Template(rec RecyclingID) (*AudioSignal, error) {
	r, ok := g.recyclings.get(rec)
	if !ok || len(r.Signals) == 0 {
		return nil, fmt.Errorf("template of %v: %w", rec, ErrStaleHandle)
	}
	s, _ := g.signals.get(r.Signals[0])
	return s, nil
}

// SetTemplateData replaces the template waveform of a recycling.
func (g *Graph) SetTemplateData(rec RecyclingID, data []float64) error {
	s, err := g.Template(rec)
	if err != nil {
		return err
	}
	s.Data = data
	return nil
}

// AddRunSignal creates the run signal of id in rec. There is at most one live
// run signal per (RecallID, Recycling); a second one is a programming error.
func (g *Graph) AddRunSignal(rec RecyclingID, id *RecallID) (SignalID, error) {
	r, ok := g.recyclings.get(rec)
	if !ok {
		return SignalID{}, fmt.Errorf("add run signal to %v: %w", rec, ErrStaleHandle)
	}
	if id == nil || id.Context == nil || id.Context.released {
		return SignalID{}, fmt.Errorf("add run signal to %v: %w", rec, ErrContextReleased)
	}
	if !id.Context.Contains(rec) {
		return SignalID{}, fmt.Errorf("add run signal to %v for %v: %w", rec, id, ErrRecyclingNotInContext)
	}
	if s, ok := r.runs[id.serial]; ok {
		if _, live := g.signals.get(s); live {
			return SignalID{}, fmt.Errorf("add run signal to %v for %v: %w", rec, id, ErrDuplicateRecallInstance)
		}
	}
	s := g.signals.insert(newSignal(rec, id, g.stream))
	r.Signals = append(r.Signals, s)
	r.runs[id.serial] = s
	return s, nil
}

// RunSignal returns the live run signal of id in rec.
func (g *Graph) RunSignal(rec RecyclingID, id *RecallID) (SignalID, bool) {
	r, ok := g.recyclings.get(rec)
	if !ok || id == nil {
		return SignalID{}, false
	}
	s, ok := r.runs[id.serial]
	if !ok {
		return SignalID{}, false
	}
	_, live := g.signals.get(s)
	return s, live
}

// RunSignals calls f for every run signal in rec, in creation order.
func (g *Graph) RunSignals(rec RecyclingID, f func(SignalID, *AudioSignal)) {
	r, ok := g.recyclings.get(rec)
	if !ok {
		return
	}
	for _, id := range r.Signals[1:] {
		if s, ok := g.signals.get(id); ok {
			f(id, s)
		}
	}
}

// RemoveRunSignals destroys every signal rendered for id.
func (g *Graph) RemoveRunSignals(id *RecallID) {
	for _, rec := range id.Context.Recyclings {
		r, ok := g.recyclings.get(rec)
		if !ok {
			continue
		}
		s, ok := r.runs[id.serial]
		if !ok {
			continue
		}
		delete(r.runs, id.serial)
		g.signals.remove(s)
		for i, other := range r.Signals {
			if other == s {
				r.Signals = append(r.Signals[:i], r.Signals[i+1:]...)
				break
			}
		}
	}
}
