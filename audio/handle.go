package audio

import "fmt"

// Handle addresses an entity stored in an arena. A handle stays valid until the
// entity is removed; after that, lookups through it fail even if the slot has
// been reused, because the generation no longer matches.
type Handle[T any] struct {
	index uint32
	gen   uint32
}

type (
	AudioID     = Handle[Audio]
	ChannelID   = Handle[Channel]
	RecyclingID = Handle[Recycling]
	SignalID    = Handle[AudioSignal]
)

// IsZero reports whether h refers to nothing.
func (h Handle[T]) IsZero() bool { return h.gen == 0 }

func (h Handle[T]) String() string {
	if h.IsZero() {
		return "nil"
	}
	return fmt.Sprintf("%d.%d", h.index, h.gen)
}

type slot[T any] struct {
	gen uint32
	val *T
}

// arena is a slot map. Generations start at 1 so the zero Handle never
// resolves.
type arena[T any] struct {
	slots []slot[T]
	free  []uint32
	n     int
}

func (a *arena[T]) insert(v *T) Handle[T] {
	a.n++
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		s := &a.slots[idx]
		s.gen++
		s.val = v
		return Handle[T]{index: idx, gen: s.gen}
	}
	a.slots = append(a.slots, slot[T]{gen: 1, val: v})
	return Handle[T]{index: uint32(len(a.slots) - 1), gen: 1}
}

func (a *arena[T]) get(h Handle[T]) (*T, bool) {
	if h.IsZero() || int(h.index) >= len(a.slots) {
		return nil, false
	}
	s := a.slots[h.index]
	if s.gen != h.gen || s.val == nil {
		return nil, false
	}
	return s.val, true
}

func (a *arena[T]) remove(h Handle[T]) bool {
	if _, ok := a.get(h); !ok {
		return false
	}
	a.slots[h.index].val = nil
	a.free = append(a.free, h.index)
	a.n--
	return true
}

func (a *arena[T]) len() int { return a.n }

// each calls f for every live entity in slot order.
func (a *arena[T]) each(f func(Handle[T], *T)) {
	for i, s := range a.slots {
		if s.val != nil {
			f(Handle[T]{index: uint32(i), gen: s.gen}, s.val)
		}
	}
}
