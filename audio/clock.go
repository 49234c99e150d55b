package audio

import (
	"fmt"
	"math"
)

// Slots is the number of entries of the attack/delay table. The table covers
// one cycle of Slots tacts and is rebuilt from absolute tact positions at the
// start of every cycle, so rounding never accumulates.
const Slots = 32

// Timing is the constant part of the clock configuration.
type Timing struct {
	BPM         float64
	DelayFactor float64
	Samplerate  int
	BufferSize  int
}

// Validate rejects configurations that would corrupt the attack table.
func (t Timing) Validate() error {
	switch {
	case !(t.BPM > 0) || math.IsInf(t.BPM, 0):
		return fmt.Errorf("bpm %v: %w", t.BPM, ErrInvalidTiming)
	case !(t.DelayFactor > 0) || math.IsInf(t.DelayFactor, 0):
		return fmt.Errorf("delay factor %v: %w", t.DelayFactor, ErrInvalidTiming)
	case t.Samplerate <= 0:
		return fmt.Errorf("samplerate %d: %w", t.Samplerate, ErrInvalidTiming)
	case t.BufferSize <= 0:
		return fmt.Errorf("buffer size %d: %w", t.BufferSize, ErrInvalidTiming)
	}
	return nil
}

// AbsoluteDelay returns the length of one tact in seconds.
func (t Timing) AbsoluteDelay() float64 {
	return 60.0 / t.BPM / t.DelayFactor
}

// TactFrames returns the length of one tact in frames.
func (t Timing) TactFrames() float64 {
	return t.AbsoluteDelay() * float64(t.Samplerate)
}

// FeedFrameCount returns how many frames a note spanning x0..x1 renders from
// a template signal.
func FeedFrameCount(samplerate int, absoluteDelay float64, x0, x1 uint64) int {
	return int((float64(samplerate) / absoluteDelay) * float64(x1-x0))
}

// Attack is a tact starting inside the current buffer.
type Attack struct {
	Tact   uint64 // index of the tact since the clock started
	Offset int    // frame offset of the tact inside the buffer
}

// Clock counts tacts against the frames rendered so far. It is driven once
// per tick and must not allocate while doing so.
//
// Tacts are placed on absolute frame positions: tact k begins at
// origin + round((k-originTact) * TactFrames()). A timing change moves the
// origin to the last tact that began, so the tact in progress keeps its
// start and the next one follows after one tact of the new length.
type Clock struct {
	timing Timing

	origin     uint64
	originTact uint64
	frame      uint64

	cycle        uint64
	attack       [Slots]int
	delay        [Slots]uint64
	ticCounter   int
	delayCounter uint64
	noteOffset   uint64
	buffers      uint64

	attacks []Attack
}

func NewClock(t Timing) (*Clock, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	c := &Clock{timing: t}
	c.rebase(0, 0)
	return c, nil
}

func (c *Clock) Timing() Timing { return c.timing }

// SetTiming replaces the configuration. On error the previous table stays in
// effect. Tact numbering continues: the next tact begins one tact of the new
// length after the last one, or right away if that point has already passed.
func (c *Clock) SetTiming(t Timing) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if c.noteOffset == 0 {
		c.timing = t
		c.rebase(0, c.frame)
		return nil
	}
	last := c.noteOffset - 1
	pos := c.position(last)
	c.timing = t
	if pos+uint64(math.Round(t.TactFrames())) < c.frame {
		c.rebase(c.noteOffset, c.frame)
		return nil
	}
	c.rebase(last, pos)
	return nil
}

func (c *Clock) SetBPM(bpm float64) error {
	t := c.timing
	t.BPM = bpm
	return c.SetTiming(t)
}

func (c *Clock) SetDelayFactor(f float64) error {
	t := c.timing
	t.DelayFactor = f
	return c.SetTiming(t)
}

// rebase anchors tact k at frame pos and rebuilds the table for the cycle
// holding the next tact.
func (c *Clock) rebase(k, pos uint64) {
	c.origin, c.originTact = pos, k
	c.cycle = c.noteOffset / Slots
	c.ticCounter = int(c.noteOffset % Slots)
	if n := int(float64(c.timing.BufferSize)/c.timing.TactFrames()) + 2; cap(c.attacks) < n {
		c.attacks = make([]Attack, 0, n)
	}
	c.buildTable()
}

// position returns the absolute frame where tact k begins.
func (c *Clock) position(k uint64) uint64 {
	tf := c.timing.TactFrames()
	if k >= c.originTact {
		return c.origin + uint64(math.Round(float64(k-c.originTact)*tf))
	}
	d := uint64(math.Round(float64(c.originTact-k) * tf))
	if d > c.origin {
		return 0
	}
	return c.origin - d
}

// buildTable fills attack and delay for the current cycle. delay[i] is the
// number of buffers between the buffers holding tact i-1 and tact i.
func (c *Clock) buildTable() {
	bs := uint64(c.timing.BufferSize)
	base := c.cycle * Slots
	for i := 0; i < Slots; i++ {
		k := base + uint64(i)
		pos := c.position(k)
		c.attack[i] = int(pos % bs)
		if k == 0 {
			c.delay[i] = 0
			continue
		}
		c.delay[i] = pos/bs - c.position(k-1)/bs
	}
}

// Tick advances the clock by frames frames and returns the tacts beginning
// inside them, with offsets relative to the first frame. Calls may cover
// less than a full buffer. The returned slice is reused by the next call.
func (c *Clock) Tick(frames int) []Attack {
	c.attacks = c.attacks[:0]
	end := c.frame + uint64(max(frames, 0))
	for {
		pos := c.position(c.noteOffset)
		if pos >= end {
			break
		}
		if len(c.attacks) < cap(c.attacks) {
			c.attacks = append(c.attacks, Attack{Tact: c.noteOffset, Offset: int(pos - c.frame)})
		}
		c.noteOffset++
		c.delayCounter = 0
		c.ticCounter++
		if c.ticCounter == Slots {
			c.ticCounter = 0
			c.cycle++
			c.buildTable()
		}
	}
	c.frame = end
	c.delayCounter++
	c.buffers++
	return c.attacks
}

// NoteOffset returns the index of the next tact to begin.
func (c *Clock) NoteOffset() uint64 { return c.noteOffset }

// TicCounter returns the table slot of the next tact.
func (c *Clock) TicCounter() int { return c.ticCounter }

// DelayCounter returns the number of ticks since the last tact began.
func (c *Clock) DelayCounter() uint64 { return c.delayCounter }

// Buffers returns the number of ticks seen.
func (c *Clock) Buffers() uint64 { return c.buffers }

// Frame returns the number of frames counted so far.
func (c *Clock) Frame() uint64 { return c.frame }

func (c *Clock) AttackAt(i int) int { return c.attack[i%Slots] }

func (c *Clock) DelayAt(i int) uint64 { return c.delay[i%Slots] }
