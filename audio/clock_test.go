package audio

import (
	"errors"
	"math"
	"testing"
)

// collectAttacks ticks c for n buffers and returns the absolute frame of every
// tact, indexed by tact.
func collectAttacks(c *Clock, n int) []uint64 {
	bs := uint64(c.Timing().BufferSize)
	var frames []uint64
	for b := uint64(0); b < uint64(n); b++ {
		for _, a := range c.Tick(int(bs)) {
			if a.Tact != uint64(len(frames)) {
				return frames
			}
			frames = append(frames, b*bs+uint64(a.Offset))
		}
	}
	return frames
}

func TestClockNoDrift(t *testing.T) {
	c, err := NewClock(Timing{BPM: 120, DelayFactor: 4, Samplerate: 44100, BufferSize: 256})
	if err != nil {
		t.Fatal(err)
	}
	if want, got := 5512.5, c.Timing().TactFrames(); want != got {
		t.Fatalf("expected %v frames per tact, got %v", want, got)
	}

	frames := collectAttacks(c, 5000)
	if want, got := 233, len(frames); want != got {
		t.Fatalf("expected %d tacts, got %d", want, got)
	}
	for k, got := range frames {
		want := uint64(math.Round(float64(k) * 5512.5))
		if want != got {
			t.Errorf("tact %d: expected frame %d, got %d", k, want, got)
		}
	}
	if want, got := uint64(5000), c.Buffers(); want != got {
		t.Errorf("expected %d buffers, got %d", want, got)
	}
	if want, got := uint64(233), c.NoteOffset(); want != got {
		t.Errorf("expected note offset %d, got %d", want, got)
	}
}

func TestClockFourBeats(t *testing.T) {
	c, err := NewClock(Timing{BPM: 120, DelayFactor: 1, Samplerate: 44100, BufferSize: 1024})
	if err != nil {
		t.Fatal(err)
	}
	frames := collectAttacks(c, 100)
	if len(frames) < 5 {
		t.Fatalf("expected at least 5 tacts, got %d", len(frames))
	}
	if got := frames[4]; got+1024 < 88200 || got > 88200+1024 {
		t.Errorf("expected tact 4 near frame 88200, got %d", got)
	}
	if want, got := 0, c.AttackAt(0); want != got {
		t.Errorf("expected first attack at offset %d, got %d", want, got)
	}
}

func TestClockSetTiming(t *testing.T) {
	timing := Timing{BPM: 120, DelayFactor: 4, Samplerate: 44100, BufferSize: 256}
	c, _ := NewClock(timing)
	collectAttacks(c, 100)
	offset := c.NoteOffset()

	tests := []struct {
		name string
		set  func() error
	}{
		{"zero bpm", func() error { return c.SetBPM(0) }},
		{"negative delay factor", func() error { return c.SetDelayFactor(-1) }},
		{"nan bpm", func() error { return c.SetBPM(math.NaN()) }},
		{"zero buffer size", func() error {
			bad := timing
			bad.BufferSize = 0
			return c.SetTiming(bad)
		}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if err := test.set(); !errors.Is(err, ErrInvalidTiming) {
				t.Errorf("expected ErrInvalidTiming, got %v", err)
			}
			if want, got := timing, c.Timing(); want != got {
				t.Errorf("expected timing to stay %v, got %v", want, got)
			}
		})
	}

	if err := c.SetBPM(60); err != nil {
		t.Fatal(err)
	}
	if want, got := offset, c.NoteOffset(); want != got {
		t.Errorf("expected note offset to survive a timing change, got %d", got)
	}
	if want, got := 11025.0, c.Timing().TactFrames(); want != got {
		t.Errorf("expected %v frames per tact, got %v", want, got)
	}
}

func TestClockPartialTicks(t *testing.T) {
	c, _ := NewClock(Timing{BPM: 120, DelayFactor: 4, Samplerate: 44100, BufferSize: 64})
	var frames []uint64
	for n := 0; n < 1379; n++ {
		for _, a := range c.Tick(32) {
			frames = append(frames, uint64(n)*32+uint64(a.Offset))
		}
	}
	if want, got := uint64(44128), c.Frame(); want != got {
		t.Fatalf("expected %d frames, got %d", want, got)
	}
	if want, got := 9, len(frames); want != got {
		t.Fatalf("expected %d tacts, got %d", want, got)
	}
	for k, got := range frames {
		want := uint64(math.Round(float64(k) * 5512.5))
		if want != got {
			t.Errorf("tact %d: expected frame %d, got %d", k, want, got)
		}
	}
}

// tickUntilTact ticks c in buffers of bs frames, starting at buffer b, until
// a tact begins and returns its index and absolute frame.
func tickUntilTact(t *testing.T, c *Clock, b, bs int) (uint64, uint64) {
	t.Helper()
	for ; b < 100000; b++ {
		if attacks := c.Tick(bs); len(attacks) > 0 {
			return attacks[0].Tact, uint64(b*bs + attacks[0].Offset)
		}
	}
	t.Fatal("no tact began")
	return 0, 0
}

func TestClockTempoChange(t *testing.T) {
	// At 120 bpm tact 1 begins at frame 5513, in buffer 86.
	tests := []struct {
		name   string
		bpm    float64
		before int // buffers ticked before the change
		// tact anchorTact keeps its start at frame anchor; tact is the next
		// one to begin
		anchorTact uint64
		anchor     uint64
		tact       uint64
	}{
		{"slower", 119, 3, 0, 0, 1},
		{"faster", 240, 3, 0, 0, 1},
		{"faster after tact 1", 240, 100, 1, 5513, 2},
		{"next tact already due", 960, 100, 2, 6400, 2},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c, _ := NewClock(Timing{BPM: 120, DelayFactor: 4, Samplerate: 44100, BufferSize: 64})
			for b := 0; b < test.before; b++ {
				c.Tick(64)
			}
			if err := c.SetBPM(test.bpm); err != nil {
				t.Fatal(err)
			}
			tf := c.Timing().TactFrames()
			expect := func(k uint64) uint64 {
				return test.anchor + uint64(math.Round(float64(k-test.anchorTact)*tf))
			}
			tact, frame := tickUntilTact(t, c, test.before, 64)
			if tact != test.tact || frame != expect(tact) {
				t.Errorf("expected tact %d at frame %d, got tact %d at frame %d",
					test.tact, expect(test.tact), tact, frame)
			}
			tact, frame = tickUntilTact(t, c, int(frame/64)+1, 64)
			if tact != test.tact+1 || frame != expect(tact) {
				t.Errorf("expected tact %d at frame %d, got tact %d at frame %d",
					test.tact+1, expect(test.tact+1), tact, frame)
			}
		})
	}
}

func TestFeedFrameCount(t *testing.T) {
	timing := Timing{BPM: 120, DelayFactor: 4, Samplerate: 44100, BufferSize: 256}
	if want, got := 0.125, timing.AbsoluteDelay(); want != got {
		t.Errorf("expected absolute delay %v, got %v", want, got)
	}
	if want, got := 705600, FeedFrameCount(44100, 0.125, 2, 4); want != got {
		t.Errorf("expected %d frames, got %d", want, got)
	}
}
