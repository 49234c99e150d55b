package main

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/mrdg/recall/audio"
)

// readNotation reads the notes of a Standard MIDI File. Positions are
// converted to tacts of tactsPerBeat per quarter note; keys are mapped to
// input pads counting up from baseKey.
func readNotation(file string, tactsPerBeat int, baseKey uint8) ([]audio.Note, error) {
	rd, err := smf.ReadFile(file)
	if err != nil {
		return nil, err
	}
	ticks, ok := rd.TimeFormat.(smf.MetricTicks)
	if !ok {
		return nil, fmt.Errorf("%s: unsupported time format %v", file, rd.TimeFormat)
	}
	ticksPerTact := float64(ticks.Resolution()) / float64(tactsPerBeat)

	type start struct {
		pos      uint64
		velocity uint8
	}
	var notes []audio.Note
	for _, track := range rd.Tracks {
		var (
			abs     uint64
			playing = make(map[uint8]start)
		)
		for _, ev := range track {
			abs += uint64(ev.Delta)
			msg := midi.Message(ev.Message)
			var channel, key, velocity uint8
			switch {
			case msg.GetNoteStart(&channel, &key, &velocity):
				playing[key] = start{pos: abs, velocity: velocity}
			case msg.GetNoteEnd(&channel, &key):
				s, ok := playing[key]
				if !ok || key < baseKey {
					continue
				}
				delete(playing, key)
				x0 := uint64(float64(s.pos)/ticksPerTact + 0.5)
				x1 := uint64(float64(abs)/ticksPerTact + 0.5)
				if x1 <= x0 {
					x1 = x0 + 1
				}
				notes = append(notes, audio.Note{
					X0:       x0,
					X1:       x1,
					Y:        int(key - baseKey),
					BaseNote: int(key),
					Velocity: int(s.velocity),
				})
			}
		}
	}
	return notes, nil
}
