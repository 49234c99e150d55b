package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mrdg/recall/audio"
	"github.com/mrdg/recall/engine"
)

type padView struct {
	file    string
	pattern []bool
}

type audioView struct {
	name     string
	pads     []padView
	step     int // current sequencer step, -1 when not sequencing
	timeSig  timeSig
	stepSize int
}

func (e *env) view(name string) (audioView, error) {
	v := audioView{name: name, step: -1, timeSig: e.timeSig, stepSize: e.stepSize}
	var found bool
	e.engine.View(func(eng *engine.Engine) {
		g := eng.Graph()
		id, ok := g.FindAudio(name)
		if !ok {
			return
		}
		found = true
		a, _ := g.Audio(id)
		for pad := 0; pad < a.InputPads; pad++ {
			ch, err := g.ChannelAt(id, audio.Input, 0, pad)
			if err != nil {
				break
			}
			c, _ := g.Channel(ch)
			v.pads = append(v.pads, padView{
				file:    e.samples[name][pad],
				pattern: append([]bool(nil), c.Pattern...),
			})
		}
		for _, c := range eng.Dispatcher().Containers(id) {
			if c.Effect.Name == "pattern" {
				step, _ := c.Ports.Get("offset")
				v.step = int(step)
			}
		}
	})
	if !found {
		return v, fmt.Errorf("unknown audio: %s", name)
	}
	return v, nil
}

func renderView(v audioView, w io.Writer) {
	sig := v.timeSig
	var icons []string
	for i := 1; i <= sig.num; i++ {
		icons = append(icons, numIcon(i))
	}

	maxNameLen := len(v.name)
	for _, pad := range v.pads {
		if name := displayName(pad.file); len(name) > maxNameLen {
			maxNameLen = len(name)
		}
	}
	maxNameLen += 1

	const spacePerStep = 4
	spacing := (v.stepSize/sig.denom)*spacePerStep - 1
	beats := strings.Join(icons, strings.Repeat(" ", spacing))
	fmt.Fprint(w, strings.Repeat(" ", maxNameLen)+"   ♩  "+beats+"\n")

	patternLen := (v.stepSize / sig.denom) * sig.num
	for i, pad := range v.pads {
		var steps string
		for n := 0; n < patternLen; n++ {
			step := "⬜️"
			if n < len(pad.pattern) && pad.pattern[n] {
				step = "⬛️"
			}
			if n == v.step {
				step = colorize(step, colorRed)
			}
			steps += step + "  "
		}

		name := pad.file
		if name == "" {
			name = v.name + strconv.Itoa(i)
		}
		sample := formatSampleName(name, maxNameLen)
		id := colorize(strconv.Itoa(i), colorGreen)
		row := fmt.Sprintf("%s %s %s\n", id, sample, steps)
		if i < len(v.pads)-1 {
			row += "\n"
		}
		fmt.Fprint(w, row)
	}

	var numbers string
	for step := 1; step <= patternLen; step++ {
		space := spacePerStep - 2
		if step < 9 {
			space++
		}
		numbers += strconv.Itoa(step) + strings.Repeat(" ", space)
	}
	numbers = colorize(numbers, colorMagenta)
	numbers = strings.Repeat(" ", maxNameLen) + "    " + numbers + "\n"
	fmt.Fprint(w, numbers)
}

func formatSampleName(sample string, max int) string {
	sample = displayName(sample)

	if len(sample) > max {
		sample = sample[:max-1]
		sample += "…"
	}
	if len(sample) < max {
		sample += strings.Repeat(" ", max-len(sample))
	}
	return colorize(sample, colorBlue)
}

func displayName(filename string) string {
	filename = filepath.Base(filename)
	return filename[:len(filename)-len(filepath.Ext(filename))]
}

func numIcon(n int) string {
	// https://www.unicode.org/emoji/charts/full-emoji-list.html#0030_fe0f_20e3
	return string([]byte{48 + byte(n%10), 239, 184, 143, 226, 131, 163})
}

const (
	colorBlack = iota + 30
	colorRed
	colorGreen
	colorYellow
	colorBlue
	colorMagenta
)

func colorize(text string, color int) string {
	return fmt.Sprintf("\033[%dm%s\033[0m", color, text)
}
