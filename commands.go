package main

import (
	"fmt"
	"strings"

	"github.com/mrdg/recall/audio"
	"github.com/mrdg/recall/dub"
	"github.com/mrdg/recall/engine"
	"github.com/mrdg/recall/fx"
)

var commands []command

func init() {
	commands = []command{
		{"audio", audioCommand, 4, "audio <name> <lines> <output pads> <input pads>"},
		{"rm", rmCommand, 1, "rm <audio>"},
		{"channels", channelsCommand, 2, "channels <audio> <lines>"},
		{"pads", padsCommand, 3, "pads <audio> in|out <pads>"},
		{"link", linkCommand, -2, "link <from> <to> [input pad]"},
		{"unlink", unlinkCommand, 1, "unlink <audio>"},
		{"fx", fxCommand, 2, "fx <audio> <effect>"},
		{"rmfx", rmfxCommand, 2, "rmfx <audio> <effect>"},
		{"start", startCommand, 2, "start <audio> <scope>"},
		{"stop", stopCommand, 2, "stop <audio> <scope>"},
		{"hit", hitCommand, 2, "hit <audio> <pad>"},
		{"load", loadCommand, 3, `load <audio> <pad> "file.wav"`},
		{"midi", midiCommand, 2, `midi <audio> "file.mid"`},
		{"setp", setpCommand, 3, "setp <audio> <pad> '<match expression>"},
		{"clear", clearCommand, 2, "clear <audio> <pad>"},
		{"beat", beatCommand, 2, "beat <numerator> <denominator>"},
		{"bpm", bpmCommand, 1, "bpm <bpm>"},
		{"set", setCommand, 4, "set <audio> <effect> <port> <value>"},
		{"setc", setcCommand, 5, "setc <audio> <effect> <pad> <port> <value>"},
		{"peak", peakCommand, 1, "peak <audio>"},
		{"show", showCommand, 1, "show <audio>"},
		{"help", helpCommand, 0, "help"},
	}
}

func audioCommand(env *env, args []dub.Node) (dub.Node, error) {
	var name string
	var lines, outputs, inputs int
	if err := readArgs(args, &name, &lines, &outputs, &inputs); err != nil {
		return nil, err
	}
	return nil, env.engine.Schedule(engine.AddAudio{
		Audio:         name,
		AudioChannels: lines,
		OutputPads:    outputs,
		InputPads:     inputs,
	})
}

func rmCommand(env *env, args []dub.Node) (dub.Node, error) {
	var name string
	if err := readArgs(args, &name); err != nil {
		return nil, err
	}
	delete(env.samples, name)
	return nil, env.engine.Schedule(engine.RemoveAudio{Audio: name})
}

func channelsCommand(env *env, args []dub.Node) (dub.Node, error) {
	var name string
	var lines int
	if err := readArgs(args, &name, &lines); err != nil {
		return nil, err
	}
	return nil, env.engine.Schedule(engine.ResizeChannels{Audio: name, N: lines})
}

func padsCommand(env *env, args []dub.Node) (dub.Node, error) {
	var name, side string
	var pads int
	if err := readArgs(args, &name, &side, &pads); err != nil {
		return nil, err
	}
	typ, err := parseChannelType(side)
	if err != nil {
		return nil, err
	}
	return nil, env.engine.Schedule(engine.ResizePads{Audio: name, Type: typ, N: pads})
}

func parseChannelType(s string) (audio.ChannelType, error) {
	switch s {
	case "in":
		return audio.Input, nil
	case "out":
		return audio.Output, nil
	}
	return 0, fmt.Errorf("not a channel type: %s", s)
}

// linkCommand links every line of the first output pad of from to the input
// pad of to.
func linkCommand(env *env, args []dub.Node) (dub.Node, error) {
	var from, to string
	var pad int
	var err error
	if len(args) == 3 {
		err = readArgs(args, &from, &to, &pad)
	} else {
		err = readArgs(args, &from, &to)
	}
	if err != nil {
		return nil, err
	}
	return nil, env.engine.Schedule(engine.LinkAudio{From: from, To: to, Pad: pad})
}

func unlinkCommand(env *env, args []dub.Node) (dub.Node, error) {
	var name string
	if err := readArgs(args, &name); err != nil {
		return nil, err
	}
	return nil, env.engine.Schedule(engine.LinkAudio{From: name})
}

func fxCommand(env *env, args []dub.Node) (dub.Node, error) {
	var name, effect string
	if err := readArgs(args, &name, &effect); err != nil {
		return nil, err
	}
	if _, ok := fx.Lookup(effect); !ok {
		return nil, fmt.Errorf("unknown effect: %s (have %s)", effect, strings.Join(fx.Names(), ", "))
	}
	return nil, env.engine.Schedule(engine.AddContainer{Audio: name, Effect: effect})
}

func rmfxCommand(env *env, args []dub.Node) (dub.Node, error) {
	var name, effect string
	if err := readArgs(args, &name, &effect); err != nil {
		return nil, err
	}
	return nil, env.engine.Schedule(engine.RemoveContainer{Audio: name, Effect: effect})
}

func startCommand(env *env, args []dub.Node) (dub.Node, error) {
	var name, scope string
	if err := readArgs(args, &name, &scope); err != nil {
		return nil, err
	}
	s, err := audio.ParseScope(scope)
	if err != nil {
		return nil, err
	}
	return nil, env.engine.Schedule(engine.StartScope{Audio: name, Scope: s})
}

func stopCommand(env *env, args []dub.Node) (dub.Node, error) {
	var name, scope string
	if err := readArgs(args, &name, &scope); err != nil {
		return nil, err
	}
	s, err := audio.ParseScope(scope)
	if err != nil {
		return nil, err
	}
	return nil, env.engine.Schedule(engine.StopScope{Audio: name, Scope: s})
}

func hitCommand(env *env, args []dub.Node) (dub.Node, error) {
	var name string
	var pad int
	if err := readArgs(args, &name, &pad); err != nil {
		return nil, err
	}
	return nil, env.engine.Schedule(engine.NoteOn{
		Audio: name,
		Pad:   pad,
		Scope: audio.ScopeWave,
		Note:  audio.Note{Y: pad, Velocity: 127},
	})
}

func loadCommand(env *env, args []dub.Node) (dub.Node, error) {
	var name, file string
	var pad int
	if err := readArgs(args, &name, &pad, &file); err != nil {
		return nil, err
	}
	data, err := audio.LoadWAV(file, env.engine.Config().Samplerate)
	if err != nil {
		return nil, err
	}
	if env.samples[name] == nil {
		env.samples[name] = make(map[int]string)
	}
	env.samples[name][pad] = file
	return nil, env.engine.Schedule(engine.SetTemplate{Audio: name, Pad: pad, Data: data})
}

func midiCommand(env *env, args []dub.Node) (dub.Node, error) {
	var name, file string
	if err := readArgs(args, &name, &file); err != nil {
		return nil, err
	}
	const baseKey = 36 // C1, the first pad of most drum maps
	notes, err := readNotation(file, int(env.engine.Config().DelayFactor), baseKey)
	if err != nil {
		return nil, err
	}
	return dub.Int(len(notes)), env.engine.Schedule(engine.SetNotation{Audio: name, Notes: notes})
}

// setpCommand adds the steps matched by the expression to the pattern of a
// pad and sets the sequencer length to one bar.
func setpCommand(env *env, args []dub.Node) (dub.Node, error) {
	var name string
	var pad int
	var expr dub.MatchExpr
	if err := readArgs(args, &name, &pad, &expr); err != nil {
		return nil, err
	}
	seq, err := dub.EvalMatchExpr(expr, env.timeSig.num, env.timeSig.denom, env.stepSize)
	if err != nil {
		return nil, err
	}
	current := env.pattern(name, pad)
	steps := make([]bool, len(seq))
	for i, v := range seq {
		steps[i] = v != 0 || (i < len(current) && current[i])
	}
	return nil, env.engine.ScheduleAll(
		engine.SetPattern{Audio: name, Pad: pad, Steps: steps},
		engine.SetPort{Audio: name, Effect: "pattern", Port: "length", Value: float64(len(steps))},
	)
}

func clearCommand(env *env, args []dub.Node) (dub.Node, error) {
	var name string
	var pad int
	if err := readArgs(args, &name, &pad); err != nil {
		return nil, err
	}
	return nil, env.engine.Schedule(engine.SetPattern{Audio: name, Pad: pad})
}

// pattern returns the pattern of the first line of a pad.
func (e *env) pattern(name string, pad int) []bool {
	var steps []bool
	e.engine.View(func(eng *engine.Engine) {
		g := eng.Graph()
		id, ok := g.FindAudio(name)
		if !ok {
			return
		}
		ch, err := g.ChannelAt(id, audio.Input, 0, pad)
		if err != nil {
			return
		}
		c, _ := g.Channel(ch)
		steps = append(steps, c.Pattern...)
	})
	return steps
}

func beatCommand(env *env, args []dub.Node) (dub.Node, error) {
	var num, denom int
	if err := readArgs(args, &num, &denom); err != nil {
		return nil, err
	}
	if num <= 0 || denom <= 0 || denom > env.stepSize || env.stepSize%denom != 0 {
		return nil, fmt.Errorf("not a valid time signature: %d/%d", num, denom)
	}
	env.timeSig = timeSig{num: num, denom: denom}
	return nil, nil
}

func bpmCommand(env *env, args []dub.Node) (dub.Node, error) {
	var bpm float64
	if err := readArgs(args, &bpm); err != nil {
		return nil, err
	}
	return nil, env.engine.Schedule(engine.SetTiming{BPM: bpm})
}

func setCommand(env *env, args []dub.Node) (dub.Node, error) {
	var name, effect, port string
	var value float64
	if err := readArgs(args, &name, &effect, &port, &value); err != nil {
		return nil, err
	}
	return nil, env.engine.Schedule(engine.SetPort{Audio: name, Effect: effect, Port: port, Value: value})
}

// setcCommand sets a channel port on every line of an input pad.
func setcCommand(env *env, args []dub.Node) (dub.Node, error) {
	var name, effect, port string
	var pad int
	var value float64
	if err := readArgs(args, &name, &effect, &pad, &port, &value); err != nil {
		return nil, err
	}
	return nil, env.engine.Schedule(engine.SetPadPort{
		Audio:  name,
		Effect: effect,
		Pad:    pad,
		Port:   port,
		Value:  value,
	})
}

func peakCommand(env *env, args []dub.Node) (dub.Node, error) {
	var name string
	if err := readArgs(args, &name); err != nil {
		return nil, err
	}
	v, err := env.port(name, "peak", "peak")
	if err != nil {
		return nil, err
	}
	return dub.Float(v), nil
}

// port reads a port of the most recent container of effect on an audio.
func (e *env) port(name, effect, port string) (float64, error) {
	var (
		v   float64
		err error
	)
	e.engine.View(func(eng *engine.Engine) {
		id, ok := eng.Graph().FindAudio(name)
		if !ok {
			err = fmt.Errorf("unknown audio: %s", name)
			return
		}
		list := eng.Dispatcher().Containers(id)
		for i := len(list) - 1; i >= 0; i-- {
			if list[i].Effect.Name == effect {
				v, err = list[i].Ports.Get(port)
				return
			}
		}
		err = fmt.Errorf("no %s on %s", effect, name)
	})
	return v, err
}

func showCommand(env *env, args []dub.Node) (dub.Node, error) {
	var name string
	if err := readArgs(args, &name); err != nil {
		return nil, err
	}
	view, err := env.view(name)
	if err != nil {
		return nil, err
	}
	renderView(view, env.out)
	return nil, nil
}

func helpCommand(env *env, args []dub.Node) (dub.Node, error) {
	for _, cmd := range commands {
		fmt.Fprintln(env.out, cmd.help)
	}
	fmt.Fprintf(env.out, "effects: %s\n", strings.Join(fx.Names(), ", "))
	return nil, nil
}
