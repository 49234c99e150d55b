package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/mrdg/recall/audio"
	"github.com/mrdg/recall/engine"
)

func main() {
	var (
		bpm         = flag.Float64("bpm", 120, "tempo in beats per minute")
		samplerate  = flag.Int("samplerate", 44100, "")
		bufferSize  = flag.Int("buffer-size", 256, "frames per soundcard buffer")
		channels    = flag.Int("channels", 2, "")
		format      = flag.String("format", "float", "device sample format")
		backendName = flag.String("backend", "portaudio", "portaudio, oto or null")
		workers     = flag.Int("workers", 0, "goroutines rendering voices, 0 renders on the audio thread")
		files       = flag.String("sounds", "", "glob of wav files loaded as pads of the drums audio")
		run         = flag.String("run", "", "file of commands to run at start")
	)
	flag.Parse()

	cfg := engine.DefaultConfig()
	cfg.BPM = *bpm
	cfg.Samplerate = *samplerate
	cfg.BufferSize = *bufferSize
	cfg.Channels = *channels
	cfg.Workers = *workers
	f, err := audio.ParseFormat(*format)
	if err != nil {
		log.Fatal(err)
	}
	cfg.Format = f

	eng, err := engine.New(cfg)
	if err != nil {
		log.Fatal(err)
	}

	var soundFiles []string
	if *files != "" {
		if soundFiles, err = filepath.Glob(*files); err != nil {
			log.Fatal(err)
		}
	}

	var commands []string
	if *run != "" {
		f, err := os.Open(*run)
		if err != nil {
			log.Fatal(err)
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			commands = append(commands, strings.TrimSpace(scanner.Text()))
		}
		if err := scanner.Err(); err != nil {
			log.Fatal(err)
		}
		f.Close()
	}

	backend, err := newBackend(*backendName, eng)
	if err != nil {
		log.Fatal(err)
	}
	if err := backend.Start(); err != nil {
		log.Fatal(err)
	}

	env := newEnv(eng, os.Stdout)
	err = session(env, append(setup(cfg.Channels, soundFiles), commands...))
	if err := backend.Stop(); err != nil {
		log.Printf("stop %s backend: %v", *backendName, err)
	}
	eng.Close()
	if err != nil && !errors.Is(err, io.EOF) {
		fmt.Println(err)
		os.Exit(1)
	}
}

// session runs the startup commands, then reads commands from the terminal
// or from stdin until the input ends.
func session(env *env, startup []string) error {
	for _, line := range startup {
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := env.eval(line); err != nil {
			return err
		}
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return repl(env)
	}
	return script(env, os.Stdin)
}

// setup returns the commands building the default session: a master audio
// playing to the device and, with sounds, a drums audio with one pad per
// sound linked into it.
func setup(channels int, sounds []string) []string {
	cmds := []string{
		fmt.Sprintf("audio master %d 1 1", channels),
		"fx master buffer",
		"fx master play",
		"fx master peak",
		"start master playback",
	}
	if len(sounds) == 0 {
		return cmds
	}
	cmds = append(cmds,
		fmt.Sprintf("audio drums %d 1 %d", channels, len(sounds)),
		"link drums master 0",
		"fx drums feed",
		"fx drums volume",
		"fx drums buffer",
		"fx drums pattern",
		"fx drums peak",
	)
	for i, file := range sounds {
		cmds = append(cmds, fmt.Sprintf("load drums %d %q", i, file))
	}
	return append(cmds, "start drums sequencer")
}
