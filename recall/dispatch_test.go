package recall

import (
	"bytes"
	"errors"
	"log"
	"reflect"
	"strings"
	"testing"

	"github.com/mrdg/recall/audio"
)

type event struct {
	phase  string
	name   string
	serial uint64
	depth  int
	state  State
}

type recorder struct {
	events  []event
	tracers []*tracer
}

// tracer records every hook it sees. With doneAt > 0 it finishes itself in
// run_pre of its doneAt-th tick.
type tracer struct {
	rec      *recorder
	name     string
	doneAt   int
	ticks    int
	releases int
}

func (p *tracer) record(phase string, r *Recall) {
	p.rec.events = append(p.rec.events, event{
		phase:  phase,
		name:   p.name,
		serial: r.ID.Serial(),
		depth:  r.Depth(),
		state:  r.State(),
	})
}

func (p *tracer) RunInitPre(r *Recall, t *Tick) error {
	p.record("init", r)
	return nil
}

func (p *tracer) RunPre(r *Recall, t *Tick) error {
	p.ticks++
	p.record("pre", r)
	if p.doneAt > 0 && p.ticks >= p.doneAt {
		r.Done()
		r.Done()
	}
	return nil
}

func (p *tracer) RunInter(r *Recall, t *Tick) error {
	p.record("inter", r)
	return nil
}

func (p *tracer) RunPost(r *Recall, t *Tick) error {
	p.record("post", r)
	return nil
}

func (p *tracer) Release(r *Recall) { p.releases++ }

func (p *tracer) Finishes() bool { return p.doneAt > 0 }

func (rec *recorder) effect(name string, trees TreeKind, doneAt int, levels ...Level) *Effect {
	e := &Effect{Name: name, Ability: AbilityAll, Trees: trees, Side: SideBoth}
	ctor := func(r *Recall) Processor {
		p := &tracer{rec: rec, name: name, doneAt: doneAt}
		rec.tracers = append(rec.tracers, p)
		return p
	}
	for _, l := range levels {
		switch l {
		case LevelAudioRun:
			e.AudioRun = ctor
		case LevelChannelRun:
			e.ChannelRun = ctor
		case LevelRecycling:
			e.Recycling = ctor
		case LevelAudioSignal:
			e.AudioSignal = ctor
		}
	}
	return e
}

var allLevels = []Level{LevelAudioRun, LevelChannelRun, LevelRecycling, LevelAudioSignal}

type fixture struct {
	graph *audio.Graph
	reg   *audio.Registry
	d     *Dispatcher
	log   bytes.Buffer
}

func newFixture(opts ...Option) *fixture {
	f := &fixture{
		graph: audio.NewGraph(audio.StreamFormat{Samplerate: 44100, BufferSize: 64, Format: audio.FormatFloat}),
		reg:   audio.NewRegistry(),
	}
	opts = append([]Option{WithLogger(log.New(&f.log, "", 0))}, opts...)
	f.d = NewDispatcher(f.graph, f.reg, opts...)
	return f
}

func (f *fixture) addAudio(t *testing.T, name string, lines, outputs, inputs int) *audio.Audio {
	t.Helper()
	id, err := f.graph.AddAudio(name, lines, outputs, inputs)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := f.graph.Audio(id)
	return a
}

func (f *fixture) audioID(t *testing.T, name string) audio.AudioID {
	t.Helper()
	id, ok := f.graph.FindAudio(name)
	if !ok {
		t.Fatalf("audio %s not found", name)
	}
	return id
}

func (f *fixture) addContainer(t *testing.T, name string, e *Effect) *Container {
	t.Helper()
	c, err := f.d.AddContainer(f.audioID(t, name), e)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func (f *fixture) tick() {
	f.d.Run(&Tick{
		Graph:    f.graph,
		Out:      make([]float32, 64),
		Channels: 1,
		Frames:   64,
	})
}

func TestVoiceLifecycle(t *testing.T) {
	f := newFixture()
	drums := f.addAudio(t, "drums", 1, 1, 1)
	rec := &recorder{}
	f.addContainer(t, "drums", rec.effect("trace", AnyTree, 0, allLevels...))
	f.addContainer(t, "drums", rec.effect("src", VoiceTree, 2, LevelAudioSignal))

	root, err := f.d.Start(f.audioID(t, "drums"), audio.ScopeSequencer)
	if err != nil {
		t.Fatal(err)
	}
	voice, err := f.d.Spawn(root.ID.Context, drums.Input[0], Voice{})
	if err != nil {
		t.Fatal(err)
	}
	if want, got := 2, len(f.d.Roots()); want != got {
		t.Fatalf("expected %d trees, got %d", want, got)
	}

	f.tick()

	serial := voice.ID.Serial()
	lastPre, lastPost := -1, 1<<30
	postSeen := false
	for _, ev := range rec.events {
		if ev.serial != serial {
			continue
		}
		switch ev.phase {
		case "init", "pre", "inter":
			if postSeen {
				t.Errorf("%s of %s at depth %d after run_post", ev.phase, ev.name, ev.depth)
			}
			if ev.depth < lastPre {
				t.Errorf("%s of %s at depth %d after depth %d", ev.phase, ev.name, ev.depth, lastPre)
			}
			lastPre = ev.depth
		case "post":
			postSeen = true
			if ev.depth > lastPost {
				t.Errorf("post of %s at depth %d after depth %d", ev.name, ev.depth, lastPost)
			}
			lastPost = ev.depth
		}
	}
	if !postSeen {
		t.Fatalf("expected run_post on the voice tree")
	}

	rec.events = nil
	f.tick()
	for _, ev := range rec.events {
		if ev.name == "src" && ev.phase == "post" && ev.state != Running {
			t.Errorf("expected done to be deferred until after run_post, got state %v", ev.state)
		}
	}
	if want, got := Done, voice.State(); want != got {
		t.Errorf("expected voice to be %v, got %v", want, got)
	}
	if !voice.ID.Context.Released() {
		t.Errorf("expected voice context to be released")
	}
	if want, got := 1, len(f.d.Roots()); want != got {
		t.Errorf("expected %d tree, got %d", want, got)
	}
	if want, got := 2, f.graph.NumSignals(); want != got {
		t.Errorf("expected run signals to be removed, got %d signals", got)
	}
	for _, p := range rec.tracers {
		inVoice := false
		voice.walk(func(r *Recall) {
			if r.proc == p {
				inVoice = true
			}
		})
		if want := map[bool]int{true: 1, false: 0}[inVoice]; p.releases != want {
			t.Errorf("%s: expected %d releases, got %d", p.name, want, p.releases)
		}
	}

	rec.events = nil
	f.tick()
	for _, ev := range rec.events {
		if ev.serial == serial {
			t.Errorf("expected finished voice not to run, got %s of %s", ev.phase, ev.name)
		}
	}
	if root.State().Finished() {
		t.Errorf("expected root tree to keep running")
	}
}

func TestCancel(t *testing.T) {
	f := newFixture()
	drums := f.addAudio(t, "drums", 1, 1, 1)
	rec := &recorder{}
	f.addContainer(t, "drums", rec.effect("src", VoiceTree, 100, LevelAudioSignal, LevelChannelRun))

	root, _ := f.d.Start(f.audioID(t, "drums"), audio.ScopeWave)
	voice, err := f.d.Spawn(root.ID.Context, drums.Input[0], Voice{})
	if err != nil {
		t.Fatal(err)
	}
	f.tick()
	voice.Cancel()
	voice.Cancel()
	voice.walk(func(r *Recall) {
		if want, got := Cancelled, r.State(); want != got {
			t.Errorf("%v: expected %v, got %v", r, want, got)
		}
	})
	for _, p := range rec.tracers {
		if want, got := 1, p.releases; want != got {
			t.Errorf("expected %d release, got %d", want, got)
		}
	}
	voice.Done()
	if want, got := Cancelled, voice.State(); want != got {
		t.Errorf("expected done after cancel to be ignored, got %v", got)
	}

	f.tick()
	if want, got := 1, len(f.d.Roots()); want != got {
		t.Errorf("expected cancelled voice to be collected, got %d trees", got)
	}
}

func TestSpawnNothingToRun(t *testing.T) {
	f := newFixture()
	drums := f.addAudio(t, "drums", 1, 1, 1)
	rec := &recorder{}
	f.addContainer(t, "drums", rec.effect("trace", AnyTree, 0, allLevels...))

	root, _ := f.d.Start(f.audioID(t, "drums"), audio.ScopeSequencer)
	if _, err := f.d.Spawn(root.ID.Context, drums.Input[0], Voice{}); !errors.Is(err, ErrNothingToRun) {
		t.Errorf("expected ErrNothingToRun, got %v", err)
	}
	if want, got := 1, len(f.d.Roots()); want != got {
		t.Errorf("expected %d tree, got %d", want, got)
	}
	if want, got := 1, len(f.reg.Live()); want != got {
		t.Errorf("expected voice context to be released, got %d live contexts", got)
	}
	if want, got := 2, f.graph.NumSignals(); want != got {
		t.Errorf("expected voice signals to be removed, got %d signals", got)
	}
}

func TestStartStop(t *testing.T) {
	f := newFixture()
	drums := f.addAudio(t, "drums", 1, 1, 1)
	rec := &recorder{}
	f.addContainer(t, "drums", rec.effect("src", VoiceTree, 100, LevelAudioSignal))
	id := f.audioID(t, "drums")

	root, err := f.d.Start(id, audio.ScopeSequencer)
	if err != nil {
		t.Fatal(err)
	}
	again, err := f.d.Start(id, audio.ScopeSequencer)
	if err != nil || again != root {
		t.Errorf("expected starting a running scope to return the running tree")
	}
	voice, err := f.d.Spawn(root.ID.Context, drums.Input[0], Voice{})
	if err != nil {
		t.Fatal(err)
	}

	f.d.Stop(id, audio.ScopeSequencer)
	if !voice.State().Finished() || !root.State().Finished() {
		t.Errorf("expected stop to finish the scope and its voices")
	}
	if want, got := 0, len(f.d.Roots()); want != got {
		t.Errorf("expected no trees, got %d", got)
	}
	if _, err := f.d.Spawn(root.ID.Context, drums.Input[0], Voice{}); !errors.Is(err, audio.ErrContextReleased) {
		t.Errorf("expected ErrContextReleased, got %v", err)
	}
}

func TestStaleAfterRemoveAudio(t *testing.T) {
	f := newFixture()
	f.addAudio(t, "drums", 1, 1, 2)
	rec := &recorder{}
	f.addContainer(t, "drums", rec.effect("trace", RootTree, 0, allLevels...))
	id := f.audioID(t, "drums")

	root, err := f.d.Start(id, audio.ScopePlayback)
	if err != nil {
		t.Fatal(err)
	}
	f.tick()
	if err := f.graph.RemoveAudio(id); err != nil {
		t.Fatal(err)
	}
	rec.events = nil
	f.tick()

	if len(rec.events) != 0 {
		t.Errorf("expected no hooks to run on a removed audio, got %v", rec.events)
	}
	if !root.State().Finished() {
		t.Errorf("expected root to be cancelled")
	}
	if !strings.Contains(f.log.String(), ErrStaleReference.Error()) {
		t.Errorf("expected a stale reference diagnostic, got %q", f.log.String())
	}
	if want, got := 0, len(f.d.Roots()); want != got {
		t.Errorf("expected no trees, got %d", got)
	}
	for _, p := range rec.tracers {
		if want, got := 1, p.releases; want != got {
			t.Errorf("%s: expected %d release, got %d", p.name, want, got)
		}
	}
}

func TestStaleAfterUnlink(t *testing.T) {
	f := newFixture()
	master := f.addAudio(t, "master", 1, 1, 1)
	drums := f.addAudio(t, "drums", 1, 1, 1)
	if err := f.graph.SetLink(drums.Output[0], master.Input[0]); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	f.addContainer(t, "drums", rec.effect("src", VoiceTree, 100, LevelAudioSignal))

	root, _ := f.d.Start(f.audioID(t, "drums"), audio.ScopeSequencer)
	voice, err := f.d.Spawn(root.ID.Context, drums.Input[0], Voice{})
	if err != nil {
		t.Fatal(err)
	}
	if want, got := 3, len(voice.ID.Context.Recyclings); want != got {
		t.Fatalf("expected voice path of %d recyclings, got %d", want, got)
	}
	f.tick()

	if err := f.graph.SetLink(drums.Output[0], audio.ChannelID{}); err != nil {
		t.Fatal(err)
	}
	if !voice.State().Finished() {
		t.Errorf("expected voice to finish when its mix path goes away")
	}
	if !strings.Contains(f.log.String(), "mix path changed") {
		t.Errorf("expected a diagnostic, got %q", f.log.String())
	}
	f.tick()
	if want, got := []*Recall{root}, f.d.Roots(); len(got) != 1 || got[0] != want[0] {
		t.Errorf("expected only the root tree to survive, got %v", got)
	}
	if root.State().Finished() {
		t.Errorf("expected root tree to keep running")
	}
}

func TestStopAfterRelink(t *testing.T) {
	f := newFixture()
	master := f.addAudio(t, "master", 1, 1, 1)
	other := f.addAudio(t, "other", 1, 1, 1)
	if err := f.graph.SetLink(master.Output[0], other.Input[0]); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	f.addContainer(t, "master", rec.effect("trace", RootTree, 0, allLevels...))
	f.addContainer(t, "other", rec.effect("trace", RootTree, 0, allLevels...))
	id := f.audioID(t, "master")
	if _, err := f.d.Start(id, audio.ScopePlayback); err != nil {
		t.Fatal(err)
	}
	f.tick()

	if err := f.graph.SetLink(master.Output[0], audio.ChannelID{}); err != nil {
		t.Fatal(err)
	}
	f.tick()
	f.d.Stop(id, audio.ScopePlayback)

	if want, got := 0, len(f.d.Roots()); want != got {
		t.Errorf("expected %d trees, got %d", want, got)
	}
	if want, got := 0, len(f.d.instances); want != got {
		t.Errorf("expected %d indexed instances, got %d", want, got)
	}
	if want, got := 0, len(f.d.byChannel); want != got {
		t.Errorf("expected %d indexed channels, got %d", want, got)
	}
}

func TestPostOrder(t *testing.T) {
	f := newFixture()
	master := f.addAudio(t, "master", 1, 1, 1)
	drums := f.addAudio(t, "drums", 1, 1, 1)
	if err := f.graph.SetLink(drums.Output[0], master.Input[0]); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	f.addContainer(t, "drums", rec.effect("src", VoiceTree, 100, LevelAudioSignal))
	f.addContainer(t, "master", rec.effect("trace", RootTree, 0, LevelAudioRun))

	seq, err := f.d.Start(f.audioID(t, "drums"), audio.ScopeSequencer)
	if err != nil {
		t.Fatal(err)
	}
	voice, err := f.d.Spawn(seq.ID.Context, drums.Input[0], Voice{})
	if err != nil {
		t.Fatal(err)
	}
	// the scope tree playing the voice is created after it
	root, err := f.d.Start(f.audioID(t, "master"), audio.ScopeSequencer)
	if err != nil {
		t.Fatal(err)
	}
	f.tick()

	var order []uint64
	for _, ev := range rec.events {
		if ev.phase == "post" {
			order = append(order, ev.serial)
		}
	}
	if want, got := []uint64{voice.ID.Serial(), root.ID.Serial()}, order; !reflect.DeepEqual(want, got) {
		t.Errorf("expected run_post order %v, got %v", want, got)
	}
}

func TestGrowRoot(t *testing.T) {
	f := newFixture()
	master := f.addAudio(t, "master", 1, 1, 1)
	rec := &recorder{}
	f.addContainer(t, "master", rec.effect("trace", RootTree, 0, LevelChannelRun))
	id := f.audioID(t, "master")
	root, err := f.d.Start(id, audio.ScopePlayback)
	if err != nil {
		t.Fatal(err)
	}
	f.tick()

	if err := f.graph.ResizeChannels(id, 2); err != nil {
		t.Fatal(err)
	}
	rec.events = nil
	f.tick()

	var channels []audio.ChannelID
	root.walk(func(r *Recall) {
		if r.Level == LevelChannelRun && r.Container == nil {
			channels = append(channels, r.Channel)
		}
	})
	if want, got := master.Output, channels; !reflect.DeepEqual(want, got) {
		t.Errorf("expected channel run nodes for %v, got %v", want, got)
	}
	phases := make(map[string]int)
	for _, ev := range rec.events {
		phases[ev.phase]++
	}
	if want, got := 1, phases["init"]; want != got {
		t.Errorf("expected %d new recall to be initialized, got %d", want, got)
	}
	if want, got := 2, phases["post"]; want != got {
		t.Errorf("expected run_post on %d channels, got %d", want, got)
	}
	again, _ := f.d.Start(id, audio.ScopePlayback)
	if again != root {
		t.Errorf("expected starting the resized audio to return the running tree")
	}
	if f.log.Len() != 0 {
		t.Errorf("unexpected logs: %s", f.log.String())
	}
}

func TestDuplicateInstance(t *testing.T) {
	f := newFixture()
	drums := f.addAudio(t, "drums", 1, 1, 1)
	ctx, _ := f.reg.FindOrCreate(f.graph, drums.Input[0], audio.ScopeWave, nil)
	r := &Recall{Level: LevelChannelRun, ID: ctx.RecallID(), Channel: drums.Input[0], state: Mapped}
	if err := f.d.index(r); err != nil {
		t.Fatal(err)
	}
	dup := &Recall{Level: LevelChannelRun, ID: ctx.RecallID(), Channel: drums.Input[0], state: Mapped}
	if err := f.d.index(dup); !errors.Is(err, audio.ErrDuplicateRecallInstance) {
		t.Errorf("expected ErrDuplicateRecallInstance, got %v", err)
	}
	r.Cancel()
	if err := f.d.index(dup); err != nil {
		t.Errorf("expected finished instance to be replaceable, got %v", err)
	}
}

func TestAddContainerWhileRunning(t *testing.T) {
	f := newFixture()
	f.addAudio(t, "drums", 1, 1, 1)
	root, _ := f.d.Start(f.audioID(t, "drums"), audio.ScopePlayback)
	f.tick()

	rec := &recorder{}
	c := f.addContainer(t, "drums", rec.effect("trace", RootTree, 0, LevelAudioRun, LevelChannelRun))
	f.tick()
	if want, got := 2, len(rec.tracers); want != got {
		t.Fatalf("expected %d recalls attached to the running tree, got %d", want, got)
	}
	for _, p := range rec.tracers {
		if p.ticks != 1 {
			t.Errorf("expected new recall to run once, got %d", p.ticks)
		}
	}

	f.d.RemoveContainer(c)
	f.tick()
	for _, p := range rec.tracers {
		if p.ticks != 1 || p.releases != 1 {
			t.Errorf("expected removed recall to stop, got %d ticks and %d releases", p.ticks, p.releases)
		}
	}
	if root.State().Finished() {
		t.Errorf("expected root tree to survive container removal")
	}
}

type hooks struct {
	pre, post func(r *Recall, t *Tick) error
	finite    bool
}

func (h *hooks) RunPre(r *Recall, t *Tick) error {
	if h.pre == nil {
		return nil
	}
	return h.pre(r, t)
}

func (h *hooks) RunPost(r *Recall, t *Tick) error {
	if h.post == nil {
		return nil
	}
	return h.post(r, t)
}

func (h *hooks) Finishes() bool { return h.finite }

func TestSharedRecycling(t *testing.T) {
	for _, workers := range []int{1, 4} {
		f := newFixture(WithWorkers(workers))
		drums := f.addAudio(t, "drums", 1, 1, 2)
		source := &Effect{
			Name:    "source",
			Ability: AbilityAll,
			Trees:   VoiceTree,
			Side:    SideInput,
			AudioSignal: func(r *Recall) Processor {
				if r.ID.Context.Index(r.Recycling) != 0 {
					return nil
				}
				return &hooks{finite: true, pre: func(r *Recall, t *Tick) error {
					s, _ := t.Graph.Signal(r.Signal)
					for i := range s.Buffer {
						s.Buffer[i] = float64(s.Length)
					}
					return nil
				}}
			},
		}
		mix := &Effect{
			Name:    "mix",
			Ability: AbilityAll,
			Trees:   VoiceTree,
			Side:    SideInput,
			ChannelRun: func(r *Recall) Processor {
				return &hooks{post: func(r *Recall, t *Tick) error {
					ctx := r.ID.Context
					i := ctx.Index(r.Recycling)
					src, _ := t.Graph.RunSignal(r.Recycling, r.ID)
					dst, _ := t.Graph.RunSignal(ctx.Recyclings[i+1], r.ID)
					s, _ := t.Graph.Signal(src)
					d, _ := t.Graph.Signal(dst)
					for j := range s.Buffer {
						d.Buffer[j] += s.Buffer[j]
					}
					return nil
				}}
			},
		}
		f.addContainer(t, "drums", source)
		f.addContainer(t, "drums", mix)

		root, _ := f.d.Start(f.audioID(t, "drums"), audio.ScopeSequencer)
		a, err := f.d.Spawn(root.ID.Context, drums.Input[0], Voice{Length: 1})
		if err != nil {
			t.Fatal(err)
		}
		b, err := f.d.Spawn(root.ID.Context, drums.Input[1], Voice{Length: 2})
		if err != nil {
			t.Fatal(err)
		}
		if a.ID == b.ID {
			t.Fatalf("expected distinct recall ids")
		}
		f.tick()

		out, _ := f.graph.Channel(drums.Output[0])
		var ids []*audio.RecallID
		var sum float64
		f.graph.RunSignals(out.Recycling, func(_ audio.SignalID, s *audio.AudioSignal) {
			ids = append(ids, s.RecallID)
			sum += s.Buffer[0]
		})
		if len(ids) != 2 || ids[0] != a.ID || ids[1] != b.ID {
			t.Errorf("workers %d: expected one signal per voice in the output recycling, got %v", workers, ids)
		}
		if want, got := 3.0, sum; want != got {
			t.Errorf("workers %d: expected mixed value %v, got %v", workers, want, got)
		}
	}
}
