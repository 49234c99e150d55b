package fx

import (
	"github.com/mrdg/recall/audio"
	"github.com/mrdg/recall/recall"
)

type PluginPortKind int

const (
	AudioIn PluginPortKind = iota
	AudioOut
	Control
)

// PluginPort describes one port of a plugin. Control ports carry the spec of
// the container port they are read from.
type PluginPort struct {
	Kind PluginPortKind
	Spec audio.PortSpec
}

// Descriptor describes a plugin type. Instantiate is called once per voice.
type Descriptor struct {
	Name        string
	Ports       []PluginPort
	Instantiate func(samplerate int) Handle
}

// Handle is one instance of a plugin. Audio ports are connected to buffers of
// the buffer size, control ports to one element buffers. Run processes
// sampleCount frames.
type Handle interface {
	ConnectPort(index int, data []float32)
	Run(sampleCount int)
	Cleanup()
}

// PluginEffect wraps a plugin so that it processes every voice at its
// source.
func PluginEffect(desc *Descriptor) *recall.Effect {
	e := &recall.Effect{
		Name:    desc.Name,
		Ability: recall.AbilityAll,
		Trees:   recall.VoiceTree,
		Side:    recall.SideInput,
		AudioSignal: func(r *recall.Recall) recall.Processor {
			if !isSource(r) {
				return nil
			}
			return &plugin{desc: desc}
		},
	}
	for _, p := range desc.Ports {
		if p.Kind == Control {
			e.Ports = append(e.Ports, p.Spec)
		}
	}
	return e
}

type plugin struct {
	desc     *Descriptor
	handle   Handle
	in, out  []float32
	controls [][]float32
	ports    []*audio.Port
}

func (p *plugin) RunInitPre(r *recall.Recall, t *recall.Tick) error {
	stream := t.Graph.Stream()
	p.handle = p.desc.Instantiate(stream.Samplerate)
	p.in = make([]float32, stream.BufferSize)
	p.out = make([]float32, stream.BufferSize)
	for i, port := range p.desc.Ports {
		switch port.Kind {
		case AudioIn:
			p.handle.ConnectPort(i, p.in)
		case AudioOut:
			p.handle.ConnectPort(i, p.out)
		case Control:
			buf := make([]float32, 1)
			p.controls = append(p.controls, buf)
			p.ports = append(p.ports, r.Ports().Lookup(port.Spec.Name))
			p.handle.ConnectPort(i, buf)
		}
	}
	return nil
}

func (p *plugin) RunPost(r *recall.Recall, t *recall.Tick) error {
	s, ok := t.Graph.Signal(r.Signal)
	if !ok || p.handle == nil {
		return nil
	}
	n := min(frames(t, s.Buffer), len(p.in))
	for i := 0; i < n; i++ {
		p.in[i] = float32(s.Buffer[i])
	}
	for i, port := range p.ports {
		p.controls[i][0] = float32(port.SafeRead())
	}
	p.handle.Run(n)
	for i := 0; i < n; i++ {
		s.Buffer[i] = float64(p.out[i])
	}
	return nil
}

func (p *plugin) Release(r *recall.Recall) {
	if p.handle != nil {
		p.handle.Cleanup()
		p.handle = nil
	}
}
