package audio

import (
	"fmt"
	"sort"
	"sync"
)

type PortType int

const (
	PortFloat PortType = iota
	PortInt
	PortBool
)

// ScalePoint names a value of a port, e.g. the choices of an enumerated
// plugin control.
type ScalePoint struct {
	Label string
	Value float64
}

// PortSpec describes a port before it is registered.
type PortSpec struct {
	Name        string
	Type        PortType
	Min, Max    float64
	Default     float64
	ScalePoints []ScalePoint
	// Enumerated restricts values to the scale points.
	Enumerated bool
}

// Port is a value cell shared between a recall running on the audio thread
// and the control surface. Every access goes through the port mutex.
type Port struct {
	spec PortSpec

	mu    sync.Mutex
	value float64
}

func NewPort(spec PortSpec) (*Port, error) {
	p := &Port{spec: spec}
	if err := p.SafeWrite(spec.Default); err != nil {
		return nil, fmt.Errorf("port %s default: %w", spec.Name, err)
	}
	return p, nil
}

func (p *Port) Name() string   { return p.spec.Name }
func (p *Port) Spec() PortSpec { return p.spec }

// SafeRead returns the current value.
func (p *Port) SafeRead() float64 {
	p.mu.Lock()
	v := p.value
	p.mu.Unlock()
	return v
}

// SafeWrite validates and stores v.
func (p *Port) SafeWrite(v float64) error {
	v, err := p.check(v)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.value = v
	p.mu.Unlock()
	return nil
}

// Update applies f to the value atomically with respect to other accesses.
func (p *Port) Update(f func(float64) float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, err := p.check(f(p.value))
	if err != nil {
		return err
	}
	p.value = v
	return nil
}

func (p *Port) ReadBool() bool { return p.SafeRead() != 0 }
func (p *Port) ReadInt() int   { return int(p.SafeRead()) }

func (p *Port) check(v float64) (float64, error) {
	s := p.spec
	switch s.Type {
	case PortBool:
		if v != 0 {
			v = 1
		}
		return v, nil
	case PortInt:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("port %s: value is not an int: %v", s.Name, v)
		}
	}
	if s.Enumerated {
		for _, sp := range s.ScalePoints {
			if sp.Value == v {
				return v, nil
			}
		}
		return 0, fmt.Errorf("port %s: %v is not one of the scale points", s.Name, v)
	}
	if s.Max > s.Min && (v < s.Min || v > s.Max) {
		return 0, fmt.Errorf("port %s: value is not in valid range %v - %v: %v", s.Name, s.Min, s.Max, v)
	}
	return v, nil
}

// Ports is a set of named ports. All ports should be registered before the
// set is handed to the audio thread.
type Ports struct {
	ports map[string]*Port
}

func NewPorts() *Ports {
	return &Ports{ports: make(map[string]*Port)}
}

// Register adds a new port.
func (p *Ports) Register(spec PortSpec) (*Port, error) {
	if _, ok := p.ports[spec.Name]; ok {
		return nil, fmt.Errorf("port %s already registered", spec.Name)
	}
	port, err := NewPort(spec)
	if err != nil {
		return nil, err
	}
	p.ports[spec.Name] = port
	return port, nil
}

func (p *Ports) MustRegister(spec PortSpec) *Port {
	if port, err := p.Register(spec); err != nil {
		panic(err)
	} else {
		return port
	}
}

// Lookup returns the port called name, or nil.
func (p *Ports) Lookup(name string) *Port {
	return p.ports[name]
}

// Set writes a registered port.
func (p *Ports) Set(name string, v float64) error {
	port, ok := p.ports[name]
	if !ok {
		return fmt.Errorf("unknown port %s", name)
	}
	if err := port.SafeWrite(v); err != nil {
		return fmt.Errorf("set port %s: %w", name, err)
	}
	return nil
}

// Get reads a registered port.
func (p *Ports) Get(name string) (float64, error) {
	port, ok := p.ports[name]
	if !ok {
		return 0, fmt.Errorf("unknown port %s", name)
	}
	return port.SafeRead(), nil
}

// Names returns the sorted port names.
func (p *Ports) Names() []string {
	names := make([]string, 0, len(p.ports))
	for name := range p.ports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
