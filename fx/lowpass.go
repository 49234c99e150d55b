package fx

import (
	"math"

	"github.com/mrdg/recall/audio"
)

// LowpassPlugin is a builtin plugin: a resonant lowpass filter with a cutoff
// control.
var LowpassPlugin = &Descriptor{
	Name: "lowpass",
	Ports: []PluginPort{
		{Kind: AudioIn},
		{Kind: AudioOut},
		{Kind: Control, Spec: audio.PortSpec{Name: "cutoff", Type: audio.PortFloat, Min: 20, Max: 20000, Default: 5000}},
	},
	Instantiate: func(samplerate int) Handle {
		return &lowpass{samplerate: float64(samplerate)}
	},
}

var Lowpass = register(PluginEffect(LowpassPlugin))

type lowpass struct {
	samplerate float64
	in, out    []float32
	cutoff     []float32

	freq       float32
	c0, c1, c2 float64
	c3, c4     float64
	y1, y2     float64 // y[n-1] y[n-2]
	ready      bool
}

func (f *lowpass) ConnectPort(index int, data []float32) {
	switch index {
	case 0:
		f.in = data
	case 1:
		f.out = data
	case 2:
		f.cutoff = data
	}
}

// Run filters based on https://www.w3.org/2011/audio/audio-eq-cookbook.html
func (f *lowpass) Run(sampleCount int) {
	if !f.ready || f.cutoff[0] != f.freq {
		f.calculateCoefficients(f.cutoff[0])
	}
	for n := 0; n < sampleCount; n++ {
		in := float64(f.in[n])
		out := f.c0*in + f.y1
		f.out[n] = float32(out)
		f.y1 = f.c1*in - f.c3*out + f.y2
		f.y2 = f.c2*in - f.c4*out
	}
}

func (f *lowpass) Cleanup() {
	f.in, f.out, f.cutoff = nil, nil, nil
}

func (f *lowpass) calculateCoefficients(freq float32) {
	f.freq = freq
	f.ready = true

	omega := 2 * math.Pi * float64(freq) / f.samplerate
	cos := math.Cos(omega)
	sin := math.Sin(omega)

	const q = 1
	alpha := sin / (2. * q)

	b0 := (1 - cos) / 2
	b1 := 1 - cos
	b2 := b0
	a0 := 1 + alpha
	a1 := -2 * cos
	a2 := 1 - alpha

	f.c0 = b0 / a0
	f.c1 = b1 / a0
	f.c2 = b2 / a0
	f.c3 = a1 / a0
	f.c4 = a2 / a0
}
