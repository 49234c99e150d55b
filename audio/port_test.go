package audio

import (
	"reflect"
	"testing"
)

func TestPortCheck(t *testing.T) {
	tests := []struct {
		name    string
		spec    PortSpec
		value   float64
		want    float64
		wantErr bool
	}{
		{"in range", PortSpec{Name: "volume", Min: 0, Max: 2}, 1.5, 1.5, false},
		{"above range", PortSpec{Name: "volume", Min: 0, Max: 2}, 3, 0, true},
		{"below range", PortSpec{Name: "volume", Min: 0, Max: 2}, -1, 0, true},
		{"unbounded", PortSpec{Name: "gain"}, 100, 100, false},
		{"int", PortSpec{Name: "length", Type: PortInt, Min: 1, Max: 64, Default: 1}, 16, 16, false},
		{"fractional int", PortSpec{Name: "length", Type: PortInt, Min: 1, Max: 64, Default: 1}, 1.5, 0, true},
		{"bool", PortSpec{Name: "loop", Type: PortBool}, 7, 1, false},
		{"scale point", PortSpec{
			Name:        "mode",
			ScalePoints: []ScalePoint{{Label: "low", Value: 0}, {Label: "high", Value: 2}},
			Enumerated:  true,
		}, 2, 2, false},
		{"not a scale point", PortSpec{
			Name:        "mode",
			ScalePoints: []ScalePoint{{Label: "low", Value: 0}, {Label: "high", Value: 2}},
			Enumerated:  true,
		}, 1, 0, true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p, err := NewPort(test.spec)
			if err != nil {
				t.Fatal(err)
			}
			err = p.SafeWrite(test.value)
			if test.wantErr {
				if err == nil {
					t.Errorf("expected error writing %v", test.value)
				}
				if want, got := test.spec.Default, p.SafeRead(); want != got {
					t.Errorf("expected value to stay %v, got %v", want, got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if want, got := test.want, p.SafeRead(); want != got {
				t.Errorf("expected %v, got %v", want, got)
			}
		})
	}
}

func TestPortDefault(t *testing.T) {
	if _, err := NewPort(PortSpec{Name: "volume", Min: 0, Max: 2, Default: 5}); err == nil {
		t.Errorf("expected invalid default to be rejected")
	}
}

func TestPortUpdate(t *testing.T) {
	p, _ := NewPort(PortSpec{Name: "peak", Min: 0, Max: 1})
	if err := p.Update(func(v float64) float64 { return v + 0.25 }); err != nil {
		t.Fatal(err)
	}
	if err := p.Update(func(v float64) float64 { return v + 1 }); err == nil {
		t.Errorf("expected update out of range to fail")
	}
	if want, got := 0.25, p.SafeRead(); want != got {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestPorts(t *testing.T) {
	ports := NewPorts()
	ports.MustRegister(PortSpec{Name: "volume", Min: 0, Max: 2, Default: 1})
	ports.MustRegister(PortSpec{Name: "pan", Min: -1, Max: 1})
	if _, err := ports.Register(PortSpec{Name: "pan"}); err == nil {
		t.Errorf("expected duplicate port to be rejected")
	}
	if err := ports.Set("volume", 0.5); err != nil {
		t.Fatal(err)
	}
	if v, err := ports.Get("volume"); err != nil || v != 0.5 {
		t.Errorf("expected 0.5, got %v (%v)", v, err)
	}
	if err := ports.Set("cutoff", 1); err == nil {
		t.Errorf("expected unknown port to fail")
	}
	if want, got := []string{"pan", "volume"}, ports.Names(); !reflect.DeepEqual(want, got) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
