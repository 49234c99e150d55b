package audio

import (
	"fmt"
	"io"
	"log"
	"os"

	wav "github.com/youpy/go-wav"
)

// LoadWAV reads a WAV file into a mono waveform suitable for a template
// signal. Multi-channel files are mixed down.
func LoadWAV(file string, samplerate int) ([]float64, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := wav.NewReader(f)
	format, err := r.Format()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}
	if int(format.SampleRate) != samplerate {
		log.Printf("audio: %s has samplerate %d, engine runs at %d", file, format.SampleRate, samplerate)
	}
	channels := uint(format.NumChannels)
	if channels == 0 {
		return nil, fmt.Errorf("%s: no channels", file)
	}

	var data []float64
	for {
		samples, err := r.ReadSamples()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		for _, sample := range samples {
			var v float64
			for ch := uint(0); ch < channels; ch++ {
				v += r.FloatValue(sample, ch)
			}
			data = append(data, v/float64(channels))
		}
	}
	return data, nil
}
