package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Format is the sample encoding used at the device boundary.
type Format int

const (
	FormatS8 Format = iota
	FormatS16
	FormatS24
	FormatS32
	FormatS64
	FormatFloat
	FormatDouble
)

var formatNames = [...]string{"s8", "s16", "s24", "s32", "s64", "float", "double"}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return fmt.Sprintf("format(%d)", int(f))
	}
	return formatNames[f]
}

func ParseFormat(s string) (Format, error) {
	for i, n := range formatNames {
		if n == s {
			return Format(i), nil
		}
	}
	return 0, fmt.Errorf("unknown sample format %q", s)
}

// Size returns the number of bytes per sample.
func (f Format) Size() int {
	switch f {
	case FormatS8:
		return 1
	case FormatS16:
		return 2
	case FormatS24:
		return 3
	case FormatS32, FormatFloat:
		return 4
	default:
		return 8
	}
}

func (f Format) scale() float64 {
	switch f {
	case FormatS8:
		return math.MaxInt8
	case FormatS16:
		return math.MaxInt16
	case FormatS24:
		return 1<<23 - 1
	case FormatS32:
		return math.MaxInt32
	case FormatS64:
		// largest float64 below 2^63, so the conversion to int64 cannot overflow
		return 1<<63 - 1<<10
	}
	return 1
}

func clip(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// Encode writes src as little endian samples of format f into dst and returns
// the number of bytes written. Integer formats clip to [-1, 1].
func Encode(dst []byte, src []float32, f Format) int {
	size := f.Size()
	n := len(dst) / size
	if len(src) < n {
		n = len(src)
	}
	scale := f.scale()
	for i := 0; i < n; i++ {
		b := dst[i*size : (i+1)*size]
		v := float64(src[i])
		switch f {
		case FormatS8:
			b[0] = byte(int8(clip(v) * scale))
		case FormatS16:
			binary.LittleEndian.PutUint16(b, uint16(int16(clip(v)*scale)))
		case FormatS24:
			s := int32(clip(v) * scale)
			b[0], b[1], b[2] = byte(s), byte(s>>8), byte(s>>16)
		case FormatS32:
			binary.LittleEndian.PutUint32(b, uint32(int32(clip(v)*scale)))
		case FormatS64:
			binary.LittleEndian.PutUint64(b, uint64(int64(clip(v)*scale)))
		case FormatFloat:
			binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
		case FormatDouble:
			binary.LittleEndian.PutUint64(b, math.Float64bits(v))
		}
	}
	return n * size
}

// Decode reads little endian samples of format f from src into dst and
// returns the number of samples read.
func Decode(dst []float32, src []byte, f Format) int {
	size := f.Size()
	n := len(src) / size
	if len(dst) < n {
		n = len(dst)
	}
	scale := f.scale()
	for i := 0; i < n; i++ {
		b := src[i*size : (i+1)*size]
		var v float64
		switch f {
		case FormatS8:
			v = float64(int8(b[0])) / scale
		case FormatS16:
			v = float64(int16(binary.LittleEndian.Uint16(b))) / scale
		case FormatS24:
			s := int32(b[0]) | int32(b[1])<<8 | int32(int8(b[2]))<<16
			v = float64(s) / scale
		case FormatS32:
			v = float64(int32(binary.LittleEndian.Uint32(b))) / scale
		case FormatS64:
			v = float64(int64(binary.LittleEndian.Uint64(b))) / scale
		case FormatFloat:
			v = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
		case FormatDouble:
			v = math.Float64frombits(binary.LittleEndian.Uint64(b))
		}
		dst[i] = float32(v)
	}
	return n
}
