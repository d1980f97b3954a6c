package audio

// Layout identifies how a FrameBuffer's samples are stored. Exactly one of
// the buffer's sample slices is populated, selected by this tag; every
// operation that touches samples dispatches on it.
type Layout int

const (
	Float32Interleaved Layout = iota
	Float32Planar
	Int16Interleaved
	Int16Planar
	Int32Interleaved
	Int32Planar
)

// String returns the string representation of the layout
func (l Layout) String() string {
	switch l {
	case Float32Interleaved:
		return "float32"
	case Float32Planar:
		return "float32-planar"
	case Int16Interleaved:
		return "int16"
	case Int16Planar:
		return "int16-planar"
	case Int32Interleaved:
		return "int32"
	case Int32Planar:
		return "int32-planar"
	default:
		return "unknown"
	}
}

// BitDepth returns the PCM bit depth written to disk for this layout.
// Float capture is rendered to 16-bit PCM.
func (l Layout) BitDepth() int {
	switch l {
	case Int32Interleaved, Int32Planar:
		return 32
	default:
		return 16
	}
}

// FrameBuffer is an ephemeral chunk of PCM samples delivered once per
// hardware callback. It is owned by the capture stream for the duration of
// that callback; Clone before retaining.
type FrameBuffer struct {
	Layout     Layout
	Frames     int
	Channels   int
	SampleRate float64
	Clock      Clock

	F32  []float32
	F32P [][]float32
	I16  []int16
	I16P [][]int16
	I32  []int32
	I32P [][]int32
}

func trimInterleaved[T any](src []T, frames, channels int) []T {
	out := make([]T, frames*channels)
	copy(out, src[:frames*channels])
	return out
}

func trimPlanar[T any](src [][]T, frames int) [][]T {
	out := make([][]T, len(src))
	for ch := range src {
		out[ch] = make([]T, frames)
		copy(out[ch], src[ch][:frames])
	}
	return out
}

// Trim returns a shortened copy containing only the first frames frames,
// preserving the channel layout. Trimming past the buffer's length clamps.
func (b *FrameBuffer) Trim(frames int) *FrameBuffer {
	if frames < 0 {
		frames = 0
	}
	if frames > b.Frames {
		frames = b.Frames
	}
	out := &FrameBuffer{
		Layout:     b.Layout,
		Frames:     frames,
		Channels:   b.Channels,
		SampleRate: b.SampleRate,
		Clock:      b.Clock,
	}
	switch b.Layout {
	case Float32Interleaved:
		out.F32 = trimInterleaved(b.F32, frames, b.Channels)
	case Float32Planar:
		out.F32P = trimPlanar(b.F32P, frames)
	case Int16Interleaved:
		out.I16 = trimInterleaved(b.I16, frames, b.Channels)
	case Int16Planar:
		out.I16P = trimPlanar(b.I16P, frames)
	case Int32Interleaved:
		out.I32 = trimInterleaved(b.I32, frames, b.Channels)
	case Int32Planar:
		out.I32P = trimPlanar(b.I32P, frames)
	}
	return out
}

// Clone returns a full copy safe to retain past the callback.
func (b *FrameBuffer) Clone() *FrameBuffer {
	return b.Trim(b.Frames)
}

// LevelFirstChannel computes the mean absolute sample amplitude of the
// buffer's first channel, normalized to [0, 1].
func (b *FrameBuffer) LevelFirstChannel() float64 {
	if b.Frames == 0 || b.Channels == 0 {
		return 0
	}
	var sum float64
	switch b.Layout {
	case Float32Interleaved:
		for i := 0; i < b.Frames; i++ {
			sum += abs(float64(b.F32[i*b.Channels]))
		}
	case Float32Planar:
		for i := 0; i < b.Frames; i++ {
			sum += abs(float64(b.F32P[0][i]))
		}
	case Int16Interleaved:
		for i := 0; i < b.Frames; i++ {
			sum += abs(float64(b.I16[i*b.Channels]) / 32768)
		}
	case Int16Planar:
		for i := 0; i < b.Frames; i++ {
			sum += abs(float64(b.I16P[0][i]) / 32768)
		}
	case Int32Interleaved:
		for i := 0; i < b.Frames; i++ {
			sum += abs(float64(b.I32[i*b.Channels]) / (1 << 31))
		}
	case Int32Planar:
		for i := 0; i < b.Frames; i++ {
			sum += abs(float64(b.I32P[0][i]) / (1 << 31))
		}
	}
	return sum / float64(b.Frames)
}

// IntSamples renders the buffer as interleaved int samples at the layout's
// bit depth, the shape the WAV encoder consumes. Float samples are scaled
// to 16-bit PCM.
func (b *FrameBuffer) IntSamples() []int {
	n := b.Frames * b.Channels
	out := make([]int, n)
	switch b.Layout {
	case Float32Interleaved:
		for i := 0; i < n; i++ {
			out[i] = int(clampUnit(float64(b.F32[i])) * 32767)
		}
	case Float32Planar:
		for f := 0; f < b.Frames; f++ {
			for ch := 0; ch < b.Channels; ch++ {
				out[f*b.Channels+ch] = int(clampUnit(float64(b.F32P[ch][f])) * 32767)
			}
		}
	case Int16Interleaved:
		for i := 0; i < n; i++ {
			out[i] = int(b.I16[i])
		}
	case Int16Planar:
		for f := 0; f < b.Frames; f++ {
			for ch := 0; ch < b.Channels; ch++ {
				out[f*b.Channels+ch] = int(b.I16P[ch][f])
			}
		}
	case Int32Interleaved:
		for i := 0; i < n; i++ {
			out[i] = int(b.I32[i])
		}
	case Int32Planar:
		for f := 0; f < b.Frames; f++ {
			for ch := 0; ch < b.Channels; ch++ {
				out[f*b.Channels+ch] = int(b.I32P[ch][f])
			}
		}
	}
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
