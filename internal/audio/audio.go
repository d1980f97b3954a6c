package audio

import "errors"

// ErrDeviceUnavailable indicates the capture device could not be opened or started.
var ErrDeviceUnavailable = errors.New("audio device unavailable")

// Device represents an audio input device
type Device struct {
	ID        int
	Name      string
	IsDefault bool
}

// LatencyMode defines the latency priority
type LatencyMode int

const (
	// LowLatency prioritizes low latency (real-time)
	LowLatency LatencyMode = iota
	// HighStability prioritizes stability (larger buffer)
	HighStability
)

// Config holds audio configuration
type Config struct {
	DeviceID        int
	SampleRate      int
	Channels        int
	FramesPerBuffer int
	Latency         LatencyMode
}

// DefaultConfig returns the default audio configuration
// Sample rate: 44.1kHz, mono, low latency for live monitoring
func DefaultConfig() Config {
	return Config{
		DeviceID:        -1, // -1 means use default device
		SampleRate:      44100,
		Channels:        1,
		FramesPerBuffer: 1024,
		Latency:         LowLatency,
	}
}

// StreamFormat describes the capture stream's current native format.
// It is queried fresh at every record start so a device change between
// takes is picked up transparently.
type StreamFormat struct {
	SampleRate float64
	Channels   int
	Layout     Layout
}

// TapFunc receives one FrameBuffer per hardware callback. The buffer is
// only valid for the duration of the call; retain via Clone.
type TapFunc func(*FrameBuffer)

// Engine is the interface to the hardware capture stream.
// This abstraction allows for future replacement of PortAudio with other
// libraries, and lets tests substitute a synthetic buffer source.
type Engine interface {
	// ListDevices returns a list of available audio input devices
	ListDevices() ([]Device, error)

	// Format returns the stream's current native format
	Format() StreamFormat

	// InstallTap opens the capture stream and delivers every buffer to fn.
	// Installing an already-installed tap is a no-op.
	InstallTap(fn TapFunc) error

	// RemoveTap closes the capture stream. Removing an absent tap is a no-op.
	RemoveTap() error

	// Close releases all resources
	Close() error
}
