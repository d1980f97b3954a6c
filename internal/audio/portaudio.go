package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// PortAudioEngine implements Engine using PortAudio
type PortAudioEngine struct {
	config    Config
	stream    *portaudio.Stream
	tap       TapFunc
	frames    float64 // running device sample counter, reset per install
	mu        sync.Mutex
	installed bool
}

// NewPortAudioEngine initializes PortAudio and returns an engine for the
// configured device. The stream itself is opened lazily by InstallTap.
func NewPortAudioEngine(config Config) (*PortAudioEngine, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return &PortAudioEngine{config: config}, nil
}

// ListDevices returns a list of available audio input devices
func (e *PortAudioEngine) ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	defaultInput, err := portaudio.DefaultInputDevice()
	if err != nil {
		// If we can't get the default device, continue without marking any as default
		defaultInput = nil
	}

	var result []Device
	for i, dev := range devices {
		// Only include devices with input channels
		if dev.MaxInputChannels > 0 {
			isDefault := defaultInput != nil && dev.Name == defaultInput.Name
			result = append(result, Device{
				ID:        i,
				Name:      dev.Name,
				IsDefault: isDefault,
			})
		}
	}

	return result, nil
}

// Format returns the stream's current native format
func (e *PortAudioEngine) Format() StreamFormat {
	e.mu.Lock()
	defer e.mu.Unlock()
	return StreamFormat{
		SampleRate: float64(e.config.SampleRate),
		Channels:   e.config.Channels,
		Layout:     Float32Interleaved,
	}
}

// device resolves the configured device ID to a PortAudio device.
func (e *PortAudioEngine) device() (*portaudio.DeviceInfo, error) {
	if e.config.DeviceID == -1 {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	if e.config.DeviceID < 0 || e.config.DeviceID >= len(devices) {
		return nil, fmt.Errorf("invalid device ID: %d", e.config.DeviceID)
	}

	device := devices[e.config.DeviceID]
	if device.MaxInputChannels <= 0 {
		return nil, fmt.Errorf("selected device '%s' (ID: %d) has no input channels (output-only device)",
			device.Name, e.config.DeviceID)
	}
	return device, nil
}

// InstallTap opens the capture stream and delivers every buffer to fn.
// Installing while already installed is a no-op.
func (e *PortAudioEngine) InstallTap(fn TapFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.installed {
		return nil
	}

	device, err := e.device()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	var latency time.Duration
	switch e.config.Latency {
	case LowLatency:
		latency = device.DefaultLowInputLatency
	default:
		latency = device.DefaultHighInputLatency
	}

	// tap is immutable while the stream is running; the callback reads it
	// without locking.
	e.tap = fn
	e.frames = 0

	streamParams := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: e.config.Channels,
			Latency:  latency,
		},
		SampleRate:      float64(e.config.SampleRate),
		FramesPerBuffer: e.config.FramesPerBuffer,
	}

	stream, err := portaudio.OpenStream(streamParams, e.callback)
	if err != nil {
		return fmt.Errorf("%w: failed to open stream: %v", ErrDeviceUnavailable, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("%w: failed to start stream: %v", ErrDeviceUnavailable, err)
	}

	e.stream = stream
	e.installed = true
	return nil
}

// callback is invoked by PortAudio on the capture thread once per buffer.
func (e *PortAudioEngine) callback(in []float32, timeInfo portaudio.StreamCallbackTimeInfo) {
	channels := e.config.Channels
	frames := len(in) / channels
	buf := &FrameBuffer{
		Layout:     Float32Interleaved,
		Frames:     frames,
		Channels:   channels,
		SampleRate: float64(e.config.SampleRate),
		F32:        in,
		Clock: Clock{
			SampleTime:      e.frames,
			SampleTimeValid: true,
			HostTime:        timeInfo.InputBufferAdcTime,
			HostTimeValid:   timeInfo.InputBufferAdcTime > 0,
		},
	}
	e.frames += float64(frames)
	if e.tap != nil {
		e.tap(buf)
	}
}

// RemoveTap closes the capture stream. Removing an absent tap is a no-op.
func (e *PortAudioEngine) RemoveTap() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.installed {
		return nil
	}

	if err := e.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop stream: %w", err)
	}
	if err := e.stream.Close(); err != nil {
		return fmt.Errorf("failed to close stream: %w", err)
	}
	e.stream = nil
	e.tap = nil
	e.installed = false
	return nil
}

// Close releases the stream and terminates PortAudio.
func (e *PortAudioEngine) Close() error {
	e.mu.Lock()
	if e.installed {
		e.stream.Stop()
		e.stream.Close()
		e.stream = nil
		e.installed = false
	}
	e.mu.Unlock()

	if err := portaudio.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate PortAudio: %w", err)
	}
	return nil
}
