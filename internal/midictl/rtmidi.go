package midictl

import (
	"fmt"
	"sync"

	"gitlab.com/gomidi/midi"
	"gitlab.com/gomidi/rtmididrv"
)

// RTMIDIDriver adapts rtmididrv to the Driver interface.
type RTMIDIDriver struct {
	mu  sync.Mutex
	drv *rtmididrv.Driver
}

// NewRTMIDIDriver opens the system MIDI driver.
func NewRTMIDIDriver() (*RTMIDIDriver, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("failed to open MIDI driver: %w", err)
	}
	return &RTMIDIDriver{drv: drv}, nil
}

// Ports enumerates the available MIDI input ports.
func (d *RTMIDIDriver) Ports() ([]Port, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ins, err := d.drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("failed to list MIDI inputs: %w", err)
	}

	ports := make([]Port, 0, len(ins))
	for _, in := range ins {
		ports = append(ports, &rtmidiPort{in: in})
	}
	return ports, nil
}

// Close closes the underlying driver.
func (d *RTMIDIDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drv.Close()
}

type rtmidiPort struct {
	mu   sync.Mutex
	in   midi.In
	open bool
}

func (p *rtmidiPort) Name() string {
	return p.in.String()
}

// SetListener opens the port and installs the raw-byte listener.
func (p *rtmidiPort) SetListener(fn func(data []byte)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		if err := p.in.Open(); err != nil {
			return fmt.Errorf("failed to open MIDI input %s: %w", p.in.String(), err)
		}
		p.open = true
	}

	if err := p.in.SetListener(func(data []byte, deltaMicroseconds int64) {
		fn(data)
	}); err != nil {
		return fmt.Errorf("failed to set listener on %s: %w", p.in.String(), err)
	}
	return nil
}

func (p *rtmidiPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.open {
		return nil
	}
	p.open = false
	if err := p.in.StopListening(); err != nil {
		_ = p.in.Close()
		return err
	}
	return p.in.Close()
}
