package midictl

import (
	"fmt"
	"sync"
	"time"

	"github.com/pmoneynz/QuickLoops/internal/config"
	"github.com/pmoneynz/QuickLoops/internal/logger"
)

// Action identifies a transport entry point a note can be bound to.
type Action int

const (
	ActionRecord Action = iota
	ActionPlay
	ActionStop
	ActionClear
)

// String returns the string representation of the action
func (a Action) String() string {
	switch a {
	case ActionRecord:
		return "record"
	case ActionPlay:
		return "play"
	case ActionStop:
		return "stop"
	case ActionClear:
		return "clear"
	default:
		return "unknown"
	}
}

// Transport is the subset of the transport machine the router drives.
type Transport interface {
	Record() error
	Play() error
	Stop() error
	Clear() error
}

// Port is an open MIDI input delivering raw bytes to a listener.
type Port interface {
	Name() string
	SetListener(fn func(data []byte)) error
	Close() error
}

// Driver enumerates MIDI input ports.
type Driver interface {
	Ports() ([]Port, error)
	Close() error
}

const (
	rescanInterval  = time.Second
	indicatorWindow = 250 * time.Millisecond
)

// Config holds router configuration
type Config struct {
	Mapping        config.NoteMapping
	RescanInterval time.Duration
}

// DefaultConfig returns the default router configuration
func DefaultConfig() Config {
	return Config{
		Mapping:        config.DefaultMapping(),
		RescanInterval: rescanInterval,
	}
}

// Router connects MIDI note-on events to transport actions. It auto-connects
// the first available input and keeps rescanning so an unplugged controller
// reconnects without restarting the app. Losing the controller never touches
// the transport.
type Router struct {
	mu        sync.Mutex
	driver    Driver
	transport Transport
	log       *logger.Logger

	mapping config.NoteMapping

	port      Port
	portName  string
	connected bool

	learning    bool
	learnAction Action

	lastAction Action
	lastAt     time.Time

	onMapping func(config.NoteMapping)
	onTrigger func(Action)

	rescanEvery time.Duration
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewRouter creates a router over the given driver and transport.
func NewRouter(driver Driver, transport Transport, log *logger.Logger, cfg Config) *Router {
	if cfg.RescanInterval <= 0 {
		cfg.RescanInterval = rescanInterval
	}
	return &Router{
		driver:      driver,
		transport:   transport,
		log:         log,
		mapping:     cfg.Mapping,
		rescanEvery: cfg.RescanInterval,
		stopCh:      make(chan struct{}),
	}
}

// SetOnMappingChange registers a callback invoked after learning rebinds a
// note. The caller persists the new mapping.
func (r *Router) SetOnMappingChange(fn func(config.NoteMapping)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onMapping = fn
}

// SetOnTrigger registers a callback invoked whenever an action fires,
// from either the MIDI or the manual path.
func (r *Router) SetOnTrigger(fn func(Action)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onTrigger = fn
}

// Start connects to the first available input and begins the rescan loop.
// Not finding a controller is not an error; the loop keeps looking.
func (r *Router) Start() error {
	if err := r.connect(); err != nil {
		r.log.Warn("no MIDI input yet: %v", err)
	}
	go r.rescanLoop()
	return nil
}

// Close stops the rescan loop and releases the port and driver.
func (r *Router) Close() error {
	r.stopOnce.Do(func() { close(r.stopCh) })

	r.mu.Lock()
	port := r.port
	r.port = nil
	r.connected = false
	r.mu.Unlock()

	if port != nil {
		_ = port.Close()
	}
	return r.driver.Close()
}

// Connected reports whether a controller is currently attached.
func (r *Router) Connected() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.portName, r.connected
}

// Mapping returns the active note mapping.
func (r *Router) Mapping() config.NoteMapping {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mapping
}

// SetMapping replaces the active note mapping.
func (r *Router) SetMapping(m config.NoteMapping) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mapping = m
}

// Learn arms learning mode for the given action. The next note-on rebinds
// that action and disarms.
func (r *Router) Learn(action Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.learning = true
	r.learnAction = action
	r.log.Info("learning armed for %s", action)
}

// CancelLearn disarms learning mode without rebinding.
func (r *Router) CancelLearn() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.learning = false
}

// Learning reports whether learning mode is armed and for which action.
func (r *Router) Learning() (Action, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.learnAction, r.learning
}

// JustTriggered reports the most recent action if it fired within the
// indicator window. Drives the transient UI highlight.
func (r *Router) JustTriggered() (Action, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastAt) > indicatorWindow {
		return 0, false
	}
	return r.lastAction, true
}

// Trigger fires an action through the transport. Manual control surfaces
// call this directly so the indicator behaves identically for both paths.
func (r *Router) Trigger(action Action) {
	r.mu.Lock()
	r.lastAction = action
	r.lastAt = time.Now()
	fn := r.onTrigger
	r.mu.Unlock()

	if fn != nil {
		fn(action)
	}

	var err error
	switch action {
	case ActionRecord:
		err = r.transport.Record()
	case ActionPlay:
		err = r.transport.Play()
	case ActionStop:
		err = r.transport.Stop()
	case ActionClear:
		err = r.transport.Clear()
	}
	if err != nil {
		r.log.Error("%s failed: %v", action, err)
	}
}

// HandleMessage parses a raw MIDI message and routes note-on events.
// Everything else is ignored: note-off, velocity-zero note-on, system and
// realtime messages, notes outside the mapping.
func (r *Router) HandleMessage(data []byte) {
	if len(data) < 3 {
		return
	}
	status := data[0]
	if status >= 0xF0 {
		return
	}
	if status>>4 != 0x09 {
		return
	}
	velocity := data[2] & 0x7F
	if velocity == 0 {
		// Running-status note-off.
		return
	}
	note := data[1] & 0x7F

	r.mu.Lock()
	if r.learning {
		action := r.learnAction
		r.learning = false
		switch action {
		case ActionRecord:
			r.mapping.Record = note
		case ActionPlay:
			r.mapping.Play = note
		case ActionStop:
			r.mapping.Stop = note
		case ActionClear:
			r.mapping.Clear = note
		}
		mapping := r.mapping
		fn := r.onMapping
		r.mu.Unlock()

		r.log.Info("learned note %d for %s", note, action)
		if fn != nil {
			fn(mapping)
		}
		return
	}

	action, ok := r.lookupLocked(note)
	r.mu.Unlock()
	if !ok {
		return
	}

	r.Trigger(action)
}

func (r *Router) lookupLocked(note uint8) (Action, bool) {
	switch note {
	case r.mapping.Record:
		return ActionRecord, true
	case r.mapping.Play:
		return ActionPlay, true
	case r.mapping.Stop:
		return ActionStop, true
	case r.mapping.Clear:
		return ActionClear, true
	default:
		return 0, false
	}
}

// connect opens the first enumerated input port and installs the listener.
func (r *Router) connect() error {
	ports, err := r.driver.Ports()
	if err != nil {
		return fmt.Errorf("failed to enumerate MIDI inputs: %w", err)
	}
	if len(ports) == 0 {
		return fmt.Errorf("no MIDI inputs available")
	}

	port := ports[0]
	if err := port.SetListener(r.HandleMessage); err != nil {
		_ = port.Close()
		return fmt.Errorf("failed to set MIDI listener: %w", err)
	}

	r.mu.Lock()
	r.port = port
	r.portName = port.Name()
	r.connected = true
	r.mu.Unlock()

	r.log.Info("MIDI input connected: %s", port.Name())
	return nil
}

// rescanLoop re-checks the port list every interval. A vanished port marks
// the router disconnected; the next tick attempts a fresh connect.
func (r *Router) rescanLoop() {
	ticker := time.NewTicker(r.rescanEvery)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.rescanOnce()
		}
	}
}

func (r *Router) rescanOnce() {
	r.mu.Lock()
	connected := r.connected
	name := r.portName
	port := r.port
	r.mu.Unlock()

	if connected {
		ports, err := r.driver.Ports()
		if err != nil {
			return
		}
		present := false
		for _, p := range ports {
			if p.Name() == name {
				present = true
				break
			}
		}
		if present {
			return
		}

		r.log.Warn("MIDI input lost: %s", name)
		if port != nil {
			_ = port.Close()
		}
		r.mu.Lock()
		r.port = nil
		r.connected = false
		r.mu.Unlock()
		return
	}

	if err := r.connect(); err == nil {
		return
	}
}
