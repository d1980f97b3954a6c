package transport

import (
	"os"
	"sync"
	"time"

	"github.com/pmoneynz/QuickLoops/internal/logger"
	"github.com/pmoneynz/QuickLoops/internal/recording"
)

// State represents the transport state
type State int

const (
	// Stopped means neither recording nor playing; hasAudio qualifies it
	Stopped State = iota
	// Recording means a capture session is active
	Recording
	// Playing means a playback session is active
	Playing
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Stopped:
		return "Stopped"
	case Recording:
		return "Recording"
	case Playing:
		return "Playing"
	default:
		return "Unknown"
	}
}

// Recorder is the capture-side surface the transport sequences.
// Satisfied by recording.Recorder.
type Recorder interface {
	Start() error
	RequestStop()
	Path() string
	Done() <-chan recording.Result
}

// Player is the playback-side surface the transport sequences.
// Satisfied by player.Player.
type Player interface {
	Load(path string) error
	Start() error
	Stop()
	Clear()
}

// Status is a snapshot of the transport for UI and control consumers.
type Status struct {
	State    State
	HasAudio bool
	LoopPath string
}

// Config holds transport configuration
type Config struct {
	// ContinueDelay is the settle delay between recording finalization and
	// the auto-chained play, giving the filesystem a moment before the
	// player opens the file.
	ContinueDelay time.Duration
	// FinalizeWait bounds how long the auto-chain waits for the recorder's
	// finalize notification before giving up on continuation.
	FinalizeWait time.Duration
}

// DefaultConfig returns the default transport configuration
func DefaultConfig() Config {
	return Config{
		ContinueDelay: 100 * time.Millisecond,
		FinalizeWait:  2 * time.Second,
	}
}

// Machine is the only component holding global transport state. It
// sequences recorder and player lifecycles in response to actions; every
// action outside its enabling guard is a no-op. Both the UI and the note
// router converge on these entry points.
type Machine struct {
	log    *logger.Logger
	rec    Recorder
	player Player
	config Config

	mu       sync.Mutex
	state    State
	hasAudio bool
	loopPath string
	onChange func(Status)
}

// New creates a transport machine over the given recorder and player.
func New(rec Recorder, player Player, log *logger.Logger, config Config) *Machine {
	return &Machine{
		log:    log,
		rec:    rec,
		player: player,
		config: config,
		state:  Stopped,
	}
}

// SetOnChange registers the state-change notification callback. It is
// invoked outside the machine's lock, once per effective transition.
func (m *Machine) SetOnChange(fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Status returns a snapshot of the transport state.
func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Machine) statusLocked() Status {
	return Status{State: m.state, HasAudio: m.hasAudio, LoopPath: m.loopPath}
}

// Guards.

func (m *Machine) CanRecord() bool { m.mu.Lock(); defer m.mu.Unlock(); return m.state == Stopped }

func (m *Machine) CanPlay() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasAudio && m.state == Stopped
}

func (m *Machine) CanStop() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Recording || m.state == Playing
}

func (m *Machine) CanClear() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasAudio && m.state == Stopped
}

// Record starts a capture when stopped, or ends the running capture and
// auto-chains into playback once the recorder reports finalization.
func (m *Machine) Record() error {
	m.mu.Lock()

	switch m.state {
	case Stopped:
		if err := m.rec.Start(); err != nil {
			// Remain Stopped; the failure surfaces to the caller.
			m.mu.Unlock()
			m.log.Error("record: %v", err)
			return err
		}
		m.state = Recording
		st := m.statusLocked()
		m.mu.Unlock()
		m.notify(st)
		return nil

	case Recording:
		st := m.stopRecordingLocked(true)
		m.mu.Unlock()
		m.notify(st)
		return nil

	default:
		m.mu.Unlock()
		return nil
	}
}

// Play toggles playback: starts it when a loop is available, stops it when
// already playing. A load failure leaves the machine stopped.
func (m *Machine) Play() error {
	m.mu.Lock()

	switch {
	case m.state == Stopped && m.hasAudio:
		if err := m.player.Load(m.loopPath); err != nil {
			m.mu.Unlock()
			m.log.Error("play: %v", err)
			return err
		}
		if err := m.player.Start(); err != nil {
			m.mu.Unlock()
			m.log.Error("play: %v", err)
			return err
		}
		m.state = Playing
		st := m.statusLocked()
		m.mu.Unlock()
		m.notify(st)
		return nil

	case m.state == Playing:
		m.player.Stop()
		m.state = Stopped
		st := m.statusLocked()
		m.mu.Unlock()
		m.notify(st)
		return nil

	default:
		m.mu.Unlock()
		return nil
	}
}

// Stop ends the running capture (without auto-continuation) or halts
// playback. No-op when stopped.
func (m *Machine) Stop() error {
	m.mu.Lock()

	switch m.state {
	case Recording:
		st := m.stopRecordingLocked(false)
		m.mu.Unlock()
		m.notify(st)
		return nil

	case Playing:
		m.player.Stop()
		m.state = Stopped
		st := m.statusLocked()
		m.mu.Unlock()
		m.notify(st)
		return nil

	default:
		m.mu.Unlock()
		return nil
	}
}

// Clear discards the loop and its backing file, returning to the empty
// stopped state. Atomic with respect to the transport being stopped: the
// asset cannot reappear under a concurrent action.
func (m *Machine) Clear() error {
	m.mu.Lock()

	if !(m.hasAudio && m.state == Stopped) {
		m.mu.Unlock()
		return nil
	}

	m.player.Clear()
	if m.loopPath != "" {
		if err := os.Remove(m.loopPath); err != nil && !os.IsNotExist(err) {
			m.log.Warn("clear: failed to remove backing file: %v", err)
		}
	}
	m.hasAudio = false
	m.loopPath = ""
	st := m.statusLocked()
	m.mu.Unlock()
	m.notify(st)
	return nil
}

// stopRecordingLocked requests the sample-accurate stop and transitions to
// Stopped(hasAudio). When auto is set, a goroutine waits for the finalize
// notification and chains into Play after the settle delay. Caller holds
// m.mu; returns the post-transition status.
func (m *Machine) stopRecordingLocked(auto bool) Status {
	m.rec.RequestStop()
	m.state = Stopped
	m.hasAudio = true
	m.loopPath = m.rec.Path()
	done := m.rec.Done()

	go func() {
		select {
		case res := <-done:
			if res.Err != nil {
				m.log.Error("finalize: %v", res.Err)
				return
			}
			m.mu.Lock()
			// A Clear between stop and finalize discards the take; adopting
			// the path here would resurrect a dangling file.
			if !m.hasAudio {
				m.mu.Unlock()
				m.log.Info("take discarded before finalize: %s", res.Path)
				return
			}
			m.loopPath = res.Path
			m.mu.Unlock()
			m.log.Info("take finalized: %d frames", res.Frames)
		case <-time.After(m.config.FinalizeWait):
			m.log.Warn("finalize notification not received within %v", m.config.FinalizeWait)
			return
		}

		if auto {
			time.Sleep(m.config.ContinueDelay)
			if err := m.Play(); err != nil {
				m.log.Error("auto-continue: %v", err)
			}
		}
	}()

	return m.statusLocked()
}

// notify delivers a change notification outside the lock.
func (m *Machine) notify(st Status) {
	if fn := m.changeFn(); fn != nil {
		fn(st)
	}
}

func (m *Machine) changeFn() func(Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.onChange
}
