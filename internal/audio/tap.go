package audio

import (
	"sync"
	"time"
)

// meterInterval caps level-meter publication at 30 Hz regardless of the
// hardware callback rate.
const meterInterval = time.Second / 30

// TapMux owns the single subscription to the hardware capture stream and
// fans buffers out to whichever of {metering, recording} are currently
// active. The underlying tap is installed exactly when metering-enabled OR
// recording-active transitions from false to true, and removed when the
// union transitions back to false.
//
// Two locks: opMu serializes subscription transitions, mu guards the
// consumer snapshot read by the capture callback. Engine install/remove
// must never run under mu: removing the stream blocks on the in-flight
// callback, and that callback takes mu.
type TapMux struct {
	engine Engine

	opMu sync.Mutex

	mu         sync.Mutex
	metering   bool
	recording  bool
	recHandler TapFunc
	lastLevel  time.Time
	levelCh    chan float64
}

// NewTapMux creates a multiplexer over the given engine.
func NewTapMux(engine Engine) *TapMux {
	return &TapMux{
		engine:  engine,
		levelCh: make(chan float64, 8),
	}
}

// Format returns the engine's current native stream format.
func (m *TapMux) Format() StreamFormat {
	return m.engine.Format()
}

// Levels is the throttled level-meter feed. Updates beyond the 30 Hz
// ceiling, or while the consumer lags, are silently dropped.
func (m *TapMux) Levels() <-chan float64 {
	return m.levelCh
}

// EnableMetering turns on level metering, installing the hardware tap if it
// is not already present.
func (m *TapMux) EnableMetering() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.mu.Lock()
	m.metering = true
	m.mu.Unlock()
	return m.sync()
}

// DisableMetering turns off level metering. While recording is active the
// subscription stays installed; only a metering-only subscription is
// dropped. Idempotent.
func (m *TapMux) DisableMetering() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.mu.Lock()
	m.metering = false
	m.mu.Unlock()
	return m.sync()
}

// EnableRecording marks recording active; handler is invoked for every
// delivered buffer until DisableRecording.
func (m *TapMux) EnableRecording(handler TapFunc) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.mu.Lock()
	m.recording = true
	m.recHandler = handler
	m.mu.Unlock()
	return m.sync()
}

// DisableRecording unregisters the recording handler and re-evaluates
// whether the metering-only branch keeps the subscription. Idempotent.
func (m *TapMux) DisableRecording() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.mu.Lock()
	m.recording = false
	m.recHandler = nil
	m.mu.Unlock()
	return m.sync()
}

// sync reconciles the installed tap with the desired consumer set. Caller
// holds opMu but not mu; the engine call may block on an in-flight capture
// callback, which needs mu to read its snapshot.
func (m *TapMux) sync() error {
	m.mu.Lock()
	active := m.metering || m.recording
	m.mu.Unlock()
	if active {
		return m.engine.InstallTap(m.deliver)
	}
	return m.engine.RemoveTap()
}

// deliver runs in the capture callback context. It must not block: the
// recording handler is bounded by the buffer period and metering uses a
// non-blocking send.
func (m *TapMux) deliver(buf *FrameBuffer) {
	m.mu.Lock()
	handler := m.recHandler
	meter := false
	if m.metering {
		now := time.Now()
		if now.Sub(m.lastLevel) >= meterInterval {
			m.lastLevel = now
			meter = true
		}
	}
	m.mu.Unlock()

	if handler != nil {
		handler(buf)
	}
	if meter {
		select {
		case m.levelCh <- buf.LevelFirstChannel():
		default:
		}
	}
}
