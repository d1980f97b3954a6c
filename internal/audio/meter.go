package audio

import "sync"

// LevelMeter keeps the most recent input level from the mux's throttled
// feed, for polling surfaces that cannot consume a channel.
type LevelMeter struct {
	mux *TapMux

	mu    sync.Mutex
	level float64

	stop     chan struct{}
	stopOnce sync.Once
}

// NewLevelMeter enables metering on the mux and starts consuming its level
// feed.
func NewLevelMeter(mux *TapMux) (*LevelMeter, error) {
	if err := mux.EnableMetering(); err != nil {
		return nil, err
	}
	m := &LevelMeter{
		mux:  mux,
		stop: make(chan struct{}),
	}
	go m.run()
	return m, nil
}

func (m *LevelMeter) run() {
	for {
		select {
		case v := <-m.mux.Levels():
			m.mu.Lock()
			m.level = v
			m.mu.Unlock()
		case <-m.stop:
			return
		}
	}
}

// Level returns the most recently published input level in [0, 1].
func (m *LevelMeter) Level() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Close stops the consumer and disables metering on the mux.
func (m *LevelMeter) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return m.mux.DisableMetering()
}
