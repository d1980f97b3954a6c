package player

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/gopxl/beep/v2/wav"

	"github.com/pmoneynz/QuickLoops/internal/logger"
)

// ErrInvalidAudioFile indicates the asset could not be opened or holds no audio.
var ErrInvalidAudioFile = errors.New("invalid audio file")

// Rate bounds for the real-time rate/pitch stage: ±20% of nominal.
const (
	RateMin     = 0.8
	RateMax     = 1.2
	RateNominal = 1.0
)

// clampRate bounds a requested rate to [RateMin, RateMax].
func clampRate(v float64) float64 {
	if v < RateMin {
		return RateMin
	}
	if v > RateMax {
		return RateMax
	}
	return v
}

// RatePercent formats a rate multiplier as a signed percentage offset from
// nominal: 1.2 -> "+20", 0.8 -> "-20", 1.0 -> "0".
func RatePercent(rate float64) string {
	percent := int(rate*100+0.5) - 100
	if percent == 0 {
		return "0"
	}
	return fmt.Sprintf("%+d", percent)
}

// session is one playback session: the loaded asset, the streamer for the
// currently scheduled pass, and the liveness flag consulted before every
// reschedule. alive is only touched under the speaker lock, which is also
// the lock Stream runs under, so a stop racing an in-flight pass completion
// can never produce an extra cycle.
type session struct {
	newPass func() beep.Streamer
	cur     beep.Streamer
	alive   bool
}

func newSession(newPass func() beep.Streamer) *session {
	return &session{
		newPass: newPass,
		cur:     newPass(),
		alive:   true,
	}
}

// Stream plays the scheduled pass and, when it completes, immediately
// schedules the next one inside the same output cycle. The next pass is
// queued before the current one drains, so the loop seam carries no gap.
func (s *session) Stream(samples [][2]float64) (int, bool) {
	n := 0
	for n < len(samples) {
		if !s.alive {
			break
		}
		sn, ok := s.cur.Stream(samples[n:])
		n += sn
		if !ok {
			if !s.alive {
				break
			}
			s.cur = s.newPass()
		}
	}
	return n, n > 0
}

func (s *session) Err() error { return nil }

// Player plays a finished loop with continuous gapless repetition through a
// rate-control stage and a linear output gain. Transport-level sequencing is
// owned entirely by the transport state machine; the player holds only the
// is-playing flag and the current rate.
type Player struct {
	log *logger.Logger

	mu         sync.Mutex
	sampleRate beep.SampleRate
	opened     bool
	mixer      *beep.Mixer
	resampler  *beep.Resampler
	gain       *effects.Gain
	asset      *beep.Buffer
	assetRate  beep.SampleRate
	sess       *session
	rate       float64
	playing    bool
}

// New creates a loop player. Open must be called before playback starts.
func New(log *logger.Logger) *Player {
	return &Player{
		log:  log,
		rate: RateNominal,
	}
}

// Open initializes the output device at the given sample rate and installs
// the persistent chain: loop session -> resampler (rate stage) -> gain ->
// speaker. Rate changes only touch the resampler's ratio, so no
// rescheduling happens mid-playback.
func (p *Player) Open(sampleRate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.opened {
		return nil
	}

	sr := beep.SampleRate(sampleRate)
	if err := speaker.Init(sr, sr.N(100*time.Millisecond)); err != nil {
		return fmt.Errorf("failed to open output device: %w", err)
	}

	p.sampleRate = sr
	p.mixer = &beep.Mixer{}
	p.resampler = beep.ResampleRatio(4, RateNominal, p.mixer)
	p.gain = &effects.Gain{Streamer: p.resampler, Gain: 0}
	speaker.Play(p.gain)

	p.opened = true
	return nil
}

// Load reads the whole asset into memory so every pass streams from the
// same buffer. Fails with ErrInvalidAudioFile when the file cannot be
// decoded or holds no frames.
func (p *Player) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAudioFile, err)
	}
	defer f.Close()

	streamer, format, err := wav.Decode(f)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAudioFile, err)
	}
	defer streamer.Close()

	buf := beep.NewBuffer(format)
	buf.Append(streamer)
	if buf.Len() == 0 {
		return fmt.Errorf("%w: %s holds no audio", ErrInvalidAudioFile, path)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.asset = buf
	p.assetRate = format.SampleRate
	p.log.Info("loaded loop asset: %s (%d frames)", path, buf.Len())
	return nil
}

// pass builds the streamer for one full pass over the asset, resampled to
// the output rate when the file was captured at a different one.
func (p *Player) pass() beep.Streamer {
	var s beep.Streamer = p.asset.Streamer(0, p.asset.Len())
	if p.assetRate != p.sampleRate {
		s = beep.Resample(4, p.assetRate, p.sampleRate, s)
	}
	return s
}

// Start schedules the loaded asset from frame zero and begins gapless
// looped playback.
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.opened {
		return fmt.Errorf("player not opened")
	}
	if p.asset == nil {
		return fmt.Errorf("%w: no asset loaded", ErrInvalidAudioFile)
	}
	if p.playing {
		return nil
	}

	sess := newSession(p.pass)
	speaker.Lock()
	p.mixer.Add(sess)
	speaker.Unlock()

	p.sess = sess
	p.playing = true
	return nil
}

// Stop halts output immediately. The in-flight pass is not unscheduled; its
// session goes dead under the output lock and produces nothing further.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Player) stopLocked() {
	if p.sess == nil {
		return
	}
	speaker.Lock()
	p.sess.alive = false
	speaker.Unlock()
	p.sess = nil
	p.playing = false
}

// Restart stops if playing, then reschedules from frame zero.
func (p *Player) Restart() error {
	p.Stop()
	return p.Start()
}

// SetRate sets the playback speed/pitch multiplier on the rate stage,
// clamped to [0.8, 1.2]. Takes effect in real time.
func (p *Player) SetRate(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rate = clampRate(v)
	if p.resampler != nil {
		speaker.Lock()
		p.resampler.SetRatio(p.rate)
		speaker.Unlock()
	}
}

// AdjustRate shifts the current rate by delta, clamped to [0.8, 1.2].
func (p *Player) AdjustRate(delta float64) {
	p.SetRate(p.Rate() + delta)
}

// Rate returns the current rate multiplier.
func (p *Player) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

// SetVolume sets the linear output gain, orthogonal to rate. 1.0 is unity.
func (p *Player) SetVolume(level float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if level < 0 {
		level = 0
	}
	if p.gain != nil {
		speaker.Lock()
		p.gain.Gain = level - 1
		speaker.Unlock()
	}
}

// Clear stops playback, releases the asset reference, and resets the rate
// to nominal.
func (p *Player) Clear() {
	p.mu.Lock()
	p.stopLocked()
	p.asset = nil
	p.mu.Unlock()

	p.SetRate(RateNominal)
}

// IsPlaying returns whether a playback session is active.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Close tears down the output device.
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.opened {
		speaker.Close()
		p.opened = false
	}
}
