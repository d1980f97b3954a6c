package recording

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/pmoneynz/QuickLoops/internal/audio"
	"github.com/pmoneynz/QuickLoops/internal/logger"
)

// Source is the capture-side surface the recorder needs: the stream's
// current format plus registration of a per-buffer handler. Satisfied by
// audio.TapMux.
type Source interface {
	Format() audio.StreamFormat
	EnableRecording(audio.TapFunc) error
	DisableRecording() error
}

// Result is the finalize-complete notification for one recording session.
type Result struct {
	Path   string
	Frames int64
	Err    error
}

// Config holds configuration for the capture recorder
type Config struct {
	// TempDir is where in-progress captures are allocated before the user
	// saves them into the loop library.
	TempDir string
}

// DefaultConfig returns the default recorder configuration
func DefaultConfig() Config {
	return Config{TempDir: os.TempDir()}
}

// Recorder streams captured buffers to a new backing WAV file in the
// stream's current native format and terminates capture at a sample-accurate
// instant that may fall inside a buffer.
//
// A session's timeline starts at the clock of the first delivered buffer
// (the origin). Relative offsets come from the device sample counter when
// valid, from the host-time reference otherwise, and degrade to a running
// frame count when neither is valid.
type Recorder struct {
	source Source
	log    *logger.Logger
	config Config

	mu             sync.Mutex
	active         bool
	format         audio.StreamFormat
	path           string
	file           *os.File
	enc            *wav.Encoder
	origin         audio.Clock
	originSet      bool
	lastWall       time.Time
	lastEndRel     int64
	fallbackFrames int64
	framesWritten  int64
	stopPending    bool
	stopOffset     int64
	doneCh         chan Result
}

// New creates a new capture recorder reading from source.
func New(source Source, log *logger.Logger, config Config) *Recorder {
	return &Recorder{
		source: source,
		log:    log,
		config: config,
	}
}

// Start allocates a new output file in the capture stream's current native
// format, clears all timing state, and registers the per-buffer handler.
// An open failure aborts the session and is returned to the caller.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active {
		return fmt.Errorf("already recording")
	}

	// Format is queried fresh so a device change between takes is adopted.
	format := r.source.Format()

	path := filepath.Join(r.config.TempDir, fmt.Sprintf("quickloops-capture-%d.wav", time.Now().UnixNano()))
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create capture file: %w", err)
	}

	r.format = format
	r.path = path
	r.file = file
	r.enc = wav.NewEncoder(file, int(format.SampleRate), format.Layout.BitDepth(), format.Channels, 1)
	r.originSet = false
	r.origin = audio.Clock{}
	r.lastWall = time.Time{}
	r.lastEndRel = 0
	r.fallbackFrames = 0
	r.framesWritten = 0
	r.stopPending = false
	r.stopOffset = 0
	r.doneCh = make(chan Result, 1)

	if err := r.source.EnableRecording(r.handleBuffer); err != nil {
		file.Close()
		os.Remove(path)
		return fmt.Errorf("failed to enable recording tap: %w", err)
	}

	r.active = true
	r.log.Info("recording started: %s (%s, %.0f Hz, %d ch)",
		filepath.Base(path), format.Layout, format.SampleRate, format.Channels)
	return nil
}

// RequestStop converts the current wall-clock time into a sample offset
// relative to the session origin and stores it as the pending stop offset.
// The offset extrapolates from the most recent buffer's correlation point:
// a delivered buffer ends at a known relative sample position, and the wall
// time elapsed since that delivery maps onto samples past it. Anchoring at
// the latest buffer rather than the session start keeps the delivery lag of
// the first buffer out of the offset.
//
// The file is not closed here; finalization happens inside the next buffer
// callback that reaches or crosses the offset. If no buffer has established
// a correlation point yet, the session finalizes immediately without
// trimming and the resulting empty take is reported through Done.
func (r *Recorder) RequestStop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active || r.stopPending {
		return
	}

	if !r.originSet {
		r.finalizeLocked()
		return
	}

	offset := r.lastEndRel + int64(time.Since(r.lastWall).Seconds()*r.format.SampleRate+0.5)
	r.stopAtLocked(offset)
}

// stopAtLocked arms the pending stop offset. Once set it is immutable until
// the session is destroyed. Caller holds r.mu.
func (r *Recorder) stopAtLocked(offset int64) {
	if offset < 0 {
		offset = 0
	}
	r.stopPending = true
	r.stopOffset = offset
	r.log.Info("recording stop requested at relative sample %d", offset)
}

// Path returns the output path of the current or most recent session.
func (r *Recorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// IsRecording returns whether a session is currently active.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Done returns the finalize-complete notification channel for the current
// session. It receives exactly one Result after Start.
func (r *Recorder) Done() <-chan Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doneCh
}

// handleBuffer runs in the capture callback context. It must stay bounded:
// one WAV write per buffer, and finalization is handed off rather than
// performed inline (stopping the stream from inside its own callback would
// deadlock).
func (r *Recorder) handleBuffer(buf *audio.FrameBuffer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active {
		return
	}

	var relStart int64
	if !r.originSet {
		r.origin = buf.Clock
		r.originSet = true
		relStart = 0
	} else if rel, ok := buf.Clock.ElapsedFrames(r.origin, r.format.SampleRate); ok {
		relStart = rel
	} else {
		// No valid clock source: degrade to the running frame counter.
		// Duration may drift by up to one buffer's worth of frames.
		relStart = r.fallbackFrames
	}
	r.fallbackFrames += int64(buf.Frames)

	// Correlation point for RequestStop: this buffer ends at a known
	// relative sample position, delivered at roughly the capture instant of
	// its last frame.
	r.lastWall = time.Now()
	r.lastEndRel = relStart + int64(buf.Frames)

	if !r.stopPending {
		r.writeLocked(buf)
		return
	}

	switch {
	case r.stopOffset <= relStart:
		// Stop point already passed: write nothing.
	case r.stopOffset < relStart+int64(buf.Frames):
		// Stop point falls strictly inside this buffer: write only the
		// frames before it, preserving the channel layout.
		r.writeLocked(buf.Trim(int(r.stopOffset - relStart)))
	default:
		r.writeLocked(buf)
		return
	}

	r.finalizeLocked()
}

// writeLocked appends one buffer to the encoder. A write failure is logged
// and the buffer dropped; it never aborts the session. Caller holds r.mu.
func (r *Recorder) writeLocked(buf *audio.FrameBuffer) {
	if buf.Frames == 0 {
		return
	}
	intBuf := &gaudio.IntBuffer{
		Format: &gaudio.Format{
			NumChannels: buf.Channels,
			SampleRate:  int(buf.SampleRate),
		},
		Data:           buf.IntSamples(),
		SourceBitDepth: buf.Layout.BitDepth(),
	}
	if err := r.enc.Write(intBuf); err != nil {
		r.log.Error("buffer write failed, dropping %d frames: %v", buf.Frames, err)
		return
	}
	r.framesWritten += int64(buf.Frames)
}

// finalizeLocked marks the session inactive and hands the teardown (encoder
// close, tap unregistration, completion notification) to the control side.
// Caller holds r.mu.
func (r *Recorder) finalizeLocked() {
	r.active = false
	path := r.path
	frames := r.framesWritten
	enc := r.enc
	file := r.file
	done := r.doneCh
	r.enc = nil
	r.file = nil

	go func() {
		var err error
		if cerr := enc.Close(); cerr != nil {
			err = fmt.Errorf("failed to finalize capture file: %w", cerr)
		}
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close capture file: %w", cerr)
		}
		if derr := r.source.DisableRecording(); derr != nil && err == nil {
			err = derr
		}
		if err != nil {
			r.log.Error("recording finalize: %v", err)
		} else {
			r.log.Info("recording finalized: %s (%d frames)", filepath.Base(path), frames)
		}
		done <- Result{Path: path, Frames: frames, Err: err}
	}()
}
