package transport

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pmoneynz/QuickLoops/internal/logger"
	"github.com/pmoneynz/QuickLoops/internal/recording"
)

type fakeRec struct {
	startErr error
	starts   int
	stops    int
	path     string
	done     chan recording.Result
}

func newFakeRec(path string) *fakeRec {
	return &fakeRec{path: path, done: make(chan recording.Result, 1)}
}

func (f *fakeRec) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	return nil
}

func (f *fakeRec) RequestStop()                    { f.stops++ }
func (f *fakeRec) Path() string                    { return f.path }
func (f *fakeRec) Done() <-chan recording.Result   { return f.done }
func (f *fakeRec) finish(frames int64)             { f.done <- recording.Result{Path: f.path, Frames: frames} }

type fakePlayer struct {
	loadErr  error
	startErr error
	loads    int
	starts   int
	stops    int
	clears   int
	loaded   string
}

func (f *fakePlayer) Load(path string) error {
	if f.loadErr != nil {
		return f.loadErr
	}
	f.loads++
	f.loaded = path
	return nil
}

func (f *fakePlayer) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	return nil
}

func (f *fakePlayer) Stop()  { f.stops++ }
func (f *fakePlayer) Clear() { f.clears++ }

func newTestMachine(t *testing.T, rec Recorder, pl Player) *Machine {
	t.Helper()
	log, err := logger.New(logger.Config{LogDir: t.TempDir(), Level: logger.ERROR, RetentionDays: 1})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	cfg := Config{ContinueDelay: 5 * time.Millisecond, FinalizeWait: 500 * time.Millisecond}
	return New(rec, pl, log, cfg)
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{Stopped, "Stopped"},
		{Recording, "Recording"},
		{Playing, "Playing"},
		{State(9), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestGuards_EveryCombination(t *testing.T) {
	combos := []struct {
		state     State
		hasAudio  bool
		canRecord bool
		canPlay   bool
		canStop   bool
		canClear  bool
	}{
		{Stopped, false, true, false, false, false},
		{Stopped, true, true, true, false, true},
		{Recording, false, false, false, true, false},
		{Recording, true, false, false, true, false},
		{Playing, false, false, false, true, false},
		{Playing, true, false, false, true, false},
	}

	for _, c := range combos {
		m := newTestMachine(t, newFakeRec(""), &fakePlayer{})
		m.state = c.state
		m.hasAudio = c.hasAudio

		if got := m.CanRecord(); got != c.canRecord {
			t.Errorf("state=%v hasAudio=%v: CanRecord=%v, want %v", c.state, c.hasAudio, got, c.canRecord)
		}
		if got := m.CanPlay(); got != c.canPlay {
			t.Errorf("state=%v hasAudio=%v: CanPlay=%v, want %v", c.state, c.hasAudio, got, c.canPlay)
		}
		if got := m.CanStop(); got != c.canStop {
			t.Errorf("state=%v hasAudio=%v: CanStop=%v, want %v", c.state, c.hasAudio, got, c.canStop)
		}
		if got := m.CanClear(); got != c.canClear {
			t.Errorf("state=%v hasAudio=%v: CanClear=%v, want %v", c.state, c.hasAudio, got, c.canClear)
		}
	}
}

func TestActionsOutsideGuardAreNoOps(t *testing.T) {
	// play with no audio, clear with no audio, stop while stopped: nothing
	// must reach the collaborators.
	rec := newFakeRec("")
	pl := &fakePlayer{}
	m := newTestMachine(t, rec, pl)

	if err := m.Play(); err != nil {
		t.Errorf("off-guard Play returned error: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Errorf("off-guard Stop returned error: %v", err)
	}
	if err := m.Clear(); err != nil {
		t.Errorf("off-guard Clear returned error: %v", err)
	}

	if pl.loads != 0 || pl.starts != 0 || pl.stops != 0 || pl.clears != 0 {
		t.Errorf("collaborators touched by off-guard actions: %+v", pl)
	}
	if st := m.Status(); st.State != Stopped || st.HasAudio {
		t.Errorf("state changed by off-guard actions: %+v", st)
	}

	// record while playing is a no-op too.
	m.state = Playing
	if err := m.Record(); err != nil {
		t.Errorf("off-guard Record returned error: %v", err)
	}
	if rec.starts != 0 {
		t.Error("recorder started while playing")
	}
}

func TestRecord_StartAndStopWithAutoContinue(t *testing.T) {
	rec := newFakeRec("/tmp/take.wav")
	pl := &fakePlayer{}
	m := newTestMachine(t, rec, pl)

	if err := m.Record(); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if st := m.Status(); st.State != Recording {
		t.Fatalf("Expected Recording, got %v", st.State)
	}

	// Second record press ends the take and chains into playback.
	if err := m.Record(); err != nil {
		t.Fatalf("Record (stop) failed: %v", err)
	}
	st := m.Status()
	if st.State != Stopped || !st.HasAudio {
		t.Fatalf("Expected Stopped(hasAudio), got %+v", st)
	}
	if rec.stops != 1 {
		t.Errorf("Expected one stop request, got %d", rec.stops)
	}

	rec.finish(44100)

	deadline := time.After(time.Second)
	for m.Status().State != Playing {
		select {
		case <-deadline:
			t.Fatal("auto-continuation never started playback")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if pl.loaded != "/tmp/take.wav" {
		t.Errorf("player loaded %q", pl.loaded)
	}
}

func TestStop_RecordingHasNoAutoContinuation(t *testing.T) {
	rec := newFakeRec("/tmp/take.wav")
	pl := &fakePlayer{}
	m := newTestMachine(t, rec, pl)

	m.Record()
	m.Stop()

	st := m.Status()
	if st.State != Stopped || !st.HasAudio {
		t.Fatalf("Expected Stopped(hasAudio), got %+v", st)
	}

	rec.finish(44100)
	time.Sleep(50 * time.Millisecond)

	if pl.starts != 0 {
		t.Error("explicit stop must not auto-chain into playback")
	}
}

func TestClear_BeforeFinalizeDiscardsTake(t *testing.T) {
	rec := newFakeRec("/tmp/take.wav")
	pl := &fakePlayer{}
	m := newTestMachine(t, rec, pl)

	m.Record()
	m.Record() // stop with auto-continuation pending

	// Clear lands before the recorder finishes finalizing the file.
	if err := m.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	rec.finish(44100)
	time.Sleep(50 * time.Millisecond)

	st := m.Status()
	if st.HasAudio || st.LoopPath != "" {
		t.Errorf("finalize resurrected a cleared take: %+v", st)
	}
	if st.State != Stopped {
		t.Errorf("Expected Stopped, got %v", st.State)
	}
	if pl.loads != 0 || pl.starts != 0 {
		t.Errorf("cleared take must not auto-play: %+v", pl)
	}
}

func TestRecord_OpenFailureStaysStopped(t *testing.T) {
	rec := newFakeRec("")
	rec.startErr = errors.New("disk full")
	m := newTestMachine(t, rec, &fakePlayer{})

	if err := m.Record(); err == nil {
		t.Fatal("Expected Record to surface the open failure")
	}
	if st := m.Status(); st.State != Stopped || st.HasAudio {
		t.Errorf("Expected unchanged Stopped state, got %+v", st)
	}
}

func TestPlay_TogglesAndStops(t *testing.T) {
	pl := &fakePlayer{}
	m := newTestMachine(t, newFakeRec(""), pl)
	m.hasAudio = true
	m.loopPath = "/tmp/loop.wav"

	if err := m.Play(); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if m.Status().State != Playing {
		t.Fatal("Expected Playing")
	}

	// Second play press stops.
	m.Play()
	if st := m.Status(); st.State != Stopped || !st.HasAudio {
		t.Errorf("Expected Stopped(hasAudio), got %+v", st)
	}
	if pl.stops != 1 {
		t.Errorf("Expected one player stop, got %d", pl.stops)
	}

	// stop while playing also works.
	m.Play()
	m.Stop()
	if m.Status().State != Stopped {
		t.Error("Expected Stopped after Stop")
	}
}

func TestPlay_LoadFailureStaysStopped(t *testing.T) {
	pl := &fakePlayer{loadErr: errors.New("unreadable")}
	m := newTestMachine(t, newFakeRec(""), pl)
	m.hasAudio = true
	m.loopPath = "/tmp/loop.wav"

	if err := m.Play(); err == nil {
		t.Fatal("Expected Play to surface the load failure")
	}
	if st := m.Status(); st.State != Stopped || !st.HasAudio {
		t.Errorf("Expected prior state preserved, got %+v", st)
	}
}

func TestClear_DiscardsAssetAndBackingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loop.wav")
	if err := os.WriteFile(path, []byte("pcm"), 0644); err != nil {
		t.Fatal(err)
	}

	pl := &fakePlayer{}
	m := newTestMachine(t, newFakeRec(""), pl)
	m.hasAudio = true
	m.loopPath = path

	if err := m.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	st := m.Status()
	if st.HasAudio || st.LoopPath != "" {
		t.Errorf("Expected empty transport, got %+v", st)
	}
	if pl.clears != 1 {
		t.Errorf("Expected player cleared once, got %d", pl.clears)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("backing file must be removed")
	}
}

func TestOnChange_FiresPerTransition(t *testing.T) {
	rec := newFakeRec("/tmp/take.wav")
	m := newTestMachine(t, rec, &fakePlayer{})

	var got []State
	m.SetOnChange(func(st Status) { got = append(got, st.State) })

	m.Record()
	m.Stop()

	want := []State{Recording, Stopped}
	if len(got) != len(want) {
		t.Fatalf("Expected %d notifications, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}
