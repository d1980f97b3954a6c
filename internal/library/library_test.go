package library

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/pmoneynz/QuickLoops/internal/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	log, err := logger.New(logger.Config{LogDir: t.TempDir(), Level: logger.ERROR, RetentionDays: 1})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	t.Cleanup(func() { log.Close() })

	s, err := Open(t.TempDir(), log)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s
}

// writeTestWAV writes a mono 44.1k file with the given number of frames.
func writeTestWAV(t *testing.T, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, 44100, 16, 1, 1)
	buf := &gaudio.IntBuffer{
		Format:         &gaudio.Format{NumChannels: 1, SampleRate: 44100},
		Data:           make([]int, frames),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()
	return path
}

func TestSave_CopiesFileAndRecordsMetadata(t *testing.T) {
	s := newTestStore(t)
	temp := writeTestWAV(t, 44100)

	loop, err := s.Save(temp, "My Loop")
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if loop.Name != "My Loop" || loop.Filename != "My Loop.wav" {
		t.Errorf("unexpected record: %+v", loop)
	}
	if loop.Duration < 0.99 || loop.Duration > 1.01 {
		t.Errorf("Expected ~1s duration, got %v", loop.Duration)
	}
	if loop.FileSize == 0 {
		t.Error("Expected non-zero file size")
	}

	if _, err := os.Stat(filepath.Join(s.Dir(), "My Loop.wav")); err != nil {
		t.Errorf("loop file missing: %v", err)
	}
	if got := s.Loops(); len(got) != 1 || got[0].ID != loop.ID {
		t.Errorf("store contents: %+v", got)
	}

	// The original capture stays where it was; Save copies.
	if _, err := os.Stat(temp); err != nil {
		t.Errorf("temp capture removed: %v", err)
	}
}

func TestSave_UniquifiesDuplicateNames(t *testing.T) {
	s := newTestStore(t)

	first, err := s.Save(writeTestWAV(t, 1000), "Take 1")
	if err != nil {
		t.Fatalf("first Save failed: %v", err)
	}
	second, err := s.Save(writeTestWAV(t, 2000), "Take 1")
	if err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	third, err := s.Save(writeTestWAV(t, 3000), "Take 1")
	if err != nil {
		t.Fatalf("third Save failed: %v", err)
	}

	if first.Name != "Take 1" || second.Name != "Take 1_1" || third.Name != "Take 1_2" {
		t.Errorf("Expected Take 1, Take 1_1, Take 1_2; got %q %q %q", first.Name, second.Name, third.Name)
	}
	if len(s.Loops()) != 3 {
		t.Errorf("Expected 3 loops, got %d", len(s.Loops()))
	}
}

func TestExport_RejectsDuplicateName(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.Export(writeTestWAV(t, 1000), "Keeper"); err != nil {
		t.Fatalf("first Export failed: %v", err)
	}
	_, err := s.Export(writeTestWAV(t, 2000), "Keeper")
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("Expected ErrDuplicateName, got %v", err)
	}
	if len(s.Loops()) != 1 {
		t.Error("failed export must not add a record")
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"My Loop", "My Loop"},
		{"a/b\\c:d", "a_b_c_d"},
		{"  padded  ", "padded"},
		{"...dots...", "dots"},
		{"<>:\"|?*", ""},
		{"", ""},
	}

	for _, tt := range tests {
		want := tt.expected
		if want == "" {
			want = "Untitled"
		}
		if got := sanitizeName(tt.in); got != want {
			t.Errorf("sanitizeName(%q) = %q, want %q", tt.in, got, want)
		}
	}
}

func TestStore_PersistsAcrossOpens(t *testing.T) {
	log, err := logger.New(logger.Config{LogDir: t.TempDir(), Level: logger.ERROR, RetentionDays: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()
	dir := t.TempDir()

	s1, err := Open(dir, log)
	if err != nil {
		t.Fatal(err)
	}
	saved, err := s1.Save(writeTestWAV(t, 500), "Persisted")
	if err != nil {
		t.Fatal(err)
	}

	s2, err := Open(dir, log)
	if err != nil {
		t.Fatal(err)
	}
	loops := s2.Loops()
	if len(loops) != 1 || loops[0].ID != saved.ID || loops[0].Name != "Persisted" {
		t.Errorf("reloaded store contents: %+v", loops)
	}
}

func TestOpen_MalformedStoreStartsEmpty(t *testing.T) {
	log, err := logger.New(logger.Config{LogDir: t.TempDir(), Level: logger.ERROR, RetentionDays: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "loops.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(dir, log)
	if err != nil {
		t.Fatalf("Open failed on malformed store: %v", err)
	}
	if len(s.Loops()) != 0 {
		t.Error("Expected empty store")
	}
}

func TestRemove(t *testing.T) {
	s := newTestStore(t)
	loop, err := s.Save(writeTestWAV(t, 1000), "Doomed")
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Remove(loop.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if len(s.Loops()) != 0 {
		t.Error("Expected empty store after Remove")
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), loop.Filename)); !os.IsNotExist(err) {
		t.Error("loop file must be deleted")
	}

	if err := s.Remove("loop-nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestFilePath(t *testing.T) {
	s := newTestStore(t)
	loop, err := s.Save(writeTestWAV(t, 1000), "Here")
	if err != nil {
		t.Fatal(err)
	}

	path, err := s.FilePath(loop.ID)
	if err != nil {
		t.Fatalf("FilePath failed: %v", err)
	}
	if filepath.Base(path) != "Here.wav" {
		t.Errorf("unexpected path %q", path)
	}

	// Remove the backing file behind the store's back.
	os.Remove(path)
	if _, err := s.FilePath(loop.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing file, got %v", err)
	}

	if _, err := s.FilePath("loop-nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds  float64
		expected string
	}{
		{0, "0:00"},
		{1.4, "0:01"},
		{59.6, "1:00"},
		{61, "1:01"},
		{600, "10:00"},
		{-5, "0:00"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.seconds); got != tt.expected {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.seconds, got, tt.expected)
		}
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 << 20, "5.0 MB"},
	}

	for _, tt := range tests {
		if got := FormatSize(tt.bytes); got != tt.expected {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.bytes, got, tt.expected)
		}
	}
}
