package library

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/wav"

	"github.com/pmoneynz/QuickLoops/internal/logger"
)

// ErrDuplicateName is returned by Export when the target name is taken.
var ErrDuplicateName = fmt.Errorf("a loop with that name already exists")

// ErrNotFound is returned when a referenced loop or its file is missing.
var ErrNotFound = fmt.Errorf("loop not found")

const storeFilename = "loops.json"

// Loop is one saved loop's metadata record. The document is consumed by
// external library browsers, so field names and units are part of the format:
// duration in seconds, size in bytes.
type Loop struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Filename    string    `json:"filename"`
	CreatedDate time.Time `json:"created_date"`
	Duration    float64   `json:"duration"`
	FileSize    int64     `json:"file_size"`
}

// Store manages the loops directory and its ordered metadata document.
type Store struct {
	mu    sync.Mutex
	dir   string
	log   *logger.Logger
	loops []Loop
}

// Open loads the metadata store from the given directory, creating the
// directory if needed. A missing or malformed document starts empty.
func Open(dir string, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create loops directory: %w", err)
	}

	s := &Store{dir: dir, log: log}

	data, err := os.ReadFile(filepath.Join(dir, storeFilename))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("failed to read loop store: %v", err)
		}
		return s, nil
	}
	if err := json.Unmarshal(data, &s.loops); err != nil {
		log.Warn("malformed loop store, starting empty: %v", err)
		s.loops = nil
	}
	return s, nil
}

// Dir returns the loops directory.
func (s *Store) Dir() string {
	return s.dir
}

// Loops returns the saved loops in insertion order.
func (s *Store) Loops() []Loop {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Loop, len(s.loops))
	copy(out, s.loops)
	return out
}

// Get returns the loop with the given id.
func (s *Store) Get(id string) (Loop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.loops {
		if l.ID == id {
			return l, nil
		}
	}
	return Loop{}, ErrNotFound
}

// FilePath returns the on-disk path for the loop's audio file, verifying
// the file still exists.
func (s *Store) FilePath(id string) (string, error) {
	loop, err := s.Get(id)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, loop.Filename)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, loop.Filename)
	}
	return path, nil
}

// Save copies the temporary capture into the loops directory under the
// user-supplied name, uniquifying against existing loops ("Take 1" becomes
// "Take 1_1"), and appends a metadata record.
func (s *Store) Save(tempPath, name string) (Loop, error) {
	return s.save(tempPath, name, true)
}

// Export saves without uniquifying: a taken name returns ErrDuplicateName.
func (s *Store) Export(tempPath, name string) (Loop, error) {
	return s.save(tempPath, name, false)
}

func (s *Store) save(tempPath, name string, uniquify bool) (Loop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name = sanitizeName(name)
	if uniquify {
		name = s.uniquifyLocked(name)
	} else if s.nameTakenLocked(name) {
		return Loop{}, ErrDuplicateName
	}

	filename := name + ".wav"
	dest := filepath.Join(s.dir, filename)
	if err := copyFile(tempPath, dest); err != nil {
		return Loop{}, fmt.Errorf("failed to store loop file: %w", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return Loop{}, fmt.Errorf("failed to stat loop file: %w", err)
	}

	duration, err := probeDuration(dest)
	if err != nil {
		s.log.Warn("failed to probe duration of %s: %v", filename, err)
	}

	loop := Loop{
		ID:          fmt.Sprintf("loop-%d", time.Now().UnixNano()),
		Name:        name,
		Filename:    filename,
		CreatedDate: time.Now(),
		Duration:    duration.Seconds(),
		FileSize:    info.Size(),
	}
	s.loops = append(s.loops, loop)

	if err := s.persistLocked(); err != nil {
		return Loop{}, err
	}
	s.log.Info("saved loop %q (%s, %s)", name, FormatDuration(duration.Seconds()), FormatSize(info.Size()))
	return loop, nil
}

// Remove deletes a loop record and its audio file.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, l := range s.loops {
		if l.ID != id {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, l.Filename)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove loop file: %w", err)
		}
		s.loops = append(s.loops[:i], s.loops[i+1:]...)
		return s.persistLocked()
	}
	return ErrNotFound
}

func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(s.loops, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal loop store: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, storeFilename), data, 0644); err != nil {
		return fmt.Errorf("failed to write loop store: %w", err)
	}
	return nil
}

func (s *Store) nameTakenLocked(name string) bool {
	for _, l := range s.loops {
		if l.Name == name {
			return true
		}
	}
	if _, err := os.Stat(filepath.Join(s.dir, name+".wav")); err == nil {
		return true
	}
	return false
}

// uniquifyLocked appends _1, _2, ... until the name is free in both the
// metadata and the directory.
func (s *Store) uniquifyLocked(name string) string {
	if !s.nameTakenLocked(name) {
		return name
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d", name, i)
		if !s.nameTakenLocked(candidate) {
			return candidate
		}
	}
}

// sanitizeName strips characters that are unsafe in filenames and trims
// the result. An empty result becomes "Untitled".
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	cleaned := strings.TrimSpace(b.String())
	cleaned = strings.Trim(cleaned, ".")
	if cleaned == "" {
		return "Untitled"
	}
	return cleaned
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

func probeDuration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dur, err := dec.Duration()
	if err != nil {
		return 0, err
	}
	return dur, nil
}

// FormatDuration renders seconds as m:ss for the UI layer.
func FormatDuration(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds + 0.5)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// FormatSize renders a byte count with a binary-ish unit, one decimal.
func FormatSize(bytes int64) string {
	switch {
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(bytes)/(1<<10))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
