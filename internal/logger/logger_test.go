package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLogger(t *testing.T, level Level) *Logger {
	t.Helper()
	l, err := New(Config{LogDir: t.TempDir(), Level: level, RetentionDays: 7})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func readLog(t *testing.T, l *Logger) string {
	t.Helper()
	path := filepath.Join(l.logDir, "quickloops-"+time.Now().Format("20060102")+".log")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	return string(data)
}

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{DEBUG, "DEBUG"},
		{INFO, "INFO"},
		{WARN, "WARN"},
		{ERROR, "ERROR"},
		{Level(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestLogger_WritesLeveledRecords(t *testing.T) {
	l := newTestLogger(t, DEBUG)

	l.Debug("debug %d", 1)
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message")

	content := readLog(t, l)
	for _, want := range []string{"[DEBUG] debug 1", "[INFO] info message", "[WARN] warn message", "[ERROR] error message"} {
		if !strings.Contains(content, want) {
			t.Errorf("log missing %q:\n%s", want, content)
		}
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	l := newTestLogger(t, WARN)

	l.Debug("hidden debug")
	l.Info("hidden info")
	l.Warn("visible warn")

	content := readLog(t, l)
	if strings.Contains(content, "hidden") {
		t.Errorf("records below WARN must be suppressed:\n%s", content)
	}
	if !strings.Contains(content, "visible warn") {
		t.Errorf("WARN record missing:\n%s", content)
	}
}

func TestLogger_SetLevel(t *testing.T) {
	l := newTestLogger(t, INFO)

	l.SetLevel(ERROR)
	if l.GetLevel() != ERROR {
		t.Errorf("Expected ERROR level, got %v", l.GetLevel())
	}

	l.Info("suppressed")
	if strings.Contains(readLog(t, l), "suppressed") {
		t.Error("INFO record must be suppressed after SetLevel(ERROR)")
	}
}

func TestLogger_CreatesLogDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	l, err := New(Config{LogDir: dir, Level: INFO, RetentionDays: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer l.Close()

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("log directory not created: %v", err)
	}
}
