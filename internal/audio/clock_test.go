package audio

import (
	"testing"
	"time"
)

func TestElapsedFrames_SampleCounter(t *testing.T) {
	origin := Clock{SampleTime: 1000, SampleTimeValid: true}
	c := Clock{SampleTime: 45100, SampleTimeValid: true}

	frames, ok := c.ElapsedFrames(origin, 44100)
	if !ok {
		t.Fatal("expected valid result from sample counter")
	}
	if frames != 44100 {
		t.Errorf("Expected 44100 frames, got %d", frames)
	}
}

func TestElapsedFrames_HostTimeFallback(t *testing.T) {
	origin := Clock{HostTime: 2 * time.Second, HostTimeValid: true}
	c := Clock{HostTime: 3 * time.Second, HostTimeValid: true}

	frames, ok := c.ElapsedFrames(origin, 44100)
	if !ok {
		t.Fatal("expected valid result from host time")
	}
	if frames != 44100 {
		t.Errorf("Expected 44100 frames, got %d", frames)
	}
}

func TestElapsedFrames_PrefersSampleCounter(t *testing.T) {
	// Host times disagree with the sample counter; the counter wins.
	origin := Clock{
		SampleTime: 0, SampleTimeValid: true,
		HostTime: 0, HostTimeValid: true,
	}
	c := Clock{
		SampleTime: 512, SampleTimeValid: true,
		HostTime: 10 * time.Second, HostTimeValid: true,
	}

	frames, ok := c.ElapsedFrames(origin, 44100)
	if !ok || frames != 512 {
		t.Errorf("Expected 512 frames from counter, got %d (ok=%v)", frames, ok)
	}
}

func TestElapsedFrames_NoValidSource(t *testing.T) {
	origin := Clock{}
	c := Clock{}

	if _, ok := c.ElapsedFrames(origin, 44100); ok {
		t.Error("expected ok=false when neither clock source is valid")
	}
}

func TestElapsedFrames_MismatchedValidity(t *testing.T) {
	// Origin has only a counter, current has only host time: no common source.
	origin := Clock{SampleTime: 0, SampleTimeValid: true}
	c := Clock{HostTime: time.Second, HostTimeValid: true}

	if _, ok := c.ElapsedFrames(origin, 44100); ok {
		t.Error("expected ok=false with no common clock source")
	}
}

func TestClock_Valid(t *testing.T) {
	tests := []struct {
		name     string
		clock    Clock
		expected bool
	}{
		{"neither", Clock{}, false},
		{"counter only", Clock{SampleTimeValid: true}, true},
		{"host only", Clock{HostTimeValid: true}, true},
		{"both", Clock{SampleTimeValid: true, HostTimeValid: true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.clock.Valid() != tt.expected {
				t.Errorf("Expected Valid()=%v", tt.expected)
			}
		})
	}
}
