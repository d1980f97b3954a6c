package audio

import "time"

// Clock is the timestamp attached to a captured buffer. It carries a
// device-relative sample counter and/or a host-time reference; either may
// be the only valid one, and code must tolerate neither being valid.
type Clock struct {
	SampleTime      float64
	SampleTimeValid bool
	HostTime        time.Duration
	HostTimeValid   bool
}

// ElapsedFrames reconciles c against an origin clock into an elapsed frame
// count. The sample counter is preferred; when only host time is valid on
// both sides, elapsed seconds are converted at sampleRate. Returns ok=false
// when neither source can produce a result.
func (c Clock) ElapsedFrames(origin Clock, sampleRate float64) (int64, bool) {
	if c.SampleTimeValid && origin.SampleTimeValid {
		return int64(c.SampleTime - origin.SampleTime), true
	}
	if c.HostTimeValid && origin.HostTimeValid {
		elapsed := (c.HostTime - origin.HostTime).Seconds()
		return int64(elapsed*sampleRate + 0.5), true
	}
	return 0, false
}

// Valid reports whether at least one clock source is usable.
func (c Clock) Valid() bool {
	return c.SampleTimeValid || c.HostTimeValid
}
