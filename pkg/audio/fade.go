package audio

import (
	"time"

	"github.com/gopxl/beep/v2"
)

// Fade ramps gain linearly from 0 to 1 over the first samples of a stream, so prompts do
// not start with a click.
//
// Fade is NOT internally synchronized. With the speaker package, Reset must be called while
// holding speaker.Lock().
type Fade struct {
	Streamer beep.Streamer

	gain float64
	step float64
}

// NewFade creates a fade-in of duration d at sample rate sr. d <= 0 disables it.
func NewFade(s beep.Streamer, sr beep.SampleRate, d time.Duration) *Fade {
	f := &Fade{Streamer: s, gain: 1}
	if n := sr.N(d); n > 0 {
		f.step = 1 / float64(n)
		f.gain = 0
	}
	return f
}

// Stream applies the current gain and advances the ramp.
func (f *Fade) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = f.Streamer.Stream(samples)
	if f.gain >= 1 {
		return n, ok
	}
	for i := 0; i < n; i++ {
		samples[i][0] *= f.gain
		samples[i][1] *= f.gain
		if f.gain < 1 {
			f.gain += f.step
			if f.gain > 1 {
				f.gain = 1
			}
		}
	}
	return n, ok
}

func (f *Fade) Err() error {
	return f.Streamer.Err()
}

// Reset restarts the ramp from silence.
func (f *Fade) Reset() {
	if f.step > 0 {
		f.gain = 0
	}
}
