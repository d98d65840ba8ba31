// Package audio provides the five playback units of a tour on top of gopxl/beep.
package audio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"

	"audiotour/pkg/playback"
)

const targetSampleRate = beep.SampleRate(48000)

var (
	speakerMu    sync.Mutex
	speakerReady bool
)

// ensureSpeaker initializes the shared speaker once per process at 48kHz.
func ensureSpeaker() (beep.SampleRate, error) {
	speakerMu.Lock()
	defer speakerMu.Unlock()
	if !speakerReady {
		if err := speaker.Init(targetSampleRate, targetSampleRate.N(time.Second/10)); err != nil {
			slog.Error("Failed to initialize speaker", "error", err)
			return 0, err
		}
		speakerReady = true
	}
	return targetSampleRate, nil
}

// Unit is one addressable audio unit. It implements playback.Player.
type Unit struct {
	seg  playback.Segment
	deck *Deck

	mu       sync.Mutex
	src      string
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	vol      *effects.Volume
	fade     *Fade
	gen      uint64 // identifies the attached speaker chain
	stopTick chan struct{}
}

var _ playback.Player = (*Unit)(nil)

func newUnit(seg playback.Segment, d *Deck) *Unit {
	return &Unit{seg: seg, deck: d}
}

// Load decodes src (relative to the media root) and detaches any previous stream.
func (u *Unit) Load(src string) error {
	path := ResolvePath(u.deck.cfg.MediaRoot, src)
	streamer, format, err := DecodeMedia(path)

	u.mu.Lock()
	defer u.mu.Unlock()

	u.detachLocked()
	if u.streamer != nil {
		u.streamer.Close()
		u.streamer = nil
	}
	u.src = src

	if err != nil {
		return fmt.Errorf("audio: failed to load %s for %s: %w", path, u.seg, err)
	}
	u.streamer = streamer
	u.format = format
	slog.Debug("Audio: Loaded", "segment", u.seg, "path", path, "duration", format.SampleRate.D(streamer.Len()))
	return nil
}

// Source returns the media reference last passed to Load.
func (u *Unit) Source() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.src
}

// Play starts or resumes the unit.
func (u *Unit) Play() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.streamer == nil {
		return fmt.Errorf("audio: %s has no media loaded", u.seg)
	}

	if u.ctrl != nil {
		speaker.Lock()
		u.ctrl.Paused = false
		speaker.Unlock()
		u.startTickerLocked()
		return nil
	}

	sr, err := ensureSpeaker()
	if err != nil {
		return err
	}

	var s beep.Streamer = u.streamer
	if u.format.SampleRate != sr {
		s = beep.Resample(3, u.format.SampleRate, sr, s)
	}
	u.fade = NewFade(s, sr, u.deck.cfg.FadeIn.Std())

	vol := u.deck.Volume()
	u.vol = &effects.Volume{
		Streamer: u.fade,
		Base:     2,
		Volume:   volumeToPower(vol),
		Silent:   vol <= 0.01,
	}
	u.ctrl = &beep.Ctrl{Streamer: u.vol}
	u.gen++
	gen := u.gen

	speaker.Play(beep.Seq(u.ctrl, beep.Callback(func() {
		// Runs on the speaker goroutine with the speaker lock held.
		go u.finished(gen)
	})))
	u.startTickerLocked()

	slog.Debug("Audio: Playing", "segment", u.seg, "src", u.src)
	return nil
}

// finished handles the end of the chain identified by gen.
func (u *Unit) finished(gen uint64) {
	u.mu.Lock()
	if gen != u.gen {
		u.mu.Unlock()
		return // detached by Load or Close
	}
	u.ctrl = nil
	u.vol = nil
	u.gen++
	u.stopTickerLocked()
	if u.streamer != nil {
		// Rewind so a later Play starts over.
		if err := u.streamer.Seek(0); err != nil {
			slog.Warn("Audio: Rewind failed", "segment", u.seg, "error", err)
		}
	}
	u.mu.Unlock()

	if l := u.deck.Listener(); l != nil {
		l.SegmentEnded(u.seg)
	}
}

// Pause halts the unit, keeping its position.
func (u *Unit) Pause() {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.ctrl != nil {
		speaker.Lock()
		u.ctrl.Paused = true
		speaker.Unlock()
	}
	u.stopTickerLocked()
}

// Seek moves to pos, clamped to the media length.
func (u *Unit) Seek(pos time.Duration) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.streamer == nil {
		return nil
	}
	n := u.format.SampleRate.N(pos)
	if n < 0 {
		n = 0
	}
	if l := u.streamer.Len(); n > l {
		n = l
	}

	speaker.Lock()
	defer speaker.Unlock()
	if err := u.streamer.Seek(n); err != nil {
		return fmt.Errorf("audio: seek %s: %w", u.seg, err)
	}
	if u.fade != nil {
		u.fade.Reset()
	}
	return nil
}

// Elapsed returns the current playback position.
func (u *Unit) Elapsed() time.Duration {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.streamer == nil || u.format.SampleRate == 0 {
		return 0
	}
	speaker.Lock()
	defer speaker.Unlock()
	return u.format.SampleRate.D(u.streamer.Position())
}

// Total returns the length of the loaded media.
func (u *Unit) Total() time.Duration {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.streamer == nil || u.format.SampleRate == 0 {
		return 0
	}
	return u.format.SampleRate.D(u.streamer.Len())
}

// Close detaches the unit from the speaker and releases its media.
func (u *Unit) Close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.detachLocked()
	if u.streamer != nil {
		u.streamer.Close()
		u.streamer = nil
	}
}

func (u *Unit) applyVolume(vol float64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.vol == nil {
		return
	}
	speaker.Lock()
	u.vol.Volume = volumeToPower(vol)
	u.vol.Silent = vol <= 0.01
	speaker.Unlock()
}

// detachLocked removes the current chain from the speaker without firing completion.
func (u *Unit) detachLocked() {
	if u.ctrl != nil {
		speaker.Lock()
		u.ctrl.Streamer = nil // ends the sequence; its callback sees a stale gen
		speaker.Unlock()
		u.ctrl = nil
		u.vol = nil
		u.fade = nil
		u.gen++
	}
	u.stopTickerLocked()
}

func (u *Unit) startTickerLocked() {
	interval := u.deck.cfg.ProgressInterval.Std()
	if u.stopTick != nil || interval <= 0 {
		return
	}
	stop := make(chan struct{})
	u.stopTick = stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if l := u.deck.Listener(); l != nil {
					l.SegmentProgress(u.seg, u.Elapsed())
				}
			}
		}
	}()
}

func (u *Unit) stopTickerLocked() {
	if u.stopTick != nil {
		close(u.stopTick)
		u.stopTick = nil
	}
}
