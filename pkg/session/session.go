// Package session wires a tour, its playback machine, audio deck and location source into one
// screen lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"audiotour/pkg/audio"
	"audiotour/pkg/config"
	"audiotour/pkg/geo"
	"audiotour/pkg/location"
	"audiotour/pkg/playback"
	"audiotour/pkg/progress"
	"audiotour/pkg/store"
	"audiotour/pkg/tour"
)

// Options configures Open. Config and Content are required.
type Options struct {
	Config  *config.Config
	Content *tour.Content
	Store   store.Store // nil keeps state in memory

	// Source overrides the configured location provider.
	Source location.Source
	// Players overrides the audio deck.
	Players  playback.Deck
	Clock    playback.Clock
	Observer playback.Observer // notified in addition to the trip history
}

// Session is one open tour screen.
type Session struct {
	id        string
	cfg       *config.Config
	seq       *tour.Sequence
	machine   *playback.Machine
	deck      *audio.Deck // nil when players were supplied
	players   playback.Deck
	source    location.Source
	st        store.Store
	startedAt time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Open starts a session. It fails when the tour content is incomplete; location problems are
// reported to the machine and never fail the session.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.Config == nil {
		return nil, errors.New("session: nil config")
	}
	cfg := opts.Config

	seq, err := tour.Build(opts.Content)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}

	st := opts.Store
	if st == nil {
		st = store.NewMemoryStore()
	}

	s := &Session{
		id:        uuid.NewString(),
		cfg:       cfg,
		seq:       seq,
		st:        st,
		players:   opts.Players,
		startedAt: time.Now(),
	}

	mode := playback.ModeLive
	if cfg.Tour.Preview {
		mode = playback.ModePreview
	}

	if s.players == nil {
		s.deck = audio.NewDeck(ctx, cfg.Audio, seq, st)
		s.players = s.deck.Players()
	}

	rec := newRecorder(s.id, seq, st)
	observers := playback.Observers{rec}
	if opts.Observer != nil {
		observers = append(observers, opts.Observer)
	}

	mopts := playback.Options{
		Mode:     mode,
		Settings: settingsFrom(cfg.Playback),
		Clock:    opts.Clock,
		Observer: observers,
	}
	if mode == playback.ModeLive {
		mopts.Progress = progress.NewAdapter(st)
	}

	m, err := playback.New(seq, s.players, mopts)
	if err != nil {
		s.closeDeck()
		return nil, fmt.Errorf("session: %w", err)
	}
	s.machine = m
	if s.deck != nil {
		s.deck.SetListener(m)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		rec.run(runCtx)
	}()
	go func() {
		defer s.wg.Done()
		m.Run(runCtx)
	}()

	if mode == playback.ModeLive {
		s.source = opts.Source
		if s.source == nil {
			src, err := location.NewSource(cfg.Location, Route(seq))
			if err != nil {
				slog.Warn("Session: Location source unavailable", "error", err)
				m.LocationError(err)
			}
			s.source = src
		}
		if s.source != nil {
			s.startLocation(ctx, runCtx)
		}
	}

	slog.Info("Session: Opened", "session", s.id, "tour", seq.ID(), "mode", mode, "entries", seq.Len())
	return s, nil
}

// startLocation subscribes to the source, waits once for readiness and pumps readings into
// the machine until runCtx is cancelled.
func (s *Session) startLocation(ctx, runCtx context.Context) {
	ch, err := s.source.Watch(runCtx)
	if err != nil {
		slog.Warn("Session: Failed to watch location", "error", err)
		s.machine.LocationError(err)
		return
	}

	if err := location.AwaitReady(ctx, s.source, s.cfg.Location.ReadyTimeout.Std()); err != nil {
		slog.Warn("Session: Location not ready", "error", err)
		s.machine.LocationError(err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for u := range ch {
			switch {
			case u.Err != nil:
				s.machine.LocationError(u.Err)
			case u.Fix != nil:
				s.machine.UpdateLocation(u.Fix.Point)
			}
		}
	}()
}

// Close stops location watching and the event loop and silences the deck.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		if s.source != nil {
			if err := s.source.Close(); err != nil {
				slog.Warn("Session: Failed to close location source", "error", err)
			}
		}
		s.wg.Wait()
		for _, p := range s.players {
			p.Pause()
		}
		s.closeDeck()
		slog.Info("Session: Closed", "session", s.id, "tour", s.seq.ID(), "duration", time.Since(s.startedAt).Round(time.Second))
	})
	return nil
}

func (s *Session) closeDeck() {
	if s.deck != nil {
		s.deck.Close()
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Machine returns the playback machine.
func (s *Session) Machine() *playback.Machine { return s.machine }

// Sequence returns the tour sequence.
func (s *Session) Sequence() *tour.Sequence { return s.seq }

// StartedAt returns when the session was opened.
func (s *Session) StartedAt() time.Time { return s.startedAt }

// Deck returns the audio deck, or nil when players were supplied.
func (s *Session) Deck() *audio.Deck { return s.deck }

// Source returns the location source, or nil in preview mode.
func (s *Session) Source() location.Source { return s.source }

// Manual returns the source when it accepts readings from the shell.
func (s *Session) Manual() (*location.Manual, bool) {
	m, ok := s.source.(*location.Manual)
	return m, ok
}

// Events returns the trip history of the tour, oldest first.
func (s *Session) Events(ctx context.Context, limit int) ([]store.TourEvent, error) {
	return s.st.ListEvents(ctx, s.seq.ID(), limit)
}

// Route returns the coordinates of the real stops, in order.
func Route(seq *tour.Sequence) []geo.Point {
	var out []geo.Point
	for _, e := range seq.Entries() {
		if e.Kind == tour.KindStop && e.Coords != nil {
			out = append(out, *e.Coords)
		}
	}
	return out
}

func settingsFrom(p config.PlaybackConfig) *playback.Settings {
	s := playback.DefaultSettings()
	s.Radii = geo.Radii{Arrive: p.ArriveRadius.Meters(), Approach: p.ApproachRadius.Meters()}
	if p.DwellThreshold > 0 {
		s.Dwell = p.DwellThreshold.Std()
	}
	if p.ArrivedDelay > 0 {
		s.ArrivedDelay = p.ArrivedDelay.Std()
	}
	if p.BannerTTL > 0 {
		s.BannerTTL = p.BannerTTL.Std()
	}
	if p.ArriveMessage != "" {
		s.ArriveMessage = p.ArriveMessage
	}
	if p.ApproachMessage != "" {
		s.ApproachMessage = p.ApproachMessage
	}
	return &s
}
