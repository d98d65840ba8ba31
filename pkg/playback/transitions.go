package playback

import (
	"log/slog"
	"time"

	"audiotour/pkg/geo"
	"audiotour/pkg/logging"
	"audiotour/pkg/progress"
)

// handle is the single transition function. Every state change is traceable to one case.
func (m *Machine) handle(ev event) {
	wasPlaying := m.playing

	switch ev.kind {
	case evEvaluate:
		// Superseded by a later index change, or already decided by an intent.
		if ev.epoch != m.epoch || m.segment != SegmentNone {
			return
		}
		m.evaluate()
	case evLocation:
		m.onLocation(ev.loc)
	case evLocationError:
		m.onLocationError(ev.err)
	case evSegmentEnded:
		m.onSegmentEnded(ev.segment)
	case evSegmentProgress:
		m.onProgress(ev.segment, ev.elapsed)
	case evToggle:
		m.onToggle()
	case evSkipTo:
		m.skipTo(ev.index)
	case evStep:
		m.skipTo(m.index + ev.index)
	case evRestart:
		m.onRestart()
	case evSeek:
		m.onSeek(ev.elapsed)
	case evArrivedDelay:
		m.onArrivedDelay(ev)
	case evBannerExpired:
		m.onBannerExpired(ev)
	}

	m.reconcile()
	if m.playing != wasPlaying {
		m.observer.PlayingChanged(m.seq.ID(), m.segment, m.playing)
	}
	m.saveProgress()
	m.publish()
}

// enterIndex applies a stop-index change: everything stops and rewinds, pending delayed
// transitions die with the old epoch, and the decision for the new stop is queued.
func (m *Machine) enterIndex(i int) {
	m.epoch++
	m.cancelDelay()
	m.cancelBanner()

	m.index = i
	m.segment = SegmentNone
	m.playing = false
	m.narrationStarted = false

	for _, seg := range Segments {
		p := m.deck[seg]
		if p == nil {
			continue
		}
		p.Pause()
		if err := p.Seek(0); err != nil {
			slog.Warn("Playback: Rewind failed", "segment", seg, "error", err)
		}
	}
	m.running = SegmentNone

	if m.seq.IsRealStop(i) {
		if p := m.deck[SegmentNarration]; p != nil {
			e, _ := m.seq.At(i)
			if err := p.Load(e.Audio); err != nil {
				slog.Warn("Playback: Failed to load narration", "index", i, "audio", e.Audio, "error", err)
			}
		}
	}

	slog.Debug("Playback: Stop index changed", "tour", m.seq.ID(), "index", i, "epoch", m.epoch)
	m.post(event{kind: evEvaluate, epoch: m.epoch})
}

// evaluate picks the segment for the current index.
func (m *Machine) evaluate() {
	switch {
	case m.seq.IsFirst(m.index):
		m.activate(SegmentGreeting, false)
	case m.seq.IsLast(m.index):
		m.activate(SegmentEnding, true)
	default:
		m.decideStop()
	}
}

// decideStop applies the proximity rules at a real stop.
func (m *Machine) decideStop() {
	if m.isVisited(m.index) || m.mode == ModePreview {
		m.activate(SegmentNarration, false)
		return
	}

	e, _ := m.seq.At(m.index)
	if e.Coords == nil || m.location == nil {
		// Fail open rather than stall the tour.
		m.activate(SegmentNarration, true)
		return
	}

	dist := geo.Distance(*m.location, *e.Coords)
	zone := m.settings.Radii.Classify(dist)
	m.observer.LocationEvaluated(m.seq.ID(), m.index, dist, zone)

	switch zone {
	case geo.ZoneArrive:
		m.activate(SegmentArrived, true)
		m.showBanner(m.settings.ArriveMessage)
	case geo.ZoneApproach:
		m.activate(SegmentApproaching, true)
		m.showBanner(m.settings.ApproachMessage)
	default:
		m.activate(SegmentNarration, false)
	}
}

func (m *Machine) activate(seg Segment, playing bool) {
	m.segment = seg
	m.playing = playing
	if seg == SegmentNarration && playing {
		m.narrationStarted = true
	}
	slog.Debug("Playback: Segment activated", "tour", m.seq.ID(), "index", m.index, "segment", seg, "playing", playing)
	m.observer.SegmentActivated(m.seq.ID(), m.index, seg, playing)
}

// inFlight reports whether a proximity prompt or narration must not be interrupted by a
// new location reading.
func (m *Machine) inFlight() bool {
	switch m.segment {
	case SegmentApproaching, SegmentArrived:
		return true
	case SegmentNarration:
		return m.narrationStarted
	}
	return false
}

func (m *Machine) onLocation(p geo.Point) {
	if m.mode == ModePreview {
		return
	}
	m.location = &p
	logging.TraceDefault("Playback: Fix", "lat", p.Lat, "lon", p.Lon, "index", m.index, "segment", m.segment)

	// Bookends ignore location; SegmentNone means a decision is already queued.
	if !m.seq.IsRealStop(m.index) || m.segment == SegmentNone || m.inFlight() {
		return
	}
	m.decideStop()
}

func (m *Machine) onLocationError(err error) {
	slog.Warn("Playback: Location unavailable", "tour", m.seq.ID(), "error", err)
	m.location = nil
	m.observer.LocationLost(m.seq.ID(), err)
}

func (m *Machine) onSegmentEnded(seg Segment) {
	if seg != m.segment {
		slog.Debug("Playback: Ignoring completion of inactive segment", "segment", seg, "active", m.segment)
		return
	}
	switch seg {
	case SegmentGreeting:
		m.playing = false
		if m.seq.InRange(1) {
			m.enterIndex(1)
		}
	case SegmentApproaching:
		m.activate(SegmentArrived, true)
		m.showBanner(m.settings.ArriveMessage)
	case SegmentArrived:
		m.playing = false
		m.scheduleArrivedDelay()
	case SegmentNarration, SegmentEnding:
		m.playing = false
	}
}

func (m *Machine) onProgress(seg Segment, elapsed time.Duration) {
	if seg != SegmentNarration || m.segment != SegmentNarration || !m.narrationStarted || !m.seq.IsRealStop(m.index) {
		return
	}
	// A notification raced with a rewind; trust the lower reading.
	if p := m.deck[SegmentNarration]; p != nil {
		if e := p.Elapsed(); e < elapsed {
			elapsed = e
		}
	}
	if elapsed >= m.settings.Dwell {
		m.markVisited(m.index)
	}
}

// markVisited is the only place the visited set grows.
func (m *Machine) markVisited(i int) {
	if m.isVisited(i) {
		return
	}
	m.visited[i] = struct{}{}
	slog.Info("Playback: Stop visited", "tour", m.seq.ID(), "index", i)
	m.observer.StopVisited(m.seq.ID(), i)
}

func (m *Machine) isVisited(i int) bool {
	_, ok := m.visited[i]
	return ok
}

func (m *Machine) onToggle() {
	if m.segment == SegmentNone {
		m.segment = m.segmentFor(m.index)
		m.playing = false
	}

	// Tapping play while waiting after the arrival prompt starts the story right away instead
	// of replaying the prompt. See Snapshot.
	if m.delayToken != 0 {
		m.cancelDelay()
		m.cancelBanner()
		m.activate(SegmentNarration, true)
		return
	}

	m.playing = !m.playing
	if m.playing && m.segment == SegmentNarration {
		m.narrationStarted = true
	}
	slog.Debug("Playback: Toggled", "segment", m.segment, "playing", m.playing)
}

func (m *Machine) segmentFor(i int) Segment {
	switch {
	case m.seq.IsFirst(i):
		return SegmentGreeting
	case m.seq.IsLast(i):
		return SegmentEnding
	default:
		return SegmentNarration
	}
}

func (m *Machine) skipTo(i int) {
	if !m.seq.InRange(i) {
		slog.Debug("Playback: Ignoring out-of-range skip", "index", i, "len", m.seq.Len())
		return
	}
	if i == m.index {
		return
	}
	m.enterIndex(i)
}

func (m *Machine) onSeek(pos time.Duration) {
	p := m.deck[m.segment]
	if p == nil {
		return
	}
	if pos < 0 {
		pos = 0
	}
	if total := p.Total(); total > 0 && pos > total {
		pos = total
	}
	if err := p.Seek(pos); err != nil {
		slog.Warn("Playback: Seek failed", "segment", m.segment, "position", pos, "error", err)
		return
	}
	slog.Debug("Playback: Seek", "segment", m.segment, "position", pos)
}

func (m *Machine) onRestart() {
	m.visited = make(map[int]struct{})
	if m.progress != nil {
		m.progress.Delete(m.ctx, m.seq.ID())
	}
	m.lastSaved = progress.Default()
	slog.Info("Playback: Tour restarted", "tour", m.seq.ID())
	m.observer.Restarted(m.seq.ID())
	m.enterIndex(0)
}

// --- Delayed transitions ---

func (m *Machine) scheduleArrivedDelay() {
	m.cancelDelay()
	m.tokenSeq++
	token, epoch := m.tokenSeq, m.epoch
	m.delayToken = token
	m.delayTimer = m.clock.AfterFunc(m.settings.ArrivedDelay, func() {
		m.post(event{kind: evArrivedDelay, epoch: epoch, token: token})
	})
}

func (m *Machine) onArrivedDelay(ev event) {
	if ev.epoch != m.epoch || ev.token != m.delayToken {
		m.discardStale(ev)
		return
	}
	m.delayToken = 0
	m.delayTimer = nil
	m.cancelBanner()
	m.activate(SegmentNarration, true)
}

func (m *Machine) cancelDelay() {
	if m.delayTimer != nil {
		m.delayTimer.Stop()
		m.delayTimer = nil
	}
	m.delayToken = 0
}

func (m *Machine) showBanner(msg string) {
	m.cancelBanner()
	m.pulse++
	m.banner = &Banner{
		Message: msg,
		Expires: m.clock.Now().Add(m.settings.BannerTTL),
		Pulse:   m.pulse,
	}
	m.tokenSeq++
	token, epoch := m.tokenSeq, m.epoch
	m.bannerToken = token
	m.bannerTimer = m.clock.AfterFunc(m.settings.BannerTTL, func() {
		m.post(event{kind: evBannerExpired, epoch: epoch, token: token})
	})
}

func (m *Machine) onBannerExpired(ev event) {
	if ev.epoch != m.epoch || ev.token != m.bannerToken {
		m.discardStale(ev)
		return
	}
	m.bannerToken = 0
	m.bannerTimer = nil
	m.banner = nil
}

func (m *Machine) cancelBanner() {
	if m.bannerTimer != nil {
		m.bannerTimer.Stop()
		m.bannerTimer = nil
	}
	m.bannerToken = 0
	m.banner = nil
}

func (m *Machine) discardStale(ev event) {
	m.staleTimers.Add(1)
	slog.Debug("Playback: Discarding stale timer", "kind", ev.kind, "epoch", ev.epoch, "current_epoch", m.epoch)
	m.observer.StaleTimer(m.seq.ID(), ev.kind.String())
}

// --- Players ---

// reconcile makes the deck match the state: only the active segment may run.
func (m *Machine) reconcile() {
	want := SegmentNone
	if m.playing {
		want = m.segment
	}
	if want == m.running {
		return
	}
	if p := m.deck[m.running]; p != nil {
		p.Pause()
	}
	if p := m.deck[want]; p != nil {
		if err := p.Play(); err != nil {
			slog.Warn("Playback: Failed to start segment", "segment", want, "error", err)
		}
	}
	m.running = want
}
