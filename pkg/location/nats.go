package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"audiotour/pkg/config"
	"audiotour/pkg/geo"
)

// NATSMessage is the JSON payload of a location feed message.
type NATSMessage struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Accuracy  float64   `json:"accuracy"`
	Heading   *float64  `json:"heading,omitempty"`
	SpeedMps  float64   `json:"speedMps"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"` // "permission_denied", "timeout" or free text
}

// NATSSource subscribes to a NATS subject carrying NATSMessage payloads.
type NATSSource struct {
	cfg config.NATSConfig

	mu    sync.Mutex
	nc    *nats.Conn
	sub   *nats.Subscription
	track *geo.Track

	out   *fanout
	ready *readiness

	// ConnectedChanged, when set, is called on connect and disconnect.
	ConnectedChanged func(connected bool)
}

// NewNATSSource creates a source for cfg. The connection opens on the first Watch.
func NewNATSSource(cfg config.NATSConfig) *NATSSource {
	return &NATSSource{
		cfg:   cfg,
		track: geo.NewTrack(5),
		out:   newFanout(),
		ready: newReadiness(),
	}
}

func (s *NATSSource) Watch(ctx context.Context) (<-chan Update, error) {
	ch, err := s.out.watch(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.connect(); err != nil {
		return nil, err
	}
	return ch, nil
}

func (s *NATSSource) connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nc != nil {
		return nil
	}

	nc, err := nats.Connect(s.cfg.URL,
		nats.Name("audiotour"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			s.setConnected(false)
			slog.Warn("Location: NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			s.setConnected(true)
			slog.Info("Location: NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			s.setConnected(false)
			slog.Debug("Location: NATS closed")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", s.cfg.URL, err)
	}

	sub, err := nc.Subscribe(s.cfg.Subject, func(msg *nats.Msg) {
		s.out.send(s.decode(msg.Data))
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", s.cfg.Subject, err)
	}

	s.nc = nc
	s.sub = sub
	s.setConnected(true)
	s.ready.signal()
	slog.Info("Location: NATS feed connected", "url", s.cfg.URL, "subject", s.cfg.Subject)
	return nil
}

func (s *NATSSource) setConnected(connected bool) {
	if s.ConnectedChanged != nil {
		s.ConnectedChanged(connected)
	}
}

// decode turns a message into an update. Malformed payloads become errors.
func (s *NATSSource) decode(data []byte) Update {
	var m NATSMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return Update{Err: fmt.Errorf("malformed location message: %w", err)}
	}
	if m.Error != "" {
		s.track.Reset()
		return Update{Err: ParseError(m.Error)}
	}
	if m.Lat < -90 || m.Lat > 90 || m.Lon < -180 || m.Lon > 180 {
		return Update{Err: fmt.Errorf("location out of range: %f,%f", m.Lat, m.Lon)}
	}

	fix := Fix{
		Point:    geo.Point{Lat: m.Lat, Lon: m.Lon},
		Accuracy: m.Accuracy,
		Speed:    m.SpeedMps,
		Time:     m.Timestamp,
	}
	if m.Heading != nil {
		fix.Heading = *m.Heading
		fix.HasHeading = true
	}
	annotate(s.track, &fix)
	return Update{Fix: &fix}
}

// ParseError maps a reported error code to ErrPermissionDenied, ErrTimeout or a plain error.
func ParseError(code string) error {
	switch strings.ToLower(code) {
	case "permission_denied":
		return ErrPermissionDenied
	case "timeout":
		return ErrTimeout
	}
	return errors.New(code)
}

func (s *NATSSource) Ready() <-chan struct{} {
	return s.ready.wait()
}

// Close drains the subscription and releases watchers.
func (s *NATSSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			slog.Debug("Location: NATS drain failed", "error", err)
		}
		s.nc.Close()
		s.nc = nil
		s.sub = nil
	}
	s.out.close()
	return nil
}
