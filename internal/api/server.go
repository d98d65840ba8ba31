package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"audiotour/pkg/logging"
	"audiotour/pkg/version"
)

// Handlers groups the endpoint handlers. Nil members disable their routes.
type Handlers struct {
	Tour     *TourHandler
	Playback *PlaybackHandler
	Location *LocationHandler
	Audio    *AudioHandler
	Trip     *TripHandler
	Stats    *StatsHandler
	Config   *ConfigHandler
	Metrics  http.Handler
	WebRoot  string
}

// NewServer creates and configures the HTTP server.
// shutdown is called (asynchronously) when a client requests a graceful shutdown.
func NewServer(addr string, h Handlers, shutdown func()) *http.Server {
	return &http.Server{
		Addr:        addr,
		Handler:     loggingMiddleware(NewMux(h, shutdown)),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the playback stream is long-lived.
		IdleTimeout: 60 * time.Second,
	}
}

// NewMux registers all routes.
func NewMux(h Handlers, shutdown func()) *http.ServeMux {
	mux := http.NewServeMux()

	// 1. Health Endpoint
	mux.HandleFunc("GET /health", handleHealth)

	// 1b. Version Endpoint
	mux.HandleFunc("GET /api/version", handleVersion)

	// 1c. Logs Endpoints
	mux.HandleFunc("GET /api/log/latest", handleLatestLog)
	mux.HandleFunc("GET /api/log/event", handleLatestEvent)

	// 2. Tour Endpoints
	if h.Tour != nil {
		mux.HandleFunc("GET /api/tour", h.Tour.HandleTour)
		mux.HandleFunc("GET /api/tour/geojson", h.Tour.HandleGeoJSON)
	}

	// 3. Playback Endpoints
	if h.Playback != nil {
		mux.HandleFunc("GET /api/playback", h.Playback.HandleSnapshot)
		mux.HandleFunc("POST /api/playback/control", h.Playback.HandleControl)
		mux.HandleFunc("GET /api/playback/ws", h.Playback.HandleStream)
	}

	// 4. Location Endpoint
	if h.Location != nil {
		mux.HandleFunc("POST /api/location", h.Location.HandleLocation)
	}

	// 5. Audio Endpoints
	if h.Audio != nil {
		mux.HandleFunc("POST /api/audio/volume", h.Audio.HandleVolume)
		mux.HandleFunc("GET /api/audio/status", h.Audio.HandleStatus)
	}

	// 6. Trip Endpoint
	if h.Trip != nil {
		mux.HandleFunc("GET /api/trip/events", h.Trip.HandleEvents)
	}

	// 6b. Config Endpoints
	if h.Config != nil {
		mux.HandleFunc("GET /api/config", h.Config.HandleGetConfig)
		mux.HandleFunc("PUT /api/config", h.Config.HandleSetConfig)
	}

	// 7. Stats and Metrics
	if h.Stats != nil {
		mux.Handle("GET /api/stats", h.Stats)
	}
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}

	// 8. Shutdown Endpoint
	if shutdown != nil {
		mux.HandleFunc("POST /api/shutdown", func(w http.ResponseWriter, r *http.Request) {
			slog.Info("Graceful shutdown initiated via API")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write([]byte("Shutting down...")); err != nil {
				slog.Error("Failed to write shutdown response", "error", err)
			}
			// Call shutdown in a goroutine to allow response to flush
			go func() {
				time.Sleep(100 * time.Millisecond)
				shutdown()
			}()
		})
	}

	// 9. Static shell (SPA)
	if h.WebRoot != "" {
		mux.Handle("/", http.FileServer(&spaFileSystem{root: http.Dir(h.WebRoot)}))
	}

	return mux
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		slog.Error("Failed to write health response", "error", err)
	}
}

func handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := fmt.Fprintf(w, `{"version": "%s"}`, version.Version); err != nil {
		slog.Error("Failed to write version response", "error", err)
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if logging.RequestLogger != nil {
			logging.RequestLogger.Info("Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
		}
	})
}
