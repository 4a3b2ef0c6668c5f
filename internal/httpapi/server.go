// Package httpapi exposes the station over HTTP: device listing, the four
// device commands, measurement history and a WebSocket event stream.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/srg/uwave/internal/discovery"
	"github.com/srg/uwave/internal/registry"
	"github.com/srg/uwave/internal/store"
)

const (
	defaultRequestTimeout = 60 * time.Second
	shutdownTimeout       = 15 * time.Second
)

// Station is what the API drives.
type Station interface {
	Snapshot() []registry.Record
	Device(id string) (registry.Record, bool)
	Discover(ctx context.Context) (discovery.Result, error)
	Connect(ctx context.Context, id string) error
	Disconnect(id string) error
	DisconnectAll() error
	Subscribe(size int) (<-chan registry.Event, func())
}

// History serves logged measurements.
type History interface {
	History(ctx context.Context, deviceID string, limit int) ([]store.Measurement, error)
}

// Options configures an API.
type Options struct {
	// ScanTimeout bounds POST /api/discover. Zero leaves it to the request.
	ScanTimeout time.Duration
	// History enables GET /api/devices/{id}/history when set.
	History History
}

// API holds the handlers.
type API struct {
	station Station
	opts    Options
	logger  *logrus.Logger
}

func New(station Station, logger *logrus.Logger, opts Options) *API {
	if logger == nil {
		logger = logrus.New()
	}
	return &API{station: station, opts: opts, logger: logger}
}

// Handler builds the routing tree.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(a.requestLogger)

	r.Get("/healthz", a.health)
	r.Get("/ws", a.events)

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Timeout(defaultRequestTimeout))

		api.Get("/devices", a.listDevices)
		api.Get("/devices/{id}", a.getDevice)
		api.Post("/discover", a.discover)
		api.Post("/devices/{id}/connect", a.connect)
		api.Delete("/devices/{id}", a.disconnect)
		api.Post("/off", a.off)
		api.Get("/devices/{id}/history", a.history)
	})
	return r
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}

func (a *API) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"devices": len(a.station.Snapshot()),
		"history": a.opts.History != nil,
	})
}

func (a *API) listDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"devices": a.station.Snapshot()})
}

func (a *API) getDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, ok := a.station.Device(id)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "device not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) discover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if a.opts.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.ScanTimeout)
		defer cancel()
	}

	res, err := a.station.Discover(ctx)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	status := http.StatusOK
	if res.Added {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"device": res.Record, "added": res.Added})
}

func (a *API) connect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.station.Connect(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	rec, ok := a.station.Device(id)
	if !ok {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "device removed while connecting: "+id)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *API) disconnect(w http.ResponseWriter, r *http.Request) {
	if err := a.station.Disconnect(chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) off(w http.ResponseWriter, _ *http.Request) {
	if err := a.station.DisconnectAll(); err != nil {
		// Records are reset even when some teardown failed.
		a.logger.WithError(err).Warn("Off completed with errors")
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": a.station.Snapshot()})
}

func (a *API) history(w http.ResponseWriter, r *http.Request) {
	if a.opts.History == nil {
		writeError(w, http.StatusNotFound, ErrCodeUnavailable, "measurement history is not enabled")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = v
	}
	items, err := a.opts.History.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"measurements": items})
}

// RunServer starts and gracefully stops the server with ctx.
func RunServer(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
