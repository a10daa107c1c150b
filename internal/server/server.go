// Package server exposes pins and their photo albums over HTTP
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"codeberg.org/snonux/virtualtourist/internal/geo"
	"codeberg.org/snonux/virtualtourist/internal/image"
	"codeberg.org/snonux/virtualtourist/internal/processor"
	"codeberg.org/snonux/virtualtourist/internal/store"
)

const (
	defaultNearest  = 5
	shutdownTimeout = 10 * time.Second
)

// Server serves the album API on top of a Processor
type Server struct {
	processor *processor.Processor
	router    *mux.Router
	logger    zerolog.Logger
}

// New creates a server with all routes registered
func New(p *processor.Processor, logger zerolog.Logger) *Server {
	s := &Server{
		processor: p,
		router:    mux.NewRouter(),
		logger:    logger,
	}

	r := s.router
	r.Use(s.requestLogger)

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	r.HandleFunc("/pins", s.listPins).Methods(http.MethodGet)
	r.HandleFunc("/pins", s.dropPin).Methods(http.MethodPost)
	r.HandleFunc("/pins/near", s.nearestPins).Methods(http.MethodGet)
	r.HandleFunc("/pins/{id}", s.getPin).Methods(http.MethodGet)
	r.HandleFunc("/pins/{id}", s.deletePin).Methods(http.MethodDelete)
	r.HandleFunc("/pins/{id}/photos", s.loadAlbum).Methods(http.MethodGet)
	r.HandleFunc("/pins/{id}/collection", s.newCollection).Methods(http.MethodPost)

	r.HandleFunc("/photos/{id}", s.deletePhoto).Methods(http.MethodDelete)
	r.HandleFunc("/photos/{id}/image", s.photoImage).Methods(http.MethodGet)

	return s
}

// Handler returns the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is canceled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.logger.Info().Msg("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rid := r.Header.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", rid)

		logger := s.logger.With().
			Str("request_id", rid).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r.WithContext(logger.WithContext(r.Context())))

		event := logger.Debug()
		switch {
		case rw.status >= 500:
			event = logger.Error()
		case rw.status >= 400:
			event = logger.Warn()
		}
		event.Int("status", rw.status).Dur("duration", time.Since(start)).Msg("http request served")
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listPins(w http.ResponseWriter, r *http.Request) {
	pins, err := s.processor.ListPins(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pins)
}

func (s *Server) dropPin(w http.ResponseWriter, r *http.Request) {
	var loc geo.Location
	if err := json.NewDecoder(r.Body).Decode(&loc); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := loc.Validate(); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	pin, err := s.processor.DropPin(r.Context(), loc)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pin)
}

func (s *Server) nearestPins(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lon, errLon := strconv.ParseFloat(q.Get("lon"), 64)
	if errLat != nil || errLon != nil {
		writeMessage(w, http.StatusBadRequest, "lat and lon are required")
		return
	}

	k := defaultNearest
	if raw := q.Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeMessage(w, http.StatusBadRequest, "k must be a positive number")
			return
		}
		k = n
	}

	loc := geo.Location{Latitude: lat, Longitude: lon}
	if err := loc.Validate(); err != nil {
		writeMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	pins, err := s.processor.NearestPins(r.Context(), loc, k)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pins)
}

func (s *Server) getPin(w http.ResponseWriter, r *http.Request) {
	pin, err := s.processor.GetPin(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pin)
}

func (s *Server) deletePin(w http.ResponseWriter, r *http.Request) {
	if err := s.processor.DeletePin(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) loadAlbum(w http.ResponseWriter, r *http.Request) {
	photos, err := s.processor.LoadAlbum(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, photos)
}

func (s *Server) newCollection(w http.ResponseWriter, r *http.Request) {
	photos, err := s.processor.NewCollection(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, photos)
}

func (s *Server) deletePhoto(w http.ResponseWriter, r *http.Request) {
	if err := s.processor.DeletePhoto(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) photoImage(w http.ResponseWriter, r *http.Request) {
	img, err := s.processor.PhotoImage(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, processor.ErrNoImage) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", img.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(img.Size()))
	w.WriteHeader(http.StatusOK)
	w.Write(img.Data)
}

// statusFor maps processor, store and image errors to HTTP status codes
func statusFor(err error) int {
	var (
		netErr      *image.NetworkError
		formatErr   *image.APIFormatError
		downloadErr *image.DownloadError
	)

	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, processor.ErrBusy):
		return http.StatusConflict
	case errors.As(err, &netErr), errors.As(err, &formatErr), errors.As(err, &downloadErr):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
	}
	writeMessage(w, status, err.Error())
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
