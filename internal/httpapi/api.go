// Package httpapi is the HTTP control surface: health, Prometheus metrics,
// and a small JSON API to read the screen, type text and scroll.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"model100/internal/editor"
)

const (
	maxInputBodyBytes  = 64 * 1024
	maxScrollBodyBytes = 1024
	maxInputRunes      = 16 * 1024
)

// Engine is the part of the edit engine the API drives.
type Engine interface {
	Snapshot() editor.Snapshot
	TypeText(s string)
	ScrollUnits(n int)
	ScrollPages(n int)
	ScrollToFraction(f float64)
}

// Options configure a Handler.
type Options struct {
	// Mode reports the protocol mode; nil omits it.
	Mode     func() string
	Gatherer prometheus.Gatherer
	Logger   *log.Logger
}

type Handler struct {
	engine Engine
	opts   Options
	logger *log.Logger
}

func NewHandler(eng Engine, opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	return &Handler{engine: eng, opts: opts, logger: logger}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(h.instrument)

	r.Get("/healthz", h.health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.opts.Gatherer, promhttp.HandlerOpts{}))
	r.Route("/api", func(r chi.Router) {
		r.Get("/screen", h.screen)
		r.Post("/input", h.input)
		r.Post("/scroll", h.scroll)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, http.StatusNotFound, "NOT_FOUND", "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeErr(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})
	return r
}

func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		observer := &statusObserver{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(observer, r)
		h.logger.Debug("http request",
			"event", "http_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", observer.status,
			"duration_ms", time.Since(started).Milliseconds(),
			"remote", r.RemoteAddr,
		)
	})
}

type statusObserver struct {
	http.ResponseWriter
	status int
}

func (o *statusObserver) WriteHeader(status int) {
	o.status = status
	o.ResponseWriter.WriteHeader(status)
}

type screenResponse struct {
	editor.Snapshot
	Mode string `json:"mode,omitempty"`
}

func (h *Handler) view() screenResponse {
	resp := screenResponse{Snapshot: h.engine.Snapshot()}
	if h.opts.Mode != nil {
		resp.Mode = h.opts.Mode()
	}
	return resp
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	body := map[string]string{"status": "ok"}
	if h.opts.Mode != nil {
		body["mode"] = h.opts.Mode()
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) screen(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.view())
}

func (h *Handler) input(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text *string `json:"text"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxInputBodyBytes)
	if err := decodeJSONBody(w, r, &req); err != nil {
		return
	}
	if req.Text == nil {
		writeErr(w, http.StatusBadRequest, "INVALID_REQUEST", "text is required")
		return
	}
	if n := len([]rune(*req.Text)); n > maxInputRunes {
		writeErr(w, http.StatusRequestEntityTooLarge, "TEXT_TOO_LONG", "text exceeds "+strconv.Itoa(maxInputRunes)+" characters")
		return
	}
	h.engine.TypeText(strings.ReplaceAll(*req.Text, "\r\n", "\n"))
	writeJSON(w, http.StatusOK, h.view())
}

func (h *Handler) scroll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fraction *float64 `json:"fraction"`
		Units    *int     `json:"units"`
		Pages    *int     `json:"pages"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxScrollBodyBytes)
	if err := decodeJSONBody(w, r, &req); err != nil {
		return
	}

	set := 0
	for _, present := range []bool{req.Fraction != nil, req.Units != nil, req.Pages != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		writeErr(w, http.StatusBadRequest, "INVALID_REQUEST", "exactly one of fraction, units or pages is required")
		return
	}

	switch {
	case req.Fraction != nil:
		f := *req.Fraction
		if math.IsNaN(f) || f < 0 || f > 1 {
			writeErr(w, http.StatusBadRequest, "INVALID_REQUEST", "fraction must be between 0 and 1")
			return
		}
		h.engine.ScrollToFraction(f)
	case req.Units != nil:
		h.engine.ScrollUnits(*req.Units)
	case req.Pages != nil:
		h.engine.ScrollPages(*req.Pages)
	}
	writeJSON(w, http.StatusOK, h.view())
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(target); err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			writeErr(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body exceeds max size")
		case strings.Contains(err.Error(), "unknown field"):
			writeErr(w, http.StatusBadRequest, "BAD_JSON", "request contains unknown fields")
		default:
			writeErr(w, http.StatusBadRequest, "BAD_JSON", "request body must be valid JSON")
		}
		return err
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeErr(w, http.StatusBadRequest, "BAD_JSON", "request body must contain exactly one JSON object")
		return errors.New("trailing data after JSON object")
	}
	return nil
}

func writeErr(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message, "status": strconv.Itoa(status)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// Serve listens on addr until ctx is cancelled, then drains for up to five
// seconds.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen http %s: %w", addr, err)
	}
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("http api listening", "event", "http_startup", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}
