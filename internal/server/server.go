// Package server exposes the event dispatcher over HTTP so a browser
// extension or a script can report page loads and manual requests.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/nnfix/internal/host"
	"github.com/hyperifyio/nnfix/internal/metrics"
)

// MaxBodyBytes caps an event request, document included.
const MaxBodyBytes = 16 << 20

// Handler processes one event.
type Handler interface {
	Handle(ctx context.Context, ev host.Event) host.Outcome
}

// Server serves the trigger API.
type Server struct {
	Events Handler
	// RequestTimeout bounds one event. Zero means 2 minutes.
	RequestTimeout time.Duration
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	timeout := s.RequestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())
	r.With(middleware.Timeout(timeout)).Post("/v1/events", s.handleEvent)
	return r
}

// ListenAndServe runs until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info().Str("addr", addr).Msg("trigger API listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type eventRequest struct {
	Type  string `json:"type"`
	URL   string `json:"url"`
	Ready bool   `json:"ready"`
	HTML  string `json:"html,omitempty"`
}

type decisionBody struct {
	State       string  `json:"state"`
	Best        string  `json:"best,omitempty"`
	BestScore   float64 `json:"best_score"`
	SourceScore float64 `json:"source_score"`
	SampleLen   int     `json:"sample_len"`
}

type statsBody struct {
	Total      int   `json:"total"`
	Changed    int   `json:"changed"`
	Unchanged  int   `json:"unchanged"`
	Failed     int   `json:"failed"`
	Skipped    int   `json:"skipped"`
	Batches    []int `json:"batches"`
	DurationMS int64 `json:"duration_ms"`
}

type eventResponse struct {
	Type     string        `json:"type"`
	Ignored  bool          `json:"ignored,omitempty"`
	Busy     bool          `json:"busy,omitempty"`
	Ran      bool          `json:"ran"`
	Decision *decisionBody `json:"decision,omitempty"`
	Stats    *statsBody    `json:"stats,omitempty"`
	HTML     string        `json:"html,omitempty"`
	Error    string        `json:"error,omitempty"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, eventResponse{Error: "invalid request: " + err.Error()})
		return
	}
	kind := host.Kind(req.Type)
	switch kind {
	case host.Load, host.Activate, host.Manual:
	default:
		writeJSON(w, http.StatusBadRequest, eventResponse{Type: req.Type, Error: fmt.Sprintf("unknown event type %q", req.Type)})
		return
	}
	if req.URL == "" && req.HTML == "" {
		writeJSON(w, http.StatusBadRequest, eventResponse{Type: req.Type, Error: "url or html required"})
		return
	}

	out := s.Events.Handle(r.Context(), host.Event{Kind: kind, URL: req.URL, Ready: req.Ready, HTML: req.HTML})
	resp := eventResponse{Type: req.Type, Ignored: out.Ignored, Busy: out.Busy, Ran: out.Ran}
	if kind != host.Manual && !out.Ignored && !out.Busy {
		d := out.Decision
		resp.Decision = &decisionBody{State: string(d.State), Best: d.Best, BestScore: d.BestScore, SourceScore: d.SourceScore, SampleLen: d.SampleLen}
	}
	if out.Ran {
		st := out.Stats
		resp.Stats = &statsBody{
			Total: st.Total, Changed: st.Changed, Unchanged: st.Unchanged,
			Failed: st.Failed, Skipped: st.Skipped, Batches: st.Batches,
			DurationMS: st.Duration.Milliseconds(),
		}
		if out.Page != nil {
			doc, err := out.Page.HTML()
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, eventResponse{Type: req.Type, Error: "render html: " + err.Error()})
				return
			}
			resp.HTML = doc
		}
	}

	status := http.StatusOK
	if out.Err != nil {
		resp.Error = out.Err.Error()
		switch {
		case errors.Is(out.Err, host.ErrRestricted):
			status = http.StatusForbidden
		case !out.Ran:
			status = http.StatusBadGateway
		}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write response")
	}
}

// requestLog logs each request and records request metrics by route pattern.
func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		took := time.Since(start)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(took.Seconds())
		log.Debug().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("took", took).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
