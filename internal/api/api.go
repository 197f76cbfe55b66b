// Package api serves the focus REST API and the block page from the daemon.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/joescharf/focus/internal/blocklist"
	"github.com/joescharf/focus/internal/classifier"
	"github.com/joescharf/focus/internal/clock"
	"github.com/joescharf/focus/internal/gate"
	"github.com/joescharf/focus/internal/models"
	"github.com/joescharf/focus/internal/output"
	"github.com/joescharf/focus/internal/store"
	"github.com/joescharf/focus/internal/ui"
)

// Server provides the REST API handlers.
type Server struct {
	store  store.Store
	clock  *clock.Clock
	gate   *gate.Gate
	engine *classifier.Engine
	log    zerolog.Logger
}

// NewServer creates a new API server.
// The engine may be nil if no classifier bundle is configured.
func NewServer(s store.Store, c *clock.Clock, g *gate.Gate, e *classifier.Engine, log zerolog.Logger) *Server {
	return &Server{
		store:  s,
		clock:  c,
		gate:   g,
		engine: e,
		log:    log,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/session", s.getSession)
	mux.HandleFunc("POST /api/v1/session/start", s.startSession)
	mux.HandleFunc("POST /api/v1/session/pause", s.pauseSession)
	mux.HandleFunc("POST /api/v1/session/resume", s.resumeSession)
	mux.HandleFunc("POST /api/v1/session/stop", s.stopSession)
	mux.HandleFunc("PUT /api/v1/session/duration", s.setDuration)

	mux.HandleFunc("GET /api/v1/blocklist", s.listBlocklist)
	mux.HandleFunc("POST /api/v1/blocklist", s.addBlocklist)
	mux.HandleFunc("DELETE /api/v1/blocklist/{domain}", s.removeBlocklist)

	mux.HandleFunc("POST /api/v1/decide", s.decide)
	mux.HandleFunc("POST /api/v1/classify", s.classify)

	mux.HandleFunc("GET /blocked", s.blockedPage)
	if h, err := ui.Handler(); err == nil {
		mux.Handle("GET /static/", http.StripPrefix("/static", h))
	} else {
		s.log.Warn().Err(err).Msg("static assets unavailable")
	}

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, clock.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, blocklist.ErrInvalidDomain):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// --- Session ---

type sessionResponse struct {
	clock.View
	Notification *models.Notification `json:"notification,omitempty"`
}

func (s *Server) sessionResponse(r *http.Request) (sessionResponse, error) {
	v, err := s.clock.View(r.Context())
	if err != nil {
		return sessionResponse{}, err
	}
	resp := sessionResponse{View: v}

	vals, err := s.store.Get(r.Context(), store.KeyNotification)
	if err != nil {
		return sessionResponse{}, err
	}
	if n, ok, err := store.DecodeNotification(vals[store.KeyNotification]); err == nil && ok {
		resp.Notification = &n
	}
	return resp, nil
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	resp, err := s.sessionResponse(r)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type startRequest struct {
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	// An empty body starts with the stored session length.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	seconds := req.Seconds
	if req.Minutes > 0 {
		seconds = req.Minutes * 60
	}
	if seconds < 0 {
		writeError(w, http.StatusBadRequest, "duration must not be negative")
		return
	}
	s.transition(w, r, func() error {
		_, err := s.clock.Start(r.Context(), seconds)
		return err
	})
}

func (s *Server) pauseSession(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func() error {
		_, err := s.clock.Pause(r.Context())
		return err
	})
}

func (s *Server) resumeSession(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func() error {
		_, err := s.clock.Resume(r.Context())
		return err
	})
}

func (s *Server) stopSession(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, func() error {
		_, err := s.clock.Stop(r.Context())
		return err
	})
}

type durationRequest struct {
	Minutes int `json:"minutes"`
}

func (s *Server) setDuration(w http.ResponseWriter, r *http.Request) {
	var req durationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Minutes <= 0 {
		writeError(w, http.StatusBadRequest, "minutes must be positive")
		return
	}
	s.transition(w, r, func() error {
		_, err := s.clock.SetDuration(r.Context(), req.Minutes*60)
		return err
	})
}

// transition runs op and answers with the resulting session.
func (s *Server) transition(w http.ResponseWriter, r *http.Request, op func() error) {
	if err := op(); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	resp, err := s.sessionResponse(r)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Block list ---

func (s *Server) listBlocklist(w http.ResponseWriter, r *http.Request) {
	list, err := blocklist.Load(r.Context(), s.store)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if list == nil {
		list = []string{}
	}
	writeJSON(w, http.StatusOK, list)
}

type domainRequest struct {
	Domain string `json:"domain"`
}

func (s *Server) addBlocklist(w http.ResponseWriter, r *http.Request) {
	var req domainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	list, added, err := blocklist.AddDomain(r.Context(), s.store, req.Domain)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, list)
}

func (s *Server) removeBlocklist(w http.ResponseWriter, r *http.Request) {
	list, removed, err := blocklist.RemoveDomain(r.Context(), s.store, r.PathValue("domain"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "domain not in block list")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// --- Decisions ---

type decideRequest struct {
	URL         string `json:"url"`
	TopLevel    *bool  `json:"top_level"`
	Title       string `json:"title"`
	Description string `json:"description"`
	HasContent  bool   `json:"has_content"`
}

func (s *Server) decide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	top := true
	if req.TopLevel != nil {
		top = *req.TopLevel
	}
	v, err := s.gate.Decide(r.Context(), gate.Destination{
		URL:         req.URL,
		IsTopLevel:  top,
		Title:       req.Title,
		Description: req.Description,
		HasContent:  req.HasContent || req.Title != "",
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type classifyRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type classifyResponse struct {
	classifier.Result
	Version string `json:"version,omitempty"`
}

func (s *Server) classify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	resp := classifyResponse{Result: s.engine.Predict(req.Title, req.Description)}
	if b := s.engine.Bundle(); b != nil {
		resp.Version = b.Version
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Block page ---

var reasonText = map[models.Reason]string{
	models.ReasonDomainBlocked:      "the site is on your block list",
	models.ReasonMissingTitle:       "the video has no title to check",
	models.ReasonContentDenied:      "the video looks like a distraction",
	models.ReasonClassifierFallback: "the video could not be checked",
}

func (s *Server) blockedPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	reason := reasonText[models.Reason(q.Get("reason"))]
	if reason == "" {
		reason = "focus mode is on"
	}
	data := struct {
		URL       string
		Reason    string
		Remaining string
	}{URL: q.Get("url"), Reason: reason}

	if v, err := s.clock.View(r.Context()); err == nil && v.Focus {
		data.Remaining = output.Clock(v.RemainingSeconds)
	}

	tmpl, err := ui.BlockPage()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		s.log.Warn().Err(err).Msg("render block page")
	}
}
