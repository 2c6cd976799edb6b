// Package liveview serves the browser live view: a small HTTP API over the
// polling scheduler and a websocket that pushes every published view.
package liveview

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/otherjamesbrown/vexa-cli/client"
	"github.com/otherjamesbrown/vexa-cli/pkg/buildinfo"
	pferrors "github.com/otherjamesbrown/vexa-cli/pkg/errors"
	"github.com/otherjamesbrown/vexa-cli/pkg/logging"
	"github.com/otherjamesbrown/vexa-cli/pkg/poller"
	"github.com/otherjamesbrown/vexa-cli/pkg/transcript"
)

// Component is the name reported by /version.
const Component = "vexa-serve"

//go:embed static/*
var staticFiles embed.FS

// Gateway is the part of the gateway service the server calls directly.
type Gateway interface {
	ListMeetings(ctx context.Context) ([]transcript.Meeting, error)
	BotStatus(ctx context.Context) (*client.BotStatus, error)
}

// Controller is the part of the scheduler the server drives.
type Controller interface {
	Current() poller.View
	SwitchMeeting(ctx context.Context, id transcript.MeetingID, mode poller.Mode) error
	Stop(ctx context.Context) error
	ChangeLanguage(ctx context.Context, language string) error
}

// Deps holds the server's collaborators.
type Deps struct {
	Gateway    Gateway
	Controller Controller
	Hub        *Hub
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	Logger   logging.Logger
}

// Server is the live view HTTP server.
type Server struct {
	deps     Deps
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger
}

// NewServer builds the router.
func NewServer(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	srv := &Server{
		deps:   deps,
		logger: deps.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     sameHost,
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	static, _ := fs.Sub(staticFiles, "static")
	r.Handle("/", http.FileServer(http.FS(static)))
	r.Get("/ws", srv.handleWS)
	r.Get("/healthz", srv.handleHealth)
	r.Get("/version", buildinfo.Handler(Component))
	r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/view", srv.handleView)
		r.Get("/meetings", srv.handleMeetings)
		r.Get("/search", srv.handleSearch)
		r.Post("/meeting", srv.handleSwitch)
		r.Post("/stop", srv.handleStop)
		r.Post("/language", srv.handleLanguage)
	})

	srv.router = r
	return srv
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpSrv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Live view listening", logging.F("addr", ln.Addr().String()))
		errCh <- httpSrv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Websocket upgrade failed", logging.Err(err))
		return
	}
	s.deps.Hub.attach(conn)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, err := s.deps.Gateway.BotStatus(r.Context())
	if err != nil {
		d := pferrors.ToDisplay(err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"error":  d,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"running_bots": status.Running(),
		"clients":      s.deps.Hub.Clients(),
		"state":        s.deps.Controller.Current().State,
	})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Controller.Current())
}

func (s *Server) handleMeetings(w http.ResponseWriter, r *http.Request) {
	meetings, err := s.deps.Gateway.ListMeetings(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if meetings == nil {
		meetings = []transcript.Meeting{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"meetings":              meetings,
		"has_active":            transcript.HasActive(meetings),
		"refresh_after_seconds": int(transcript.HistoryRefreshInterval(meetings) / time.Second),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		s.writeError(w, fmt.Errorf("search term: %w", pferrors.ErrValidation))
		return
	}
	results := transcript.NewSearch(term, s.deps.Controller.Current().Segments).Results()
	if results == nil {
		results = []transcript.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"term":    term,
		"results": results,
	})
}

type switchRequest struct {
	Meeting string `json:"meeting"`
	Mode    string `json:"mode"`
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	id, err := transcript.ParseMeetingRef(strings.TrimSpace(req.Meeting))
	if err != nil {
		s.writeError(w, err)
		return
	}
	mode := poller.ModeLive
	switch req.Mode {
	case "", "live":
	case "historical":
		mode = poller.ModeHistorical
	default:
		s.writeError(w, fmt.Errorf("mode %q: %w", req.Mode, pferrors.ErrValidation))
		return
	}
	if err := s.deps.Controller.SwitchMeeting(r.Context(), id, mode); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.deps.Controller.Current())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Controller.Stop(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Controller.Current())
}

type languageRequest struct {
	Language string `json:"language"`
}

func (s *Server) handleLanguage(w http.ResponseWriter, r *http.Request) {
	var req languageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.deps.Controller.ChangeLanguage(r.Context(), req.Language); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Controller.Current())
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	d := pferrors.ToDisplay(err)
	code := statusFor(err, d.Kind)
	if code >= http.StatusInternalServerError {
		s.logger.Error("Live view request failed", logging.Err(err))
	}
	writeJSON(w, code, map[string]any{"error": d})
}

// statusFor maps a failure onto the status returned to the browser.
func statusFor(err error, kind pferrors.Kind) int {
	switch {
	case errors.Is(err, poller.ErrNoSession):
		return http.StatusConflict
	case errors.Is(err, poller.ErrSessionChanged), errors.Is(err, poller.ErrNoBot):
		return http.StatusConflict
	}
	switch kind {
	case pferrors.KindValidation:
		return http.StatusBadRequest
	case pferrors.KindNotFound:
		return http.StatusNotFound
	case pferrors.KindConflict:
		return http.StatusConflict
	case pferrors.KindUnauthorized:
		return http.StatusUnauthorized
	case pferrors.KindConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("request body: %w: %v", pferrors.ErrValidation, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// sameHost accepts websocket upgrades from pages served by this server and
// from clients that send no Origin header.
func sameHost(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	i := strings.Index(origin, "://")
	if i < 0 {
		return false
	}
	return strings.EqualFold(origin[i+3:], r.Host)
}
