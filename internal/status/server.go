// Package status serves the local HTTP status surface: health, a JSON
// snapshot, a live websocket event feed and Prometheus metrics.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/voltpower/volt/internal/monitor"
	"github.com/voltpower/volt/internal/plan"
	"github.com/voltpower/volt/internal/power"
	"github.com/voltpower/volt/internal/prefs"
	"github.com/voltpower/volt/internal/protocol"
)

// Monitor is what the server needs from the power source monitor.
type Monitor interface {
	State() power.State
	Subscribe(fn func(monitor.Event))
	Dispatch(ctx context.Context, cmd monitor.Command) error
}

// Preferences supplies the saved bindings.
type Preferences interface {
	Snapshot() prefs.Map
}

// Config wires a Server.
type Config struct {
	Monitor         Monitor
	Prefs           Preferences
	Version         string
	Logger          *zap.Logger
	ShutdownTimeout time.Duration
}

// Server is the volt status server.
type Server struct {
	mon      Monitor
	prefs    Preferences
	version  string
	log      *zap.Logger
	shutdown time.Duration
	hub      *hub
	upgrader websocket.Upgrader
}

// NewServer creates a Server and subscribes it to monitor events.
func NewServer(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	shutdown := cfg.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = 5 * time.Second
	}
	s := &Server{
		mon:      cfg.Monitor,
		prefs:    cfg.Prefs,
		version:  cfg.Version,
		log:      log,
		shutdown: shutdown,
		hub:      newHub(log),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	cfg.Monitor.Subscribe(func(ev monitor.Event) {
		e := EventFrame(ev)
		s.hub.broadcast(protocol.Frame{Type: protocol.TypeEvent, Event: &e})
	})
	return s
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Status())
	})
	r.Group(func(r chi.Router) {
		r.Use(loopbackOrigin)
		r.Use(middleware.AllowContentType("application/json"))
		r.Put("/preferences/{state}", s.handleSetPreference)
		r.Post("/activate", s.handleActivate)
	})
	r.Get("/ws", s.handleFeed)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// Status returns the current snapshot.
func (s *Server) Status() protocol.Status {
	state := s.mon.State()
	return protocol.Status{
		State:       state.Key(),
		Label:       state.Label(),
		Version:     s.version,
		Preferences: PreferenceMap(s.prefs.Snapshot()),
	}
}

// ListenAndServe serves on addr until ctx is done, then disconnects feed
// clients and shuts the HTTP server down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info("status server listening", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		s.hub.closeAll()
		return err
	case <-ctx.Done():
	}

	// Hijacked websocket connections are not tracked by Shutdown.
	s.hub.closeAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return err
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	c := &feedClient{
		conn: conn,
		send: make(chan protocol.Frame, writeChanSize),
		done: make(chan struct{}),
	}
	status := s.Status()
	c.send <- protocol.Frame{Type: protocol.TypeHello, Status: &status}
	if !s.hub.add(c) {
		conn.Close()
		return
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(s.log)
	}()

	// Read loop: only pongs and close frames are expected.
	for {
		var f protocol.Frame
		if err := conn.ReadJSON(&f); err != nil {
			break
		}
		if f.Type == protocol.TypePing {
			select {
			case c.send <- protocol.Frame{Type: protocol.TypePong}:
			default:
			}
		}
	}

	s.hub.remove(c)
	<-writerDone
}

type preferenceRequest struct {
	Plan string `json:"plan"`
}

func (s *Server) handleSetPreference(w http.ResponseWriter, r *http.Request) {
	state, err := power.ParseState(chi.URLParam(r, "state"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req preferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	id, err := plan.ParseID(req.Plan)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.mon.Dispatch(r.Context(), monitor.SetPreference{State: state, Plan: id}); err != nil {
		writeError(w, commandStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req preferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	id, err := plan.ParseID(req.Plan)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.mon.Dispatch(r.Context(), monitor.ActivateNow{Plan: id}); err != nil {
		writeError(w, commandStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}

// loopbackOrigin rejects browser requests sent from pages that are not
// served from this machine.
func loopbackOrigin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && !isLoopbackOrigin(origin) {
			writeError(w, http.StatusForbidden, "cross-origin request refused")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isLoopbackOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func commandStatus(err error) int {
	var cmdErr *plan.CommandError
	var persistErr *prefs.PersistenceError
	switch {
	case errors.Is(err, monitor.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.As(err, &cmdErr), errors.As(err, &persistErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// EventFrame converts a monitor event to its wire form.
func EventFrame(ev monitor.Event) protocol.Event {
	e := protocol.Event{
		Kind:    string(ev.Kind),
		Changed: ev.Changed,
		Origin:  string(ev.Origin),
		At:      ev.At,
	}
	if ev.Kind == monitor.EventState {
		e.Previous = ev.Previous.Key()
	}
	if ev.Current.Valid() || ev.Kind == monitor.EventState {
		e.Current = ev.Current.Key()
	}
	if ev.State.Valid() {
		e.State = ev.State.Key()
	}
	if ev.Plan != nil {
		e.Plan = ev.Plan.String()
	}
	if ev.Err != nil {
		e.Error = ev.Err.Error()
	}
	return e
}

// PreferenceMap renders saved bindings keyed by state, with nil for unset.
func PreferenceMap(m prefs.Map) map[string]*string {
	out := make(map[string]*string, len(power.States))
	for _, st := range power.States {
		if id := m[st]; id != nil {
			v := id.String()
			out[st.Key()] = &v
		} else {
			out[st.Key()] = nil
		}
	}
	return out
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, protocol.ErrorPayload{Error: msg})
}
