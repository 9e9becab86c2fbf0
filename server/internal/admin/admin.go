// Package admin serves the operator HTTP surface: health, counters, the
// current player table, the session registry and a websocket spectator feed.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/phuhao00/worldsync/server/internal/metrics"
	"github.com/phuhao00/worldsync/server/internal/model"
	"github.com/phuhao00/worldsync/server/internal/utils"
)

// PlayerSource is satisfied by store.Store.
type PlayerSource interface {
	Snapshot(ctx context.Context) (map[string]model.Player, error)
	LastUpdated(ctx context.Context) (int64, error)
}

// SessionSource is satisfied by the session registry.
type SessionSource interface {
	Snapshot() ([]model.Session, error)
}

type sessionView struct {
	PlayerID string `json:"playerId"`
	Addr     string `json:"addr"`
}

// Server is the admin HTTP endpoint.
type Server struct {
	players  PlayerSource
	sessions SessionSource
	metrics  *metrics.Counters
	hub      *Hub
	srv      *http.Server
	ln       net.Listener
}

func NewServer(addr string, players PlayerSource, sessions SessionSource, m *metrics.Counters, hub *Hub) *Server {
	if m == nil {
		m = &metrics.Counters{}
	}
	if hub == nil {
		hub = NewHub()
	}
	s := &Server{players: players, sessions: sessions, metrics: m, hub: hub}
	s.srv = &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	return s
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/players", s.handlePlayers)
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/ws", s.hub.HandleWS)
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// GET /metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"metrics":    s.metrics.Snapshot(),
		"spectators": s.hub.Count(),
	}
	if updated, err := s.players.LastUpdated(r.Context()); err == nil {
		payload["store_updated"] = updated
	} else {
		utils.LogWarnf("Admin last updated: %v", err)
	}
	writeJSON(w, payload)
}

// GET /players
func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	players, err := s.players.Snapshot(r.Context())
	if err != nil {
		utils.LogErrorf("Admin players snapshot: %v", err)
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, players)
}

// GET /sessions
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.Snapshot()
	if err != nil {
		utils.LogErrorf("Admin sessions snapshot: %v", err)
		http.Error(w, "registry unavailable", http.StatusServiceUnavailable)
		return
	}
	out := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionView{PlayerID: sess.PlayerID, Addr: sess.AddrString()})
	}
	writeJSON(w, out)
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	go func() {
		utils.LogInfof("Admin HTTP listening on %s", ln.Addr())
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.LogErrorf("Admin HTTP serve: %v", err)
		}
	}()
	return nil
}

// Addr is the bound address once started.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.srv.Addr
	}
	return s.ln.Addr().String()
}

// Shutdown stops accepting requests and detaches spectators.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.srv.Shutdown(ctx)
}
