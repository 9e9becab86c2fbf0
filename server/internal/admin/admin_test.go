package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/phuhao00/worldsync/server/internal/metrics"
	"github.com/phuhao00/worldsync/server/internal/model"
	"github.com/phuhao00/worldsync/server/internal/store"
	"github.com/phuhao00/worldsync/server/internal/utils"
)

type staticSessions []model.Session

func (s staticSessions) Snapshot() ([]model.Session, error) { return s, nil }

type downStore struct{}

func (downStore) Snapshot(context.Context) (map[string]model.Player, error) {
	return nil, errors.New("connection refused")
}

func (downStore) LastUpdated(context.Context) (int64, error) {
	return 0, errors.New("connection refused")
}

func newTestServer(t *testing.T, players PlayerSource, hub *Hub) (*httptest.Server, *metrics.Counters) {
	t.Helper()
	counters := &metrics.Counters{}
	sessions := staticSessions{{PlayerID: "A", Addr: &net.UDPAddr{IP: net.IPv4(10, 0, 0, 7), Port: 5001}}}
	s := NewServer("127.0.0.1:0", players, sessions, counters, hub)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, counters
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestEndpoints(t *testing.T) {
	mem := store.NewMemoryStore(utils.FixedClock(time.Unix(1700000100, 0)))
	if err := mem.Set(context.Background(), model.NewPlayer("A", 1, 1700000000)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	ts, counters := newTestServer(t, mem, nil)
	counters.IncDatagrams()

	t.Run("healthz", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/healthz")
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}
	})

	t.Run("metrics", func(t *testing.T) {
		var body struct {
			Metrics      map[string]float64 `json:"metrics"`
			Spectators   int                `json:"spectators"`
			StoreUpdated int64              `json:"store_updated"`
		}
		if code := getJSON(t, ts.URL+"/metrics", &body); code != http.StatusOK {
			t.Fatalf("expected 200, got %d", code)
		}
		if body.Metrics["datagrams_received"] != 1 {
			t.Fatalf("unexpected metrics %v", body.Metrics)
		}
		if body.StoreUpdated != 1700000100 {
			t.Fatalf("expected store_updated from the store clock, got %d", body.StoreUpdated)
		}
	})

	t.Run("players", func(t *testing.T) {
		var players map[string]model.Player
		if code := getJSON(t, ts.URL+"/players", &players); code != http.StatusOK {
			t.Fatalf("expected 200, got %d", code)
		}
		if p, ok := players["A"]; !ok || !p.LoggedIn {
			t.Fatalf("unexpected players %v", players)
		}
	})

	t.Run("sessions", func(t *testing.T) {
		var sessions []sessionView
		if code := getJSON(t, ts.URL+"/sessions", &sessions); code != http.StatusOK {
			t.Fatalf("expected 200, got %d", code)
		}
		if len(sessions) != 1 || sessions[0].Addr != "10.0.0.7:5001" {
			t.Fatalf("unexpected sessions %v", sessions)
		}
	})
}

func TestPlayersReportsStoreFailure(t *testing.T) {
	ts, _ := newTestServer(t, downStore{}, nil)
	if code := getJSON(t, ts.URL+"/players", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
}

func TestSpectatorReceivesPublishedFrames(t *testing.T) {
	hub := NewHub()
	ts, _ := newTestServer(t, store.NewMemoryStore(nil), hub)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.Count() != 1 {
		t.Fatalf("spectator was not attached")
	}

	hub.Publish([]byte(`P0;{}`))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(msg) != `P0;{}` {
		t.Fatalf("unexpected frame %q", msg)
	}

	hub.Close()
	if hub.Count() != 0 {
		t.Fatalf("close should detach spectators")
	}
}

func TestIdleSpectatorIsKeptAlive(t *testing.T) {
	hub := NewHub()
	hub.readWait = 200 * time.Millisecond
	hub.pingPeriod = 50 * time.Millisecond
	ts, _ := newTestServer(t, store.NewMemoryStore(nil), hub)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// The client only reads; its default ping handler answers with pongs.
	var received atomic.Int64
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			received.Add(1)
		}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Count() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	for end := time.Now().Add(4 * hub.readWait); time.Now().Before(end); {
		hub.Publish([]byte(`P0;{}`))
		time.Sleep(20 * time.Millisecond)
	}

	if hub.Count() != 1 {
		t.Fatalf("spectator was dropped after %v of reading", 4*hub.readWait)
	}
	if received.Load() == 0 {
		t.Fatalf("spectator received no frames")
	}
}

func TestStartAndShutdown(t *testing.T) {
	s := NewServer("127.0.0.1:0", store.NewMemoryStore(nil), staticSessions{}, nil, nil)
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
