package game

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/phuhao00/worldsync/server/internal/metrics"
	"github.com/phuhao00/worldsync/server/internal/model"
	"github.com/phuhao00/worldsync/server/internal/protocol"
	"github.com/phuhao00/worldsync/server/internal/store"
)

type staticSessions []model.Session

func (s staticSessions) Snapshot() ([]model.Session, error) { return s, nil }

type brokenSessions struct{}

func (brokenSessions) Snapshot() ([]model.Session, error) { return nil, errors.New("future: timeout") }

// recordingSender captures frames by destination and fails for one address.
type recordingSender struct {
	mu     sync.Mutex
	frames map[string][]byte
	failTo string
}

func newRecordingSender(failTo string) *recordingSender {
	return &recordingSender{frames: make(map[string][]byte), failTo: failTo}
}

func (r *recordingSender) WriteTo(b []byte, addr net.Addr) (int, error) {
	if addr.String() == r.failTo {
		return 0, errors.New("network unreachable")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[addr.String()] = append([]byte(nil), b...)
	return len(b), nil
}

func (r *recordingSender) frame(addr string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames[addr]
}

type recordingPublisher struct {
	frames [][]byte
}

func (r *recordingPublisher) Publish(frame []byte) { r.frames = append(r.frames, frame) }

func session(id string, port int) model.Session {
	return model.Session{PlayerID: id, Addr: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}}
}

func seedPlayers(t *testing.T, s store.Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if err := s.Set(context.Background(), model.NewPlayer(id, 1, 1700000000)); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
}

func TestBroadcastExcludesRecipient(t *testing.T) {
	s := store.NewMemoryStore(gameClock)
	seedPlayers(t, s, "A", "B", "C")
	sender := newRecordingSender("")
	sessions := staticSessions{session("A", 9001), session("B", 9002)}
	b := NewBroadcaster(s, sessions, sender, nil)

	if err := b.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	b.Wait()

	for _, sess := range sessions {
		raw := sender.frame(sess.AddrString())
		if raw == nil {
			t.Fatalf("no frame sent to %s", sess.PlayerID)
		}
		players, err := protocol.DecodeBroadcast(raw)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if _, ok := players[sess.PlayerID]; ok {
			t.Errorf("frame for %s contains its own record", sess.PlayerID)
		}
		if len(players) != 2 {
			t.Errorf("frame for %s should carry 2 players, got %d", sess.PlayerID, len(players))
		}
	}
}

func TestBroadcastSendFailureDoesNotBlockOthers(t *testing.T) {
	s := store.NewMemoryStore(gameClock)
	seedPlayers(t, s, "A", "B")
	bad := session("A", 9001)
	sender := newRecordingSender(bad.AddrString())
	counters := &metrics.Counters{}
	b := NewBroadcaster(s, staticSessions{bad, session("B", 9002)}, sender, counters)

	if err := b.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	b.Wait()

	if sender.frame("127.0.0.1:9002") == nil {
		t.Fatalf("B should still receive its frame")
	}
	snap := counters.Snapshot()
	if snap["send_failures"] != int64(1) || snap["broadcasts_sent"] != int64(1) {
		t.Fatalf("unexpected counters %v", snap)
	}
}

func TestBroadcastPublishesUnfilteredFrame(t *testing.T) {
	s := store.NewMemoryStore(gameClock)
	seedPlayers(t, s, "A", "B")
	pub := &recordingPublisher{}
	b := NewBroadcaster(s, staticSessions{session("A", 9001)}, newRecordingSender(""), nil)
	b.SetPublisher(pub)

	if err := b.Tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	b.Wait()

	if len(pub.frames) != 1 {
		t.Fatalf("expected one published frame, got %d", len(pub.frames))
	}
	players, err := protocol.DecodeBroadcast(pub.frames[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(players) != 2 {
		t.Fatalf("spectator frame should carry every player, got %d", len(players))
	}
}

func TestBroadcastSkipsRoundWhenRegistryUnavailable(t *testing.T) {
	s := store.NewMemoryStore(gameClock)
	pub := &recordingPublisher{}
	b := NewBroadcaster(s, brokenSessions{}, newRecordingSender(""), nil)
	b.SetPublisher(pub)
	if err := b.Tick(context.Background()); err != nil {
		t.Fatalf("registry errors must not be fatal, got %v", err)
	}
	if len(pub.frames) != 0 {
		t.Fatalf("nothing should be published for a skipped round")
	}
}

type brokenStore struct {
	store.Store
}

func (brokenStore) Snapshot(context.Context) (map[string]model.Player, error) {
	return nil, errors.New("dial tcp: connection refused")
}

func TestBroadcastStoreFailureIsFatal(t *testing.T) {
	b := NewBroadcaster(brokenStore{}, staticSessions{}, newRecordingSender(""), nil)
	if err := b.Tick(context.Background()); err == nil {
		t.Fatal("expected store error")
	}
}
