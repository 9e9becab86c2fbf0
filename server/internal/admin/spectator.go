package admin

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/phuhao00/worldsync/server/internal/utils"
)

const (
	spectatorQueueSize = 64
	writeWait          = 5 * time.Second
	// Spectators only read, so the server pings them and each pong extends
	// the read deadline. pingPeriod must stay below readWait.
	defaultReadWait   = 60 * time.Second
	defaultPingPeriod = defaultReadWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Spectators are read-only; any origin may watch.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// spectator is one websocket watching the world.
type spectator struct {
	id         string
	ws         *websocket.Conn
	send       chan []byte
	readWait   time.Duration
	pingPeriod time.Duration
}

// enqueue drops the frame when the spectator is behind; the next tick
// carries the full map anyway.
func (s *spectator) enqueue(frame []byte) {
	select {
	case s.send <- frame:
	default:
	}
}

func (s *spectator) writePump() {
	ticker := time.NewTicker(s.pingPeriod)
	defer func() {
		ticker.Stop()
		s.ws.Close()
	}()
	for {
		select {
		case frame, ok := <-s.send:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump only exists to notice the peer going away.
func (s *spectator) readPump(done func()) {
	defer done()
	s.ws.SetReadLimit(512)
	_ = s.ws.SetReadDeadline(time.Now().Add(s.readWait))
	s.ws.SetPongHandler(func(string) error {
		return s.ws.SetReadDeadline(time.Now().Add(s.readWait))
	})
	for {
		if _, _, err := s.ws.ReadMessage(); err != nil {
			return
		}
	}
}

// Hub fans every unfiltered P0 frame out to websocket spectators.
type Hub struct {
	mu         sync.Mutex
	clients    map[*spectator]struct{}
	closed     bool
	readWait   time.Duration
	pingPeriod time.Duration
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*spectator]struct{}),
		readWait:   defaultReadWait,
		pingPeriod: defaultPingPeriod,
	}
}

// Publish never blocks the broadcast tick.
func (h *Hub) Publish(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.enqueue(frame)
	}
}

// Count is the number of attached spectators.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(c *spectator) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *spectator) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Close detaches every spectator and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// HandleWS upgrades the request and attaches a spectator.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		utils.LogWarnf("Spectator upgrade error: %v", err)
		return
	}
	c := &spectator{
		id:         uuid.NewString(),
		ws:         ws,
		send:       make(chan []byte, spectatorQueueSize),
		readWait:   h.readWait,
		pingPeriod: h.pingPeriod,
	}
	if !h.add(c) {
		_ = ws.Close()
		return
	}
	utils.LogInfof("Spectator %s attached from %s", c.id, r.RemoteAddr)

	go c.writePump()
	go c.readPump(func() {
		h.remove(c)
		utils.LogInfof("Spectator %s detached", c.id)
	})
}
