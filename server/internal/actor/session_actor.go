package actor

import (
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/phuhao00/worldsync/server/internal/actor/messages"
	"github.com/phuhao00/worldsync/server/internal/model"
	"github.com/phuhao00/worldsync/server/internal/utils"
)

// DefaultSnapshotTimeout bounds how long a broadcast tick waits for the registry.
const DefaultSnapshotTimeout = time.Second

// SessionRegistryActor owns the player id -> broadcast address table. Only the
// actor goroutine touches the map. Entries are never removed.
type SessionRegistryActor struct {
	sessions map[string]*net.UDPAddr
}

// NewSessionRegistryActor creates an empty registry actor.
func NewSessionRegistryActor() actor.Actor {
	return &SessionRegistryActor{sessions: make(map[string]*net.UDPAddr)}
}

// Receive is the message handling loop for the SessionRegistryActor.
func (a *SessionRegistryActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		utils.LogInfof("[SessionRegistry %s] Started.", ctx.Self().Id)

	case *actor.Stopping:
		utils.LogInfof("[SessionRegistry %s] Stopping with %d sessions.", ctx.Self().Id, len(a.sessions))

	case *actor.Stopped:
		utils.LogInfof("[SessionRegistry %s] Stopped.", ctx.Self().Id)

	case *messages.RegisterSession:
		a.handleRegister(msg)

	case *messages.SessionSnapshotRequest:
		ctx.Respond(&messages.SessionSnapshotResponse{Sessions: a.snapshot()})

	default:
		utils.LogDebugf("[SessionRegistry %s] Received unknown message: %T", ctx.Self().Id, msg)
	}
}

func (a *SessionRegistryActor) handleRegister(msg *messages.RegisterSession) {
	if msg.PlayerID == "" || msg.Addr == nil {
		return
	}
	if prev, ok := a.sessions[msg.PlayerID]; ok && prev.String() == msg.Addr.String() {
		return
	}
	utils.LogDebugf("[SessionRegistry] %s -> %s", msg.PlayerID, msg.Addr)
	a.sessions[msg.PlayerID] = msg.Addr
}

func (a *SessionRegistryActor) snapshot() []model.Session {
	sessions := make([]model.Session, 0, len(a.sessions))
	for id, addr := range a.sessions {
		sessions = append(sessions, model.Session{PlayerID: id, Addr: addr})
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].PlayerID < sessions[j].PlayerID })
	return sessions
}

// PropsForSessionRegistry creates actor.Props for SessionRegistryActor.
func PropsForSessionRegistry() *actor.Props {
	return actor.PropsFromProducer(NewSessionRegistryActor)
}

// SessionRegistry is the handle the network and broadcast tasks hold.
type SessionRegistry struct {
	system  *actor.ActorSystem
	pid     *actor.PID
	timeout time.Duration
}

// NewSessionRegistry spawns the registry actor under name.
func NewSessionRegistry(system *actor.ActorSystem, name string) (*SessionRegistry, error) {
	pid, err := system.Root.SpawnNamed(PropsForSessionRegistry(), name)
	if err != nil {
		return nil, fmt.Errorf("spawn session registry: %w", err)
	}
	utils.LogInfof("SessionRegistryActor spawned with PID: %s", pid.String())
	return &SessionRegistry{system: system, pid: pid, timeout: DefaultSnapshotTimeout}, nil
}

// Register upserts playerID -> addr without waiting for the actor.
func (r *SessionRegistry) Register(playerID string, addr *net.UDPAddr) {
	r.system.Root.Send(r.pid, &messages.RegisterSession{PlayerID: playerID, Addr: addr})
}

// Snapshot returns every registered session, sorted by player id.
func (r *SessionRegistry) Snapshot() ([]model.Session, error) {
	res, err := r.system.Root.RequestFuture(r.pid, &messages.SessionSnapshotRequest{}, r.timeout).Result()
	if err != nil {
		return nil, fmt.Errorf("session snapshot: %w", err)
	}
	resp, ok := res.(*messages.SessionSnapshotResponse)
	if !ok {
		return nil, fmt.Errorf("session snapshot: unexpected reply %T", res)
	}
	return resp.Sessions, nil
}

// Stop stops the registry actor and waits for it.
func (r *SessionRegistry) Stop() {
	utils.LogInfof("Stopping SessionRegistryActor %s...", r.pid.String())
	if err := r.system.Root.StopFuture(r.pid).Wait(); err != nil {
		utils.LogErrorf("Error stopping SessionRegistryActor: %v", err)
	}
}

// maxPort is the highest valid UDP port.
const maxPort = 65535

// ReplyAddr derives the broadcast address for a datagram source. A zero
// clientPort means the client listens on its send port + 1. It returns nil
// when that port does not exist.
func ReplyAddr(src *net.UDPAddr, clientPort int) *net.UDPAddr {
	port := clientPort
	if port == 0 {
		port = src.Port + 1
	}
	if port > maxPort {
		return nil
	}
	ip := make(net.IP, len(src.IP))
	copy(ip, src.IP)
	return &net.UDPAddr{IP: ip, Port: port, Zone: src.Zone}
}
