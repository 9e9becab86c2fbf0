package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	sessionactor "github.com/phuhao00/worldsync/server/internal/actor" // Alias for the actor package
	"github.com/phuhao00/worldsync/server/internal/metrics"
	"github.com/phuhao00/worldsync/server/internal/protocol"
	"github.com/phuhao00/worldsync/server/internal/store"
	"github.com/phuhao00/worldsync/server/internal/utils"
)

const (
	// MaxDatagramSize is the read buffer for both inbound sockets. Longer
	// datagrams are truncated by the kernel and then fail to decode.
	MaxDatagramSize = 512
	// readTimeout bounds each blocking read so the loops notice shutdown.
	readTimeout = 5 * time.Millisecond
	// shutdownTimeout bounds how long Stop waits for the loops.
	shutdownTimeout = 5 * time.Second
)

// ErrExitRequested is the cancel cause set when a client sends E0.
var ErrExitRequested = errors.New("exit requested by client")

// Config holds the socket layout.
type Config struct {
	Host     string
	RecvPort int
	SendPort int
	SyncPort int
	// ClientPort is the port broadcasts go to; 0 means the sender's port + 1.
	ClientPort      int
	FreshnessWindow time.Duration
	// Ack sends a zero-length datagram back for every accepted command.
	Ack bool
}

// Registrar records the broadcast address of a player.
type Registrar interface {
	Register(playerID string, addr *net.UDPAddr)
}

// PositionSyncer applies S0 reports.
type PositionSyncer interface {
	Apply(ctx context.Context, report protocol.PositionReport) error
}

// UDPServer owns the three sockets and runs the intake and sync loops.
type UDPServer struct {
	cfg      Config
	registry Registrar
	syncer   PositionSyncer
	commands chan<- protocol.Command
	metrics  *metrics.Counters
	now      utils.Clock

	recvConn *net.UDPConn
	sendConn *net.UDPConn
	syncConn *net.UDPConn

	cancel   context.CancelCauseFunc
	wg       sync.WaitGroup
	shutdown chan struct{}
	stopOnce sync.Once
}

// NewUDPServer creates a server. Commands that pass decoding are pushed onto
// commands without blocking.
func NewUDPServer(cfg Config, registry Registrar, syncer PositionSyncer, commands chan<- protocol.Command, m *metrics.Counters) *UDPServer {
	if registry == nil {
		utils.LogFatalf("UDPServer: registry cannot be nil")
	}
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = protocol.DefaultFreshnessWindow
	}
	if m == nil {
		m = &metrics.Counters{}
	}
	return &UDPServer{
		cfg:      cfg,
		registry: registry,
		syncer:   syncer,
		commands: commands,
		metrics:  m,
		now:      utils.SystemClock,
		shutdown: make(chan struct{}),
	}
}

// SetClock replaces the clock used for freshness checks.
func (s *UDPServer) SetClock(now utils.Clock) {
	if now != nil {
		s.now = now
	}
}

func listen(host string, port int) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve %s:%d: %w", host, port, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen udp %s: %w", addr, err)
	}
	return conn, nil
}

// Start binds every socket and launches the loops. cancel is invoked with
// ErrExitRequested on E0 and with the error when position sync hits a store
// failure.
func (s *UDPServer) Start(ctx context.Context, cancel context.CancelCauseFunc) error {
	s.cancel = cancel

	var err error
	if s.recvConn, err = listen(s.cfg.Host, s.cfg.RecvPort); err != nil {
		return err
	}
	if s.sendConn, err = listen(s.cfg.Host, s.cfg.SendPort); err != nil {
		s.closeSockets()
		return err
	}
	if s.syncer != nil {
		if s.syncConn, err = listen(s.cfg.Host, s.cfg.SyncPort); err != nil {
			s.closeSockets()
			return err
		}
	}
	utils.LogInfof("UDP server listening: commands %s, broadcasts %s", s.recvConn.LocalAddr(), s.sendConn.LocalAddr())

	s.wg.Add(1)
	go s.intakeLoop(ctx)
	if s.syncConn != nil {
		utils.LogInfof("Position sync listening on %s", s.syncConn.LocalAddr())
		s.wg.Add(1)
		go s.syncLoop(ctx)
	}
	return nil
}

// SendConn is the socket broadcasts leave from.
func (s *UDPServer) SendConn() *net.UDPConn { return s.sendConn }

// RecvAddr is the bound command socket address.
func (s *UDPServer) RecvAddr() net.Addr { return s.recvConn.LocalAddr() }

// SyncAddr is the bound sync socket address, nil when sync is disabled.
func (s *UDPServer) SyncAddr() net.Addr {
	if s.syncConn == nil {
		return nil
	}
	return s.syncConn.LocalAddr()
}

// read performs one deadline-bounded read. done reports that the loop should exit.
func (s *UDPServer) read(ctx context.Context, conn *net.UDPConn, buf []byte) (n int, src *net.UDPAddr, done bool) {
	select {
	case <-ctx.Done():
		return 0, nil, true
	case <-s.shutdown:
		return 0, nil, true
	default:
	}
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	n, src, err := conn.ReadFromUDP(buf)
	if err == nil {
		return n, src, false
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 0, nil, false
	}
	if errors.Is(err, net.ErrClosed) {
		return 0, nil, true
	}
	utils.LogWarnf("UDP read on %s failed: %v", conn.LocalAddr(), err)
	return 0, nil, false
}

func (s *UDPServer) intakeLoop(ctx context.Context) {
	defer s.wg.Done()
	utils.LogInfo("UDP intake loop started.")
	buf := make([]byte, MaxDatagramSize)
	for {
		n, src, done := s.read(ctx, s.recvConn, buf)
		if done {
			utils.LogInfo("UDP intake loop shutting down.")
			return
		}
		if src == nil || n <= 1 {
			continue
		}
		s.handleCommand(buf[:n], src)
	}
}

func (s *UDPServer) handleCommand(datagram []byte, src *net.UDPAddr) {
	s.metrics.IncDatagrams()
	cmd, err := protocol.Decode(datagram, s.now(), s.cfg.FreshnessWindow)
	if err != nil {
		switch {
		case errors.Is(err, protocol.ErrStale):
			s.metrics.IncStale()
		case errors.Is(err, protocol.ErrUnknownOp):
			s.metrics.IncUnknownOp()
		default:
			s.metrics.IncMalformed()
		}
		utils.LogDebugf("[%s] Dropped datagram: %v", src, err)
		return
	}

	if cmd.Type == protocol.CommandExit {
		utils.LogWarnf("[%s] Exit requested, shutting down.", src)
		if s.cancel != nil {
			s.cancel(ErrExitRequested)
		}
		return
	}

	if reply := sessionactor.ReplyAddr(src, s.cfg.ClientPort); reply != nil {
		s.registry.Register(cmd.Context.PlayerID, reply)
	} else {
		utils.LogDebugf("[%s] No broadcast port above %d, %s not registered", src, src.Port, cmd.Context.PlayerID)
	}

	select {
	case s.commands <- cmd:
		s.metrics.IncQueued()
	default:
		s.metrics.IncQueueFull()
		utils.LogWarnf("[%s] Command queue full, dropping %s for %s", src, cmd.Type, cmd.Context.PlayerID)
		return
	}

	if s.cfg.Ack {
		if _, err := s.recvConn.WriteToUDP(nil, src); err != nil {
			utils.LogDebugf("[%s] Ack failed: %v", src, err)
		}
	}
}

func (s *UDPServer) syncLoop(ctx context.Context) {
	defer s.wg.Done()
	utils.LogInfo("Position sync loop started.")
	buf := make([]byte, MaxDatagramSize)
	for {
		n, src, done := s.read(ctx, s.syncConn, buf)
		if done {
			utils.LogInfo("Position sync loop shutting down.")
			return
		}
		if src == nil || n == 0 {
			continue
		}
		if err := s.handleReport(ctx, buf[:n], src); err != nil {
			utils.LogErrorf("Position sync failed: %v", err)
			if s.cancel != nil {
				s.cancel(err)
			}
			return
		}
	}
}

// handleReport returns an error only for store connectivity failures.
func (s *UDPServer) handleReport(ctx context.Context, datagram []byte, src *net.UDPAddr) error {
	report, err := protocol.DecodePositionReport(datagram)
	if err != nil {
		s.metrics.IncSyncDropped()
		utils.LogDebugf("[%s] Dropped position report: %v", src, err)
		return nil
	}
	if err := s.syncer.Apply(ctx, report); err != nil {
		if errors.Is(err, store.ErrPlayerNotFound) || ctx.Err() != nil {
			s.metrics.IncSyncDropped()
			return nil
		}
		if errors.Is(err, store.ErrCorruptRecord) {
			s.metrics.IncSyncDropped()
			utils.LogWarnf("[%s] Dropped position report: %v", src, err)
			return nil
		}
		return fmt.Errorf("position sync for %s: %w", report.PlayerID, err)
	}
	s.metrics.IncSyncApplied()
	return nil
}

func (s *UDPServer) closeSockets() {
	for _, conn := range []*net.UDPConn{s.recvConn, s.sendConn, s.syncConn} {
		if conn == nil {
			continue
		}
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			utils.LogWarnf("Error closing UDP socket %s: %v", conn.LocalAddr(), err)
		}
	}
}

// Stop closes every socket and waits for the loops to finish.
func (s *UDPServer) Stop() {
	s.stopOnce.Do(func() {
		utils.LogInfo("Attempting to stop UDP Server...")
		close(s.shutdown)
		s.closeSockets()

		shutdownCompleted := make(chan struct{})
		go func() {
			s.wg.Wait()
			close(shutdownCompleted)
		}()

		select {
		case <-shutdownCompleted:
			utils.LogInfo("UDP Server all goroutines finished.")
		case <-time.After(shutdownTimeout):
			utils.LogWarn("UDP Server shutdown timed out waiting for goroutines.")
		}
	})
}
