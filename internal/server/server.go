// Package server runs the worker daemon: it owns the domain registry and
// the connection pool, accepts UI connections over a Unix socket and an
// optional WebSocket listener, and broadcasts worker events.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"

	"github.com/codespacesh/domainwire/internal/bridge"
	"github.com/codespacesh/domainwire/internal/client"
	"github.com/codespacesh/domainwire/internal/config"
	"github.com/codespacesh/domainwire/internal/domain"
	"github.com/codespacesh/domainwire/internal/fsdomain"
	"github.com/codespacesh/domainwire/internal/journal"
	"github.com/codespacesh/domainwire/internal/manifest"
	"github.com/codespacesh/domainwire/internal/transport"
)

// Server is the worker daemon.
type Server struct {
	Registry *domain.Registry
	Pool     *bridge.Pool

	cfg        *config.Config
	journal    *journal.Journal
	dataDir    string
	socketPath string
	pidPath    string
	started    time.Time
	eventID    atomic.Uint32
}

// New creates a Server rooted at dataDir. It loads the configuration,
// builds the registry with the built-in domains, applies configured
// manifests, and opens the journal when enabled.
func New(dataDir string) (*Server, error) {
	cfg, err := config.LoadConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	reg := domain.NewRegistry()
	domain.RegisterBase(reg)
	fsdomain.Register(reg)
	manifest.RegisterCommands(reg)
	reg.RegisterEvent("worker", "status", domain.EventSpec{
		Description: "periodic worker heartbeat",
	})

	for _, path := range cfg.Manifests {
		m, err := manifest.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading manifest: %w", err)
		}
		if err := m.Apply(reg); err != nil {
			return nil, fmt.Errorf("applying manifest %s: %w", path, err)
		}
		slog.Info("loaded domain manifest", "path", path, "domain", m.Domain)
	}

	s := &Server{
		Registry:   reg,
		Pool:       bridge.NewPool(),
		cfg:        cfg,
		dataDir:    dataDir,
		socketPath: filepath.Join(dataDir, client.SocketName),
		pidPath:    filepath.Join(dataDir, "domainwire.pid"),
		started:    time.Now(),
	}

	if cfg.Journal.Enabled {
		retention := time.Duration(cfg.Journal.RetentionHours) * time.Hour
		jnl, err := journal.Open(dataDir, retention)
		if err != nil {
			return nil, fmt.Errorf("opening journal: %w", err)
		}
		s.journal = jnl
		reg.SetHook(jnl)
	}

	return s, nil
}

// PIDPath returns the daemon's pid file path for dataDir.
func PIDPath(dataDir string) string {
	return filepath.Join(dataDir, "domainwire.pid")
}

// Run starts the worker daemon. It writes a PID file, listens on a Unix
// socket, and optionally starts a WebSocket server. It blocks until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	pid := os.Getpid()
	if err := os.WriteFile(s.pidPath, []byte(fmt.Sprintf("%d", pid)), 0o644); err != nil {
		return fmt.Errorf("writing pid file: %w", err)
	}

	// Remove stale socket if it exists.
	_ = os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on unix socket: %w", err)
	}
	slog.Info("listening on unix socket", "path", s.socketPath, "worker", s.cfg.Worker.Name)

	defer s.Cleanup()

	if s.cfg.Worker.Listen != nil {
		addr := *s.cfg.Worker.Listen
		go func() {
			if wsErr := s.runWSServer(ctx, addr); wsErr != nil {
				slog.Error("websocket server error", "err", wsErr)
			}
		}()
	}

	if s.cfg.Worker.HeartbeatSeconds > 0 {
		go s.heartbeatLoop(ctx, time.Duration(s.cfg.Worker.HeartbeatSeconds)*time.Second)
	}

	// Close the listener when ctx is cancelled so Accept unblocks.
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			slog.Error("accept error", "err", acceptErr)
			continue
		}
		s.serveChannel(ctx, transport.NewUnixChannel(conn))
	}
}

// serveChannel attaches a transport channel as a pooled bridge connection
// and starts its receive loop.
func (s *Server) serveChannel(ctx context.Context, ch transport.Channel) {
	c := bridge.New(ch, s.Registry)
	s.Pool.Register(c)
	slog.Debug("connection opened", "conn", c.ID(), "connections", s.Pool.Len())
	go func() {
		if err := c.Run(ctx); err != nil {
			slog.Debug("connection ended", "conn", c.ID(), "err", err)
		}
	}()
}

// Broadcast pushes an event to every connected peer and journals it. Event
// ids come from the server's own counter; they correlate nothing and exist
// for diagnostics.
func (s *Server) Broadcast(domainName, event string, params ...any) {
	id := s.eventID.Add(1)
	if s.journal != nil {
		s.journal.RecordEvent(id, domainName, event)
	}
	s.Pool.BroadcastEvent(id, domainName, event, params...)
}

// heartbeatLoop broadcasts worker.status at the configured interval.
func (s *Server) heartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Broadcast("worker", "status", map[string]any{
				"name":        s.cfg.Worker.Name,
				"uptimeSec":   int64(time.Since(s.started).Seconds()),
				"connections": s.Pool.Len(),
			})
		}
	}
}

// Cleanup closes all connections, the journal, and removes the Unix socket
// and PID files.
func (s *Server) Cleanup() {
	s.Pool.CloseAll()
	if s.journal != nil {
		_ = s.journal.Close()
	}
	_ = os.Remove(s.socketPath)
	_ = os.Remove(s.pidPath)
}

// runWSServer starts an HTTP server that upgrades /wire connections to
// WebSocket and attaches them like Unix-socket clients.
func (s *Server) runWSServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/wire", func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := websocket.Accept(w, r, nil)
		if err != nil {
			slog.Error("websocket accept error", "err", err)
			return
		}
		wsConn.SetReadLimit(-1)
		s.serveChannel(ctx, transport.NewWSChannel(ctx, wsConn))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	slog.Info("websocket server listening", "addr", addr)

	// Shut down gracefully when ctx is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("websocket server: %w", err)
	}
	return nil
}
