// Package server wires the wire/cryptosuite/session/repo/dispatch/registry/
// connection/discovery packages into a running chat server: accept TCP
// connections, run each through the connection pipeline, and optionally
// broadcast presence over UDP multicast. Config/DefaultConfig/New/Stats/
// shutdown are adapted from the teacher's tunnel/server.Config/DefaultConfig/
// New/Stats pattern in tunnel/server/server.go, retargeted from websocket
// channels onto this protocol's plain TCP connections.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/chatv2/chatv2-server/attachment"
	"github.com/chatv2/chatv2-server/connection"
	"github.com/chatv2/chatv2-server/cryptosuite"
	"github.com/chatv2/chatv2-server/dispatch"
	"github.com/chatv2/chatv2-server/discovery"
	"github.com/chatv2/chatv2-server/internal/defaults"
	"github.com/chatv2/chatv2-server/observability"
	"github.com/chatv2/chatv2-server/registry"
	"github.com/chatv2/chatv2-server/repo"
	"github.com/chatv2/chatv2-server/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

// Config is the server's full runtime configuration, covering the Network,
// UDP, Encryption, and Session sections of spec.md §12.
type Config struct {
	Host string
	Port int

	EncryptionRequired bool
	ServerName         string
	MaxUsers           int

	TokenTTL         time.Duration
	RefreshTokenTTL  time.Duration
	SessionSecret    []byte
	SessionClockSkew time.Duration

	ReadTimeout       time.Duration
	HeartbeatInterval time.Duration

	DiscoveryEnabled   bool
	MulticastAddress   string
	MulticastPort      int
	BroadcastInterval  time.Duration

	// AttachmentAddr, if non-empty, starts the yamux attachment side
	// channel (avatar/file/image/voice uploads) listening on this address,
	// separate from the control-plane socket so the two never contend over
	// the same byte stream.
	AttachmentAddr string

	Observer observability.Observer

	// MetricsRegistry, if set, is returned verbatim by Server.MetricsRegistry
	// for an embedder to mount behind its own HTTP server. No admin/metrics
	// HTTP surface is named anywhere in spec.md, so Server never listens for
	// it itself.
	MetricsRegistry *prometheus.Registry
}

// DefaultConfig returns spec.md §12's documented server defaults.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		EncryptionRequired: true,
		ServerName:         "chatv2-server",
		MaxUsers:           1000,
		TokenTTL:           defaults.TokenTTL,
		RefreshTokenTTL:    defaults.RefreshTokenTTL,
		ReadTimeout:        defaults.ReadTimeout,
		HeartbeatInterval:  defaults.HeartbeatInterval,
		DiscoveryEnabled:   false,
		MulticastAddress:   "239.255.255.250",
		MulticastPort:      9999,
		BroadcastInterval:  defaults.BroadcastInterval,
		Observer:           observability.Noop,
	}
}

// Repos bundles the persistence layer the server is built against. Callers
// choose in-memory or pebble-backed implementations per repo.go's
// interfaces.
type Repos struct {
	Users    repo.UserRepository
	Sessions repo.SessionRepository
	Chats    repo.ChatRepository
	Messages repo.MessageRepository
}

// Stats is a snapshot of server-wide counters.
type Stats struct {
	ActiveConnections int64
	OnlineUsers       int
}

// Server accepts CHAT-protocol TCP connections and, optionally, broadcasts
// UDP discovery presence.
type Server struct {
	cfg   Config
	obs   observability.Observer
	ident *connection.ServerIdentity

	sessions   *session.Manager
	registry   *registry.Registry
	disp       *dispatch.Registry
	bcast      *discovery.Broadcaster
	attachLn   *attachment.Listener

	listener net.Listener

	mu       sync.Mutex
	conns    map[*connection.Conn]struct{}
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds a Server bound to repos. It generates the RSA keypair used
// for the handshake, constructs
// the session manager and dispatcher, and prepares (but does not start)
// the discovery broadcaster.
func New(cfg Config, repos Repos) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.Observer == nil {
		cfg.Observer = observability.Noop
	}
	if len(cfg.SessionSecret) == 0 {
		secret, err := randomSecret(32)
		if err != nil {
			return nil, err
		}
		cfg.SessionSecret = secret
	}

	priv, err := cryptosuite.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	pubDER, err := cryptosuite.EncodePublicKeyDER(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	identity := connection.NewServerIdentity(pubDER, func(wrapped []byte) ([32]byte, error) {
		return cryptosuite.UnwrapSessionKey(priv, wrapped)
	})

	sessionMgr := session.NewManager(repos.Sessions, session.Config{
		Secret:    cfg.SessionSecret,
		TokenTTL:  cfg.TokenTTL,
		ClockSkew: cfg.SessionClockSkew,
	})
	reg := registry.New()

	deps := &dispatch.Deps{
		Users:    repos.Users,
		Sessions: sessionMgr,
		Chats:    repos.Chats,
		Messages: repos.Messages,
		Fanout:   reg,
	}
	disp := dispatch.New(deps)

	s := &Server{
		cfg:      cfg,
		obs:      cfg.Observer,
		ident:    identity,
		sessions: sessionMgr,
		registry: reg,
		disp:     disp,
		conns:    make(map[*connection.Conn]struct{}),
		stopCh:   make(chan struct{}),
	}

	if cfg.AttachmentAddr != "" {
		handlers := attachment.NewHandlers(repos.Users, attachment.NewMemoryBlobStore())
		s.attachLn = attachment.NewListener(sessionMgr, handlers.Handle)
	}

	if cfg.DiscoveryEnabled {
		s.bcast = discovery.New(discovery.Config{
			ServerID:           hex.EncodeToString(mustRandomBytes(8)),
			ServerName:         cfg.ServerName,
			Address:            cfg.Host,
			Port:               cfg.Port,
			Version:            "1.0.0",
			MaxUsers:           cfg.MaxUsers,
			EncryptionRequired: cfg.EncryptionRequired,
			EncryptionType:     string(cryptosuite.DefaultSuite),
			MulticastAddress:   cfg.MulticastAddress,
			MulticastPort:      cfg.MulticastPort,
			BroadcastInterval:  cfg.BroadcastInterval,
		}, reg.CurrentUsers, cfg.Observer)
	}

	return s, nil
}

// Serve listens on cfg.Host:cfg.Port and runs the accept loop until ctx is
// canceled or Close is called. It also starts the session cleanup sweep
// and, if configured, the discovery broadcaster.
func (s *Server) Serve(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, portString(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go s.sessions.Run(ctx)
	if s.bcast != nil {
		go func() {
			if err := s.bcast.Run(ctx); err != nil {
				log.Warn().Err(err).Msg("server: discovery broadcaster stopped")
			}
		}()
	}
	if s.attachLn != nil {
		go func() {
			if err := s.attachLn.Serve(ctx, s.cfg.AttachmentAddr); err != nil {
				log.Warn().Err(err).Msg("server: attachment listener stopped")
			}
		}()
	}

	log.Info().Str("addr", addr).Bool("encryption_required", s.cfg.EncryptionRequired).Msg("server: listening")

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return nil
			default:
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.serveConn(ctx, nc)
	}
}

func (s *Server) serveConn(ctx context.Context, nc net.Conn) {
	connCfg := connection.Config{
		ReadTimeout:        s.cfg.ReadTimeout,
		HeartbeatInterval:  s.cfg.HeartbeatInterval,
		EncryptionRequired: s.cfg.EncryptionRequired,
		MaxQueuedOutbound:  256,
	}
	c := connection.New(nc, s.ident, s.disp, s.registry, s.obs, connCfg)

	s.mu.Lock()
	s.conns[c] = struct{}{}
	n := int64(len(s.conns))
	s.mu.Unlock()
	s.obs.ActiveConnections(n)

	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		n := int64(len(s.conns))
		s.mu.Unlock()
		s.obs.ActiveConnections(n)
	}()

	c.Serve(ctx)
}

// MetricsRegistry returns the Prometheus registry supplied via
// Config.MetricsRegistry, or nil if none was configured.
func (s *Server) MetricsRegistry() *prometheus.Registry {
	return s.cfg.MetricsRegistry
}

// Stats returns a snapshot of server-wide counters.
func (s *Server) Stats() Stats {
	s.mu.Lock()
	active := int64(len(s.conns))
	s.mu.Unlock()
	return Stats{ActiveConnections: active, OnlineUsers: s.registry.CurrentUsers()}
}

// Close stops the accept loop, the discovery broadcaster, and the session
// cleanup sweep exactly once.
func (s *Server) Close() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.mu.Lock()
		ln := s.listener
		s.mu.Unlock()
		if ln != nil {
			err = ln.Close()
		}
		if s.bcast != nil {
			s.bcast.Stop()
		}
		if s.attachLn != nil {
			_ = s.attachLn.Close()
		}
		s.sessions.Close()
	})
	return err
}

func randomSecret(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func mustRandomBytes(n int) []byte {
	b, err := randomSecret(n)
	if err != nil {
		// crypto/rand failure is unrecoverable; a server identity without
		// entropy can't safely continue.
		panic(err)
	}
	return b
}

func portString(p int) string { return strconv.Itoa(p) }
