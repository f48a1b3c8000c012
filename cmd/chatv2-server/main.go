package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chatv2/chatv2-server/observability/prom"
	"github.com/chatv2/chatv2-server/repo"
	"github.com/chatv2/chatv2-server/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "chatv2-server",
	Short: "Self-hostable CHAT protocol chat server",
	RunE:  runServer,
}

var (
	flagHost               string
	flagPort               int
	flagEncryptionRequired bool
	flagServerName         string
	flagMaxUsers           int
	flagTokenTTL           time.Duration
	flagDiscoveryEnabled   bool
	flagMulticastAddr      string
	flagMulticastPort      int
	flagBroadcastInterval  time.Duration
	flagSessionDBPath      string
	flagAttachmentAddr     string
	flagSessionClockSkew   time.Duration
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagHost, "host", "0.0.0.0", "TCP listen host")
	flags.IntVar(&flagPort, "port", 8080, "TCP listen port")
	flags.BoolVar(&flagEncryptionRequired, "encryption-required", true, "advertise encryption as required in discovery; AUTH_KEY_EXCHANGE is required before login whatever this is set to")
	flags.StringVar(&flagServerName, "server-name", "chatv2-server", "advertised server name")
	flags.IntVar(&flagMaxUsers, "max-users", 1000, "advertised max concurrent users")
	flags.DurationVar(&flagTokenTTL, "token-ttl", time.Hour, "session token lifetime")
	flags.BoolVar(&flagDiscoveryEnabled, "discovery", false, "enable UDP multicast discovery broadcaster")
	flags.StringVar(&flagMulticastAddr, "multicast-address", "239.255.255.250", "discovery multicast group address")
	flags.IntVar(&flagMulticastPort, "multicast-port", 9999, "discovery multicast group port")
	flags.DurationVar(&flagBroadcastInterval, "broadcast-interval", 5*time.Second, "discovery broadcast cadence")
	flags.StringVar(&flagSessionDBPath, "session-db", "", "pebble directory for session persistence (empty = in-memory)")
	flags.StringVar(&flagAttachmentAddr, "attachment-addr", "", "if set, listen for avatar/file/image/voice attachment connections on this address")
	flags.DurationVar(&flagSessionClockSkew, "session-clock-skew", 2*time.Second, "grace period tolerated past a session token's computed expiry")
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute root command")
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sessionRepo, closeSessions, err := openSessionRepo(flagSessionDBPath)
	if err != nil {
		return err
	}
	defer closeSessions()

	repos := server.Repos{
		Users:    repo.NewInMemoryUserRepository(),
		Sessions: sessionRepo,
		Chats:    repo.NewInMemoryChatRepository(),
		Messages: repo.NewInMemoryMessageRepository(),
	}

	// Metrics are always collected; no HTTP surface is named in the
	// protocol, so the registry is only exposed via Server.MetricsRegistry
	// for an embedder to mount (spec.md names admin dashboards as an
	// external collaborator, not this binary's job).
	metricsReg := prom.NewRegistry()

	cfg := server.DefaultConfig()
	cfg.MetricsRegistry = metricsReg
	cfg.Observer = prom.NewObserver(metricsReg)
	cfg.Host = flagHost
	cfg.Port = flagPort
	cfg.EncryptionRequired = flagEncryptionRequired
	cfg.ServerName = flagServerName
	cfg.MaxUsers = flagMaxUsers
	cfg.TokenTTL = flagTokenTTL
	cfg.DiscoveryEnabled = flagDiscoveryEnabled
	cfg.MulticastAddress = flagMulticastAddr
	cfg.MulticastPort = flagMulticastPort
	cfg.BroadcastInterval = flagBroadcastInterval
	cfg.AttachmentAddr = flagAttachmentAddr
	cfg.SessionClockSkew = flagSessionClockSkew

	srv, err := server.New(cfg, repos)
	if err != nil {
		return err
	}
	defer srv.Close()

	return srv.Serve(ctx)
}

func openSessionRepo(dir string) (repo.SessionRepository, func(), error) {
	if dir == "" {
		return repo.NewInMemorySessionRepository(), func() {}, nil
	}
	store, err := repo.OpenPebbleSessionRepository(dir)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}
