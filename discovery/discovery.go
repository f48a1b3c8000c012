// Package discovery implements the UDP multicast presence broadcaster of
// spec.md §4.7. Each broadcast is a JSON datagram sent over net.DialUDP to the
// multicast group, with the multicast TTL set through golang.org/x/net/ipv4
// (see DESIGN.md). The periodic-ticker-loop
// shape mirrors session.Manager.Run's cleanup sweep.
package discovery

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chatv2/chatv2-server/internal/defaults"
	"github.com/chatv2/chatv2-server/observability"
	"golang.org/x/net/ipv4"
)

// ServerState is the advertised operational state of a server.
type ServerState string

const (
	StateActive      ServerState = "ACTIVE"
	StateMaintenance ServerState = "MAINTENANCE"
	StateFull        ServerState = "FULL"
)

// Packet is the JSON payload broadcast on the multicast group every
// broadcast interval (spec.md §4.7).
type Packet struct {
	ServerID           string      `json:"server_id"`
	ServerName         string      `json:"server_name"`
	Address            string      `json:"address"`
	Port               int         `json:"port"`
	Version            string      `json:"version"`
	MaxUsers           int         `json:"max_users"`
	CurrentUsers       int         `json:"current_users"`
	EncryptionRequired bool        `json:"encryption_required"`
	EncryptionType      string     `json:"encryption_type,omitempty"`
	State              ServerState `json:"state"`
}

// CurrentUsersFunc returns the live count of distinct connected users,
// backed by *registry.Registry.CurrentUsers in production.
type CurrentUsersFunc func() int

// Config configures a Broadcaster.
type Config struct {
	ServerID           string
	ServerName         string
	Address            string // advertised TCP listen address
	Port               int    // advertised TCP listen port
	Version            string
	MaxUsers           int
	EncryptionRequired bool
	EncryptionType     string

	MulticastAddress string // e.g. "239.255.255.250"
	MulticastPort    int    // e.g. 9999
	Interface        *net.Interface

	BroadcastInterval time.Duration
}

// DefaultConfig fills in spec.md §12's documented UDP defaults. Callers
// still need to set ServerID/ServerName/Address/Port/MaxUsers.
func DefaultConfig() Config {
	return Config{
		MulticastAddress:  "239.255.255.250",
		MulticastPort:     9999,
		BroadcastInterval: defaults.BroadcastInterval,
		Version:           "1.0",
	}
}

// Broadcaster periodically emits a Packet to its configured multicast
// group. It is independent of the TCP accept loop: Start/Stop may be
// called regardless of server socket state (spec.md §4.7).
type Broadcaster struct {
	cfg          Config
	currentUsers CurrentUsersFunc
	obs          observability.Observer

	maintenance atomicBool

	mu     sync.Mutex
	conn   *net.UDPConn
	stopCh chan struct{}
}

// New constructs a Broadcaster. currentUsers is polled on every tick to
// populate current_users/state.
func New(cfg Config, currentUsers CurrentUsersFunc, obs observability.Observer) *Broadcaster {
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = defaults.BroadcastInterval
	}
	if obs == nil {
		obs = observability.Noop
	}
	return &Broadcaster{cfg: cfg, currentUsers: currentUsers, obs: obs}
}

// SetMaintenance toggles advertising ServerState=MAINTENANCE regardless of
// current_users/max_users (an operator-driven override, not spec-mandated
// but a natural extension of the ACTIVE/FULL state already modeled).
func (b *Broadcaster) SetMaintenance(on bool) { b.maintenance.set(on) }

// Run opens the multicast socket and broadcasts until ctx is canceled or
// Stop is called. It blocks; callers typically run it in its own
// goroutine.
func (b *Broadcaster) Run(ctx context.Context) error {
	raddr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(b.cfg.MulticastAddress, portString(b.cfg.MulticastPort)))
	if err != nil {
		return err
	}
	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return err
	}
	// spec.md §4.7: multicast TTL >= 4.
	_ = ipv4.NewPacketConn(conn).SetMulticastTTL(4)

	b.mu.Lock()
	b.conn = conn
	b.stopCh = make(chan struct{})
	stopCh := b.stopCh
	b.mu.Unlock()

	defer conn.Close()

	ticker := time.NewTicker(b.cfg.BroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stopCh:
			return nil
		case <-ticker.C:
			b.broadcastOnce(conn)
		}
	}
}

// Stop halts a running broadcaster. Safe to call even if Run was never
// started.
func (b *Broadcaster) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopCh != nil {
		select {
		case <-b.stopCh:
		default:
			close(b.stopCh)
		}
	}
}

func (b *Broadcaster) broadcastOnce(conn *net.UDPConn) {
	current := 0
	if b.currentUsers != nil {
		current = b.currentUsers()
	}
	state := StateActive
	if b.maintenance.get() {
		state = StateMaintenance
	} else if b.cfg.MaxUsers > 0 && current >= b.cfg.MaxUsers {
		state = StateFull
	}
	pkt := Packet{
		ServerID:           b.cfg.ServerID,
		ServerName:         b.cfg.ServerName,
		Address:            b.cfg.Address,
		Port:               b.cfg.Port,
		Version:            b.cfg.Version,
		MaxUsers:           b.cfg.MaxUsers,
		CurrentUsers:       current,
		EncryptionRequired: b.cfg.EncryptionRequired,
		EncryptionType:     b.cfg.EncryptionType,
		State:              state,
	}
	payload, err := json.Marshal(pkt)
	if err != nil {
		return
	}
	if _, err := conn.Write(payload); err == nil {
		b.obs.DiscoveryBroadcast()
	}
}

func portString(p int) string { return strconv.Itoa(p) }

// atomicBool is a tiny lock-free flag used for the maintenance override.
type atomicBool struct{ v atomic.Bool }

func (a *atomicBool) set(on bool) { a.v.Store(on) }
func (a *atomicBool) get() bool   { return a.v.Load() }
