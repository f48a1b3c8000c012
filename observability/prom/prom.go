// Package prom exports observability.Observer events to Prometheus,
// adapted from the teacher's TunnelObserver/RPCObserver Prometheus
// exporters onto chat-domain metric names.
package prom

import (
	"fmt"
	"net/http"
	"time"

	"github.com/chatv2/chatv2-server/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry returns a fresh Prometheus registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Handler returns a Prometheus HTTP handler bound to the registry, for an
// embedder to mount; the server itself serves no metrics endpoint.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Observer exports server metrics to Prometheus.
type Observer struct {
	connGauge       prometheus.Gauge
	connOpenedTotal prometheus.Counter
	connClosedTotal *prometheus.CounterVec
	handshakeTotal  *prometheus.CounterVec
	authTotal       *prometheus.CounterVec
	dispatchTotal   *prometheus.CounterVec
	dispatchLatency *prometheus.HistogramVec
	messagesSent    prometheus.Counter
	fanoutDelivered prometheus.Counter
	discoveryTotal  prometheus.Counter
}

// NewObserver registers chat server metrics on reg.
func NewObserver(reg *prometheus.Registry) *Observer {
	o := &Observer{
		connGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chatv2_active_connections",
			Help: "Current TCP connection count.",
		}),
		connOpenedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatv2_connections_opened_total",
			Help: "Connections accepted since boot.",
		}),
		connClosedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatv2_connections_closed_total",
			Help: "Connections closed, by reason.",
		}, []string{"reason"}),
		handshakeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatv2_handshake_total",
			Help: "Handshake/key-exchange outcomes.",
		}, []string{"result"}),
		authTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatv2_auth_total",
			Help: "Login/register outcomes.",
		}, []string{"result"}),
		dispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatv2_dispatch_total",
			Help: "Dispatched requests, by message type and result.",
		}, []string{"message_type", "result"}),
		dispatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatv2_dispatch_latency_seconds",
			Help:    "Handler latency by message type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"message_type"}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatv2_messages_sent_total",
			Help: "MESSAGE_SEND_REQ operations persisted.",
		}),
		fanoutDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatv2_fanout_delivered_total",
			Help: "MESSAGE_RECEIVE pushes delivered to participant connections.",
		}),
		discoveryTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatv2_discovery_broadcasts_total",
			Help: "UDP discovery datagrams sent.",
		}),
	}
	reg.MustRegister(
		o.connGauge,
		o.connOpenedTotal,
		o.connClosedTotal,
		o.handshakeTotal,
		o.authTotal,
		o.dispatchTotal,
		o.dispatchLatency,
		o.messagesSent,
		o.fanoutDelivered,
		o.discoveryTotal,
	)
	return o
}

func (o *Observer) ConnectionOpened() { o.connOpenedTotal.Inc() }

func (o *Observer) ConnectionClosed(reason observability.CloseReason) {
	o.connClosedTotal.WithLabelValues(string(reason)).Inc()
}

func (o *Observer) ActiveConnections(n int64) { o.connGauge.Set(float64(n)) }

func (o *Observer) Handshake(result observability.HandshakeResult) {
	o.handshakeTotal.WithLabelValues(string(result)).Inc()
}

func (o *Observer) Auth(result observability.AuthResult) {
	o.authTotal.WithLabelValues(string(result)).Inc()
}

func (o *Observer) Dispatch(messageType uint16, result observability.DispatchResult, d time.Duration) {
	label := fmt.Sprintf("0x%04x", messageType)
	o.dispatchTotal.WithLabelValues(label, string(result)).Inc()
	o.dispatchLatency.WithLabelValues(label).Observe(d.Seconds())
}

func (o *Observer) MessageSent() { o.messagesSent.Inc() }

func (o *Observer) FanoutDelivered(n int) { o.fanoutDelivered.Add(float64(n)) }

func (o *Observer) DiscoveryBroadcast() { o.discoveryTotal.Inc() }
