package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	dialNamespace = "dial"

	outcomeLabelName = "outcome"
	reasonLabelName  = "reason"
)

// Call outcomes.
const (
	CallInitiated      = "initiated"
	CallAccepted       = "accepted"
	CallDeclined       = "declined"
	CallCancelled      = "cancelled"
	CallUnknown        = "unknown"
	CallMissedOffline  = "missed_offline"
	CallMissedBusy     = "missed_busy"
	CallTimeout        = "timeout"
	CallCallerOffline  = "caller_offline"
	CallCalleeOffline  = "callee_offline"
	CallBusyPreempted  = "busy_preempted"
	CallPeerDisconnect = "peer_disconnect"
)

var (
	OnlineUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: dialNamespace,
			Name:      "users",
			Help:      "number of registered user sessions",
		})

	ActiveRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: dialNamespace,
			Name:      "rooms",
			Help:      "number of open rooms",
		})

	Calls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: dialNamespace,
			Name:      "calls_total",
			Help:      "call attempts by outcome",
		}, []string{outcomeLabelName})

	RoomsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: dialNamespace,
			Name:      "rooms_closed_total",
			Help:      "closed rooms by close reason",
		}, []string{reasonLabelName})

	TransportFaults = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: dialNamespace,
			Name:      "transport_faults_total",
			Help:      "errors reported by client connections",
		})

	FramesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: dialNamespace,
			Name:      "frames_dropped_total",
			Help:      "inbound frames discarded because they did not decode",
		})
	UpgradesRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: dialNamespace,
			Name:      "upgrades_rejected_total",
			Help:      "websocket upgrades refused before attach",
		}, []string{reasonLabelName})
)

var registerOnce sync.Once

// Register adds every collector to registry. Later calls are no-ops.
func Register(registry *prometheus.Registry) {
	registerOnce.Do(func() {
		registry.MustRegister(OnlineUsers)
		registry.MustRegister(ActiveRooms)
		registry.MustRegister(Calls)
		registry.MustRegister(RoomsClosed)
		registry.MustRegister(TransportFaults)
		registry.MustRegister(FramesDropped)
		registry.MustRegister(UpgradesRejected)
	})
}
