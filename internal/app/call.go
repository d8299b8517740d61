package app

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/domain"
	"github.com/dkeye/Dial/internal/metrics"
)

func (m *SessionManager) bindClient(c *core.ClientSession) {
	ev := c.Events()
	ev.Ping.On(m.onClientPing)
	ev.Call.On(m.onClientCall)
	ev.CancelCall.On(m.onClientCancelCall)
	ev.CallAnswer.On(m.onClientCallAnswer)
}

func (m *SessionManager) onClientPing(in core.Inbound[struct{}]) {
	in.Client.Pong()
}

// claimed reports whether the sender of a call message speaks for itself.
func claimed(in *core.ClientSession, from domain.UserID, event domain.Event) bool {
	if from == in.Owner() {
		return true
	}
	log.Warn().Str("module", "app.call").Str("user", string(in.Owner())).Str("from", string(from)).
		Str("event", string(event)).Msg("ignored message sent on behalf of another user")
	return false
}

func (m *SessionManager) onClientCall(in core.Inbound[domain.Call]) {
	callerClient := in.Client
	callerID, calleeID := in.Payload.From, in.Payload.To
	if !claimed(callerClient, callerID, domain.EventCall) {
		return
	}
	metrics.Calls.WithLabelValues(metrics.CallInitiated).Inc()

	callee := m.User(calleeID)
	if callee == nil || !callee.Online() {
		callerClient.NotifyCallMissed(calleeID, domain.ReasonOffline)
		metrics.Calls.WithLabelValues(metrics.CallMissedOffline).Inc()
		return
	}
	// Only rooms the callee started count as busy; competing incoming calls
	// are settled when one of them is accepted.
	if m.HasRoomWithCaller(calleeID) {
		callerClient.NotifyCallMissed(calleeID, domain.ReasonBusy)
		metrics.Calls.WithLabelValues(metrics.CallMissedBusy).Inc()
		return
	}

	room, err := m.CreateRoom(callerID, calleeID, in.Payload.Type)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.call").Msg("create room")
		callerClient.NotifyCallMissed(calleeID, domain.ReasonOffline)
		metrics.Calls.WithLabelValues(metrics.CallMissedOffline).Inc()
		return
	}
	if err := room.SetCallerClient(callerClient); err != nil {
		log.Error().Err(err).Str("module", "app.call").Str("room", string(room.ID())).Msg("bind caller client")
		room.Close(core.CloseNormal, "unknown")
		return
	}

	cleanups := core.Subscriptions{
		callerClient.Events().Offline.Once(func(*core.ClientSession) {
			if room.Closed() {
				return
			}
			if !room.InCall() {
				callee.ForwardCallCancelled(callerID, domain.ReasonOffline)
			}
			metrics.Calls.WithLabelValues(metrics.CallCallerOffline).Inc()
			room.Close(core.CloseNormal, "caller client offline")
		}),
		callee.Events().Offline.Once(func(*core.UserSession) {
			if room.Closed() {
				return
			}
			if !room.InCall() {
				callerClient.NotifyCallMissed(calleeID, domain.ReasonOffline)
			}
			metrics.Calls.WithLabelValues(metrics.CallCalleeOffline).Inc()
			room.Close(core.CloseNormal, "callee offline")
		}),
		room.Events().Timeout.Once(func(*core.RoomSession) {
			if room.InCall() {
				return
			}
			callerClient.NotifyCallMissed(calleeID, domain.ReasonTimeout)
			callee.ForwardCallCancelled(callerID, domain.ReasonTimeout)
			metrics.Calls.WithLabelValues(metrics.CallTimeout).Inc()
		}),
	}
	room.Events().Close.Once(func(core.RoomClose) { cleanups.Unsubscribe() })

	callee.ForwardIncomingCall(callerID, room.Type(), room.ID())
}

func (m *SessionManager) onClientCancelCall(in core.Inbound[domain.CancelCall]) {
	callerID, calleeID := in.Payload.From, in.Payload.To
	if !claimed(in.Client, callerID, domain.EventCancelCall) {
		return
	}
	room := m.RoomByIDs(callerID, calleeID)
	if room == nil {
		return
	}
	if room.Callee().Online() {
		room.Callee().Forward(in.Message)
	}
	metrics.Calls.WithLabelValues(metrics.CallCancelled).Inc()
	room.Close(core.CloseNormal, "call cancelled")
}

func (m *SessionManager) onClientCallAnswer(in core.Inbound[domain.CallAnswer]) {
	calleeClient := in.Client
	calleeID, callerID := in.Payload.From, in.Payload.To
	if !claimed(calleeClient, calleeID, domain.EventCallAnswer) {
		return
	}
	room := m.RoomByIDs(callerID, calleeID)
	if room == nil {
		return
	}
	callerClient := room.CallerClient()
	if callerClient == nil {
		return
	}

	switch in.Payload.Action {
	case domain.ActionAccept:
		if err := room.SetCalleeClient(calleeClient); err != nil {
			log.Warn().Err(err).Str("module", "app.call").Str("room", string(room.ID())).Msg("bind callee client")
			return
		}
		callerClient.NotifyCallAccepted(calleeID, room.ID())
		room.Callee().ForwardCallCancelled(callerID, domain.ReasonHandled, calleeClient.ID())
		m.preemptPendingCalls(room)
		room.Events().Disconnect.Once(func(ev core.RoomDisconnect) {
			metrics.Calls.WithLabelValues(metrics.CallPeerDisconnect).Inc()
			if ev.Client == callerClient {
				calleeClient.NotifyCallEnd(callerID, domain.ReasonOffline)
			} else {
				callerClient.NotifyCallEnd(calleeID, domain.ReasonOffline)
			}
		})
		metrics.Calls.WithLabelValues(metrics.CallAccepted).Inc()
	case domain.ActionDecline:
		callerClient.NotifyCallDeclined(calleeID)
		room.Callee().ForwardCallCancelled(callerID, domain.ReasonHandled, calleeClient.ID())
		metrics.Calls.WithLabelValues(metrics.CallDeclined).Inc()
		room.Close(core.CloseNormal, "call declined")
	default:
		callerClient.NotifyCallMissed(calleeID, domain.ReasonUnknown)
		metrics.Calls.WithLabelValues(metrics.CallUnknown).Inc()
		room.Close(core.CloseNormal, "unknown")
	}
}

// preemptPendingCalls closes every other call still ringing the callee of
// the accepted room.
func (m *SessionManager) preemptPendingCalls(accepted *core.RoomSession) {
	calleeID := accepted.Callee().ID()
	for _, r := range m.RoomsByCallee(calleeID) {
		if r == accepted || r.Caller().ID() == accepted.Caller().ID() {
			continue
		}
		if cc := r.CallerClient(); cc != nil {
			cc.NotifyCallMissed(calleeID, domain.ReasonBusy)
			r.Callee().ForwardCallCancelled(cc.Owner(), domain.ReasonBusy)
		}
		metrics.Calls.WithLabelValues(metrics.CallBusyPreempted).Inc()
		r.Close(core.CloseNormal, "callee busy")
	}
}
