package domain

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

func prepare(event Event, payload any) Message {
	return Message{Event: event, Payload: payload}
}

func PreparePing() Message { return prepare(EventPing, nil) }

func PreparePong() Message { return prepare(EventPong, nil) }

func PrepareCall(p Call) Message {
	p.Type = p.Type.OrDefault()
	return prepare(EventCall, p)
}

func PrepareCancelCall(p CancelCall) Message { return prepare(EventCancelCall, p) }

func PrepareCallAnswer(p CallAnswer) Message { return prepare(EventCallAnswer, p) }

func PrepareAcceptCall(from, to UserID, room RoomID) Message {
	return PrepareCallAnswer(CallAnswer{Action: ActionAccept, From: from, To: to, Room: room})
}

func PrepareDeclineCall(from, to UserID) Message {
	return PrepareCallAnswer(CallAnswer{Action: ActionDecline, From: from, To: to})
}

func PrepareMissCall(from, to UserID, reason Reason) Message {
	return PrepareCallAnswer(CallAnswer{Action: ActionMiss, Reason: reason, From: from, To: to})
}

func PrepareEndCall(p EndCall) Message { return prepare(EventEndCall, p) }

func PrepareRTCOffer(p RTCSession) Message { return prepare(EventRTCOffer, p) }

func PrepareRTCAnswer(p RTCSession) Message { return prepare(EventRTCAnswer, p) }

func PrepareRTCCandidate(p RTCCandidate) Message { return prepare(EventRTCCandidate, p) }

func PrepareRTCServer(id json.RawMessage) Message {
	m := prepare(EventRTCServer, RTCServer{})
	m.ID = id
	return m
}

func PrepareRTCServerResponse(id json.RawMessage, servers []webrtc.ICEServer) Message {
	entries := make([]ICEServer, 0, len(servers))
	for _, srv := range servers {
		entries = append(entries, ICEServer{URLs: srv.URLs, Username: srv.Username, Credential: srv.Credential})
	}
	m := prepare(EventRTCServerResponse, entries)
	m.ID = id
	return m
}
