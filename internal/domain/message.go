package domain

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

type Event string

const (
	EventPing              Event = "ping"
	EventPong              Event = "pong"
	EventCall              Event = "call"
	EventCancelCall        Event = "cancel-call"
	EventCallAnswer        Event = "call-answer"
	EventEndCall           Event = "end-call"
	EventRTCOffer          Event = "rtc-offer"
	EventRTCAnswer         Event = "rtc-answer"
	EventRTCCandidate      Event = "rtc-candidate"
	EventRTCServer         Event = "rtc-server"
	EventRTCServerResponse Event = "rtc-server-response"
)

// Message is the wire envelope. ID is kept as raw JSON so a string or
// number id is echoed back unchanged. Inbound messages carry their payload
// as json.RawMessage; outbound ones may carry any encodable value.
type Message struct {
	ID      json.RawMessage `json:"id,omitempty"`
	Event   Event           `json:"event"`
	Payload any             `json:"payload,omitempty"`
}

func (m Message) HasID() bool { return len(m.ID) > 0 && string(m.ID) != "null" }

type Call struct {
	Type CallType `json:"type"`
	From UserID   `json:"from"`
	To   UserID   `json:"to"`
	Room RoomID   `json:"room,omitempty"`
}

type CancelCall struct {
	From   UserID `json:"from"`
	To     UserID `json:"to"`
	Reason Reason `json:"reason,omitempty"`
}

type CallAnswer struct {
	Action AnswerAction `json:"action"`
	Reason Reason       `json:"reason,omitempty"`
	From   UserID       `json:"from"`
	To     UserID       `json:"to"`
	Room   RoomID       `json:"room,omitempty"`
}

type EndCall struct {
	From   UserID `json:"from"`
	To     UserID `json:"to"`
	Reason Reason `json:"reason,omitempty"`
}

// RTCSession carries an rtc-offer or rtc-answer.
type RTCSession struct {
	From UserID                    `json:"from"`
	To   UserID                    `json:"to"`
	SDP  webrtc.SessionDescription `json:"sdp"`
}

type RTCCandidate struct {
	From      UserID                  `json:"from"`
	To        UserID                  `json:"to"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// RTCServer is the (empty) body of an ICE server query.
type RTCServer struct{}

// ICEServer is one rtc-server-response entry. Only the fields browsers read
// from RTCIceServer are sent.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential any      `json:"credential,omitempty"`
}
