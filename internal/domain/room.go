package domain

type RoomID string

type CallType string

const (
	CallTypeAudio CallType = "audio"
	CallTypeVideo CallType = "video"
)

// OrDefault maps anything unknown to audio.
func (t CallType) OrDefault() CallType {
	switch t {
	case CallTypeAudio, CallTypeVideo:
		return t
	default:
		return CallTypeAudio
	}
}

type Reason string

const (
	ReasonOffline Reason = "offline"
	ReasonBusy    Reason = "busy"
	ReasonTimeout Reason = "timeout"
	ReasonHandled Reason = "handled"
	ReasonUnknown Reason = "unknown"
)

type AnswerAction string

const (
	ActionAccept  AnswerAction = "accept"
	ActionDecline AnswerAction = "decline"
	ActionMiss    AnswerAction = "miss"
)
