package domain

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	jsoniter "github.com/json-iterator/go"
)

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrMissingPayload   = errors.New("missing payload")
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Serializer turns envelopes into frames and back.
type Serializer interface {
	Name() string
	Serialize(Message) ([]byte, error)
	Deserialize([]byte) (Message, error)
}

type JSONSerializer struct{}

func (JSONSerializer) Name() string { return "json" }

func (JSONSerializer) Serialize(m Message) ([]byte, error) {
	b, err := jsonAPI.Marshal(m)
	if err != nil {
		return nil, errors.Wrapf(err, "serialize %s", m.Event)
	}
	return b, nil
}

func (JSONSerializer) Deserialize(data []byte) (Message, error) {
	var wire struct {
		ID      json.RawMessage `json:"id"`
		Event   Event           `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := jsonAPI.Unmarshal(data, &wire); err != nil {
		return Message{}, errors.WithSecondaryError(errors.Wrap(ErrMalformedMessage, "deserialize"), err)
	}
	if wire.Event == "" {
		return Message{}, errors.Wrap(ErrMalformedMessage, "event is empty")
	}
	m := Message{ID: wire.ID, Event: wire.Event}
	if len(wire.Payload) > 0 && string(wire.Payload) != "null" {
		m.Payload = wire.Payload
	}
	return m, nil
}

// DecodePayload fills dst from the message payload.
func DecodePayload(m Message, dst any) error {
	var raw []byte
	switch p := m.Payload.(type) {
	case nil:
		return errors.Wrapf(ErrMissingPayload, "%s", m.Event)
	case json.RawMessage:
		raw = p
	default:
		b, err := jsonAPI.Marshal(p)
		if err != nil {
			return errors.WithSecondaryError(errors.Wrapf(ErrMalformedPayload, "%s", m.Event), err)
		}
		raw = b
	}
	if err := jsonAPI.Unmarshal(raw, dst); err != nil {
		return errors.WithSecondaryError(errors.Wrapf(ErrMalformedPayload, "%s", m.Event), err)
	}
	return nil
}
