package domain

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserIDAcceptsNumbers(t *testing.T) {
	var p CancelCall
	require.NoError(t, json.Unmarshal([]byte(`{"from":42,"to":"7"}`), &p))
	assert.Equal(t, UserID("42"), p.From)
	assert.Equal(t, UserID("7"), p.To)

	err := json.Unmarshal([]byte(`{"from":{"x":1},"to":"7"}`), &p)
	assert.Error(t, err)
}

func TestUserIDValidate(t *testing.T) {
	assert.ErrorIs(t, UserID("").Validate(), ErrUserIDEmpty)
	assert.ErrorIs(t, UserID("0123456789012345678901234567890123456789").Validate(), ErrUserIDTooLong)
	assert.NoError(t, UserID("alice").Validate())
}

func TestDeserializeKeepsRawIDAndPayload(t *testing.T) {
	s := JSONSerializer{}
	m, err := s.Deserialize([]byte(`{"id":17,"event":"rtc-server","payload":{}}`))
	require.NoError(t, err)
	assert.Equal(t, EventRTCServer, m.Event)
	assert.True(t, m.HasID())
	assert.Equal(t, "17", string(m.ID))

	out, err := s.Serialize(PrepareRTCServerResponse(m.ID, []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":17,"event":"rtc-server-response","payload":[{"urls":["stun:stun.l.google.com:19302"]}]}`, string(out))
}

func TestRTCServerEnvelopes(t *testing.T) {
	s := JSONSerializer{}

	out, err := s.Serialize(PrepareRTCServer(json.RawMessage(`"q-1"`)))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"q-1","event":"rtc-server","payload":{}}`, string(out))

	servers := []webrtc.ICEServer{
		{URLs: []string{"stun:stun.example.com:3478"}},
		{URLs: []string{"turn:turn.example.com:3478", "turns:turn.example.com:5349"}, Username: "u", Credential: "p", CredentialType: webrtc.ICECredentialTypePassword},
	}
	out, err = s.Serialize(PrepareRTCServerResponse(json.RawMessage(`"q-1"`), servers))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"q-1","event":"rtc-server-response","payload":[
		{"urls":["stun:stun.example.com:3478"]},
		{"urls":["turn:turn.example.com:3478","turns:turn.example.com:5349"],"username":"u","credential":"p"}
	]}`, string(out))
	assert.NotContains(t, string(out), "credentialType")

	out, err = s.Serialize(PrepareRTCServerResponse(json.RawMessage(`3`), nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":3,"event":"rtc-server-response","payload":[]}`, string(out))
}

func TestDeserializeRejectsGarbage(t *testing.T) {
	s := JSONSerializer{}
	_, err := s.Deserialize([]byte(`not json`))
	assert.True(t, errors.Is(err, ErrMalformedMessage))

	_, err = s.Deserialize([]byte(`{"payload":{}}`))
	assert.True(t, errors.Is(err, ErrMalformedMessage))
}

func TestDecodePayload(t *testing.T) {
	s := JSONSerializer{}
	m, err := s.Deserialize([]byte(`{"event":"call","payload":{"type":"video","from":"a","to":"b"}}`))
	require.NoError(t, err)
	var call Call
	require.NoError(t, DecodePayload(m, &call))
	assert.Equal(t, Call{Type: CallTypeVideo, From: "a", To: "b"}, call)

	m, err = s.Deserialize([]byte(`{"event":"call"}`))
	require.NoError(t, err)
	assert.ErrorIs(t, DecodePayload(m, &call), ErrMissingPayload)

	m, err = s.Deserialize([]byte(`{"event":"rtc-offer","payload":{"from":"a","to":"b","sdp":"not-an-object"}}`))
	require.NoError(t, err)
	var offer RTCSession
	assert.ErrorIs(t, DecodePayload(m, &offer), ErrMalformedPayload)
}

func TestPrepareCallDefaultsToAudio(t *testing.T) {
	out, err := JSONSerializer{}.Serialize(PrepareCall(Call{From: "a", To: "b", Room: "a-b-0"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"call","payload":{"type":"audio","from":"a","to":"b","room":"a-b-0"}}`, string(out))

	out, err = JSONSerializer{}.Serialize(PreparePing())
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"ping"}`, string(out))
}
