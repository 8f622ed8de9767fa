package wire

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/ndax-gateway/errs"
)

func TestDecodeEnvelopeKeepsPayloadEncoded(t *testing.T) {
	raw := []byte(`{"m":3,"i":42,"n":"Level2UpdateEvent","o":"[[1,1,0,0,0,1,100.5,1,2.5,0]]"}`)

	env, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, MessageTypeEvent, env.Type)
	require.Equal(t, uint64(42), env.Sequence)
	require.Equal(t, NameLevel2Update, env.Name)
	require.Equal(t, "[[1,1,0,0,0,1,100.5,1,2.5,0]]", env.Payload)
}

func TestDecodeEnvelopePassesUnknownMessageTypesThrough(t *testing.T) {
	env, err := Decode([]byte(`{"m":17,"i":1,"n":"Custom","o":"{}"}`))
	require.NoError(t, err)
	require.Equal(t, MessageType(17), env.Type)
	require.False(t, env.IsError())

	env, err = Decode([]byte(`{"m":5,"i":1,"n":"SubscribeLevel2","o":"{\"errormsg\":\"Not authorized\"}"}`))
	require.NoError(t, err)
	require.True(t, env.IsError())
}

func TestDecodeEnvelopeRejectsMalformedFrames(t *testing.T) {
	cases := map[string]string{
		"not json":     `not json at all`,
		"truncated":    `{"m":0,"i":1,"n":"Ping"`,
		"missing name": `{"m":0,"i":1,"o":"{}"}`,
		"blank name":   `{"m":0,"i":1,"n":"  ","o":"{}"}`,
		"array":        `[1,2,3]`,
		"empty":        ``,
	}
	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(frame))
			require.Error(t, err)
			require.True(t, errs.HasCode(err, errs.CodeMalformedEnvelope), "got %v", err)
		})
	}
}

func TestEncodeProducesOuterDocument(t *testing.T) {
	data, err := Encode(Envelope{Type: MessageTypeRequest, Sequence: 7, Name: NamePing, Payload: "{}"})
	require.NoError(t, err)
	require.JSONEq(t, `{"m":0,"i":7,"n":"Ping","o":"{}"}`, string(data))

	_, err = Encode(Envelope{Type: MessageTypeRequest, Sequence: 1})
	require.True(t, errs.HasCode(err, errs.CodeInvalid))
}

func TestNewRequestDoubleEncodesPayload(t *testing.T) {
	payload := struct {
		OMSId        int `json:"OMSId"`
		InstrumentId int `json:"InstrumentId"`
		Depth        int `json:"Depth"`
	}{OMSId: 1, InstrumentId: 1, Depth: 10}

	env, err := NewRequest(MessageTypeRequest, 3, NameSubscribeLevel2, payload)
	require.NoError(t, err)
	require.JSONEq(t, `{"OMSId":1,"InstrumentId":1,"Depth":10}`, env.Payload)

	data, err := Encode(env)
	require.NoError(t, err)

	var outer map[string]any
	require.NoError(t, json.Unmarshal(data, &outer))
	inner, ok := outer["o"].(string)
	require.True(t, ok, "payload must travel as a string")
	require.JSONEq(t, `{"OMSId":1,"InstrumentId":1,"Depth":10}`, inner)

	roundTrip, err := Decode(data)
	require.NoError(t, err)
	require.Equal(t, env, roundTrip)
}

func TestNewRequestAcceptsPreSerialisedAndEmptyPayloads(t *testing.T) {
	env, err := NewRequest(MessageTypeRequest, 1, NamePing, nil)
	require.NoError(t, err)
	require.Empty(t, env.Payload)

	env, err = NewRequest(MessageTypeRequest, 1, NamePing, `{"a":1}`)
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, env.Payload)
}
