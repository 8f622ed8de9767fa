// Package wire implements the NDAX gateway frame format: the outer envelope and the positional tuples
// carried inside its double-encoded payload.
package wire

import (
	"bytes"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/coachpo/ndax-gateway/errs"
)

const (
	component = "wire"
	// rawExcerptLimit bounds how much of a rejected frame is copied into an error.
	rawExcerptLimit = 256
)

// MessageType is the exchange-defined frame discriminator. Values are passed through unchanged.
type MessageType int

const (
	// MessageTypeRequest is a client request.
	MessageTypeRequest MessageType = 0
	// MessageTypeReply is the gateway reply to a request.
	MessageTypeReply MessageType = 1
	// MessageTypeSubscribe is a subscription request.
	MessageTypeSubscribe MessageType = 2
	// MessageTypeEvent is an unsolicited event pushed by the gateway.
	MessageTypeEvent MessageType = 3
	// MessageTypeUnsubscribe is an unsubscribe request.
	MessageTypeUnsubscribe MessageType = 4
	// MessageTypeError reports a gateway-side error.
	MessageTypeError MessageType = 5
)

// Logical message names used by the client.
const (
	NameSubscribeLevel2      = "SubscribeLevel2"
	NameUnsubscribeLevel2    = "UnsubscribeLevel2"
	NameLevel2Update         = "Level2UpdateEvent"
	NameGetL2Snapshot        = "GetL2Snapshot"
	NameSubscribeTrades      = "SubscribeTrades"
	NameUnsubscribeTrades    = "UnsubscribeTrades"
	NameTradeDataUpdateEvent = "TradeDataUpdateEvent"
	NamePing                 = "Ping"
)

// Envelope is the outer frame wrapping every gateway message.
// Payload is itself a JSON document encoded as a string.
type Envelope struct {
	Type     MessageType
	Sequence uint64
	Name     string
	Payload  string
}

type envelopeJSON struct {
	M *int    `json:"m"`
	I uint64  `json:"i"`
	N *string `json:"n"`
	O *string `json:"o"`
}

type envelopeOut struct {
	M int    `json:"m"`
	I uint64 `json:"i"`
	N string `json:"n"`
	O string `json:"o"`
}

// Decode parses an inbound frame. The payload is returned as-is for a name-specific decoder.
func Decode(raw []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, malformedEnvelope("frame is not a JSON object", raw, nil)
	}
	var frame envelopeJSON
	if err := json.Unmarshal(trimmed, &frame); err != nil {
		return Envelope{}, malformedEnvelope("decode envelope", raw, err)
	}
	if frame.N == nil || strings.TrimSpace(*frame.N) == "" {
		return Envelope{}, malformedEnvelope("envelope name missing", raw, nil)
	}
	env := Envelope{
		Type:     0,
		Sequence: frame.I,
		Name:     *frame.N,
		Payload:  "",
	}
	if frame.M != nil {
		env.Type = MessageType(*frame.M)
	}
	if frame.O != nil {
		env.Payload = *frame.O
	}
	return env, nil
}

// Encode produces the outbound frame. Payload must already be serialised.
func Encode(env Envelope) ([]byte, error) {
	if strings.TrimSpace(env.Name) == "" {
		return nil, errs.New(component, errs.CodeInvalid, errs.WithMessage("envelope name required"))
	}
	data, err := json.Marshal(envelopeOut{
		M: int(env.Type),
		I: env.Sequence,
		N: env.Name,
		O: env.Payload,
	})
	if err != nil {
		return nil, errs.New(component, errs.CodeInvalid, errs.WithMessage("encode envelope"), errs.WithCause(err))
	}
	return data, nil
}

// NewRequest serialises payload to a string and wraps it in an envelope.
// A nil payload produces an empty payload string.
func NewRequest(typ MessageType, seq uint64, name string, payload any) (Envelope, error) {
	env := Envelope{Type: typ, Sequence: seq, Name: name, Payload: ""}
	if payload == nil {
		return env, nil
	}
	if s, ok := payload.(string); ok {
		env.Payload = s
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, errs.New(component, errs.CodeInvalid,
			errs.WithMessage("encode payload"), errs.WithField("name", name), errs.WithCause(err))
	}
	env.Payload = string(data)
	return env, nil
}

// IsError reports whether the gateway flagged the frame as an error.
func (e Envelope) IsError() bool {
	return e.Type == MessageTypeError
}

func malformedEnvelope(msg string, raw []byte, cause error) error {
	return errs.New(component, errs.CodeMalformedEnvelope,
		errs.WithMessage(msg),
		errs.WithRawMessage(errs.Truncate(string(raw), rawExcerptLimit)),
		errs.WithCause(cause),
	)
}
