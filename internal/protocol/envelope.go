package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind discriminates the outer envelope used for all non-request text frames.
type Kind string

const (
	KindCommandResponse Kind = "commandResponse"
	KindCommandError    Kind = "commandError"
	KindEvent           Kind = "event"
	KindError           Kind = "error"
)

// Valid reports whether k is one of the defined envelope kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindCommandResponse, KindCommandError, KindEvent, KindError:
		return true
	}
	return false
}

// CommandResponse is the successful result of a command, keyed by request id.
type CommandResponse struct {
	ID       uint32          `json:"id"`
	Response json.RawMessage `json:"response,omitempty"`
}

// CommandError is the failed result of a command, keyed by request id.
// Stack is optional and carries the handler's stack trace when available.
type CommandError struct {
	ID      uint32 `json:"id"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// Event is an unsolicited notification; it has no corresponding request.
type Event struct {
	ID         uint32            `json:"id"`
	Domain     string            `json:"domain"`
	Event      string            `json:"event"`
	Parameters []json.RawMessage `json:"parameters,omitempty"`
}

// TransportError reports a message the receiver could not parse or validate.
type TransportError struct {
	Message string `json:"message"`
}

// Envelope is the closed union of all non-request wire messages. Exactly one
// payload field is non-nil, matching Kind. It is decoded once at the wire
// boundary so the rest of the system never checks field presence.
type Envelope struct {
	Kind            Kind
	CommandResponse *CommandResponse
	CommandError    *CommandError
	Event           *Event
	Error           *TransportError
}

// wireEnvelope is the JSON shape of an envelope on the wire.
type wireEnvelope struct {
	Type    Kind            `json:"type"`
	Message json.RawMessage `json:"message"`
}

// Encode serializes the envelope to its JSON wire form.
func (e *Envelope) Encode() ([]byte, error) {
	var msg any
	switch e.Kind {
	case KindCommandResponse:
		msg = e.CommandResponse
	case KindCommandError:
		msg = e.CommandError
	case KindEvent:
		msg = e.Event
	case KindError:
		msg = e.Error
	default:
		return nil, fmt.Errorf("unknown envelope kind: %q", e.Kind)
	}
	if msg == nil {
		return nil, fmt.Errorf("envelope kind %q has no payload", e.Kind)
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s payload: %w", e.Kind, err)
	}
	return json.Marshal(wireEnvelope{Type: e.Kind, Message: raw})
}

// DecodeEnvelope parses an envelope from its JSON wire form.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("parsing envelope: %w", err)
	}
	env := &Envelope{Kind: w.Type}
	switch w.Type {
	case KindCommandResponse:
		env.CommandResponse = &CommandResponse{}
		if err := json.Unmarshal(w.Message, env.CommandResponse); err != nil {
			return nil, fmt.Errorf("parsing commandResponse payload: %w", err)
		}
	case KindCommandError:
		env.CommandError = &CommandError{}
		if err := json.Unmarshal(w.Message, env.CommandError); err != nil {
			return nil, fmt.Errorf("parsing commandError payload: %w", err)
		}
	case KindEvent:
		env.Event = &Event{}
		if err := json.Unmarshal(w.Message, env.Event); err != nil {
			return nil, fmt.Errorf("parsing event payload: %w", err)
		}
	case KindError:
		env.Error = &TransportError{}
		if err := json.Unmarshal(w.Message, env.Error); err != nil {
			return nil, fmt.Errorf("parsing error payload: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown envelope kind: %q", w.Type)
	}
	return env, nil
}

// NewCommandResponse builds a commandResponse envelope for id, marshaling
// value to JSON. Raw byte payloads never take this path; they are framed as
// binary responses instead.
func NewCommandResponse(id uint32, value any) (*Envelope, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshaling response for id %d: %w", id, err)
	}
	return &Envelope{
		Kind:            KindCommandResponse,
		CommandResponse: &CommandResponse{ID: id, Response: raw},
	}, nil
}

// NewCommandError builds a commandError envelope for id.
func NewCommandError(id uint32, message, stack string) *Envelope {
	return &Envelope{
		Kind:         KindCommandError,
		CommandError: &CommandError{ID: id, Message: message, Stack: stack},
	}
}

// NewEvent builds an event envelope, marshaling each parameter to JSON.
func NewEvent(id uint32, domain, event string, params []any) (*Envelope, error) {
	var raws []json.RawMessage
	for i, p := range params {
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshaling event parameter %d: %w", i, err)
		}
		raws = append(raws, raw)
	}
	return &Envelope{
		Kind:  KindEvent,
		Event: &Event{ID: id, Domain: domain, Event: event, Parameters: raws},
	}, nil
}

// NewError builds an error envelope with the given message.
func NewError(message string) *Envelope {
	return &Envelope{Kind: KindError, Error: &TransportError{Message: message}}
}

// Request is an inbound command invocation frame. Unlike responses and
// events it travels bare on the wire, not wrapped in a {type, message}
// envelope.
type Request struct {
	ID         uint32
	Domain     string
	Command    string
	Parameters []json.RawMessage
}

// EncodeRequest serializes a request frame, marshaling each parameter.
func EncodeRequest(id uint32, domain, command string, params []any) ([]byte, error) {
	out := struct {
		ID         uint32 `json:"id"`
		Domain     string `json:"domain"`
		Command    string `json:"command"`
		Parameters []any  `json:"parameters,omitempty"`
	}{ID: id, Domain: domain, Command: command, Parameters: params}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshaling request %s.%s: %w", domain, command, err)
	}
	return data, nil
}

// Repair returns JSON that parses, given text that may be missing exactly
// one trailing '}'. This is a narrow compatibility shim for a transport
// truncation bug, not a lenient parser: the only repair ever attempted is a
// single appended brace. The second return is false when neither the
// original nor the repaired text is valid JSON.
func Repair(data []byte) ([]byte, bool) {
	if json.Valid(data) {
		return data, true
	}
	repaired := make([]byte, 0, len(data)+1)
	repaired = append(repaired, data...)
	repaired = append(repaired, '}')
	if json.Valid(repaired) {
		return repaired, true
	}
	return nil, false
}

// ValidationError lists the request header fields that failed validation,
// together with the raw text that carried them.
type ValidationError struct {
	Fields []string
	Raw    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Malformed message, invalid fields [%s]: %s",
		strings.Join(e.Fields, " "), e.Raw)
}

// DecodeRequest parses data (already known to be valid JSON) as a request
// frame and validates it: id must be a non-negative integer that fits in 32
// bits, domain a non-empty string, command a string. On failure it returns a
// *ValidationError naming every field that failed.
func DecodeRequest(data []byte) (*Request, error) {
	var raw struct {
		ID         json.RawMessage `json:"id"`
		Domain     json.RawMessage `json:"domain"`
		Command    json.RawMessage `json:"command"`
		Parameters json.RawMessage `json:"parameters"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ValidationError{Fields: []string{"id", "domain", "command"}, Raw: string(data)}
	}

	req := &Request{}
	var bad []string

	// json.Unmarshal treats an explicit null as a no-op for scalar targets,
	// so null fields must be rejected before unmarshaling.
	var id float64
	if isNullish(raw.ID) || json.Unmarshal(raw.ID, &id) != nil || id < 0 || id != float64(uint32(id)) {
		bad = append(bad, "id")
	} else {
		req.ID = uint32(id)
	}

	if isNullish(raw.Domain) || json.Unmarshal(raw.Domain, &req.Domain) != nil || req.Domain == "" {
		bad = append(bad, "domain")
	}

	if isNullish(raw.Command) || json.Unmarshal(raw.Command, &req.Command) != nil {
		bad = append(bad, "command")
	}

	if raw.Parameters != nil && string(raw.Parameters) != "null" {
		if err := json.Unmarshal(raw.Parameters, &req.Parameters); err != nil {
			bad = append(bad, "parameters")
		}
	}

	if len(bad) > 0 {
		return nil, &ValidationError{Fields: bad, Raw: string(data)}
	}
	return req, nil
}

// isNullish reports whether a raw field is absent or an explicit JSON null.
func isNullish(raw json.RawMessage) bool {
	return raw == nil || string(raw) == "null"
}
