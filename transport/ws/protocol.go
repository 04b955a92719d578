// Package ws is a reference WebSocket transport for a hub.Hub, grounded on
// internal/gateway/ws/protocol.go's frame envelope and method dispatch.
package ws

import "encoding/json"

// FrameType distinguishes a request to the hub, a response to one, or a
// pushed event.
type FrameType string

const (
	FrameTypeRequest  FrameType = "req"
	FrameTypeResponse FrameType = "res"
	FrameTypeEvent    FrameType = "event"
)

// Method names a request frame's operation.
type Method string

const (
	MethodSend   Method = "send"
	MethodSendTo Method = "send_to"
	MethodReply  Method = "reply"
	MethodPause  Method = "pause"
	MethodResume Method = "resume"
	MethodAbort  Method = "abort"
	MethodFork   Method = "fork"
	MethodStatus   Method = "status"
	MethodState    Method = "state"
	MethodUsage    Method = "usage"
	MethodTitle    Method = "title"
	MethodSetTitle Method = "set_title"
)

// Frame is the WebSocket protocol envelope: a request/response/event
// union distinguished by Type.
type Frame struct {
	Type      FrameType       `json:"type"`
	ID        string          `json:"id,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	OK        *bool           `json:"ok,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
	Event     string          `json:"event,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
}

// MarshalFrame serializes a Frame to JSON bytes.
func MarshalFrame(f Frame) ([]byte, error) { return json.Marshal(f) }

// UnmarshalFrame deserializes JSON bytes into a Frame.
func UnmarshalFrame(data []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(data, &f)
	return f, err
}

// NewEventFrame wraps payload as a pushed event frame.
func NewEventFrame(event, sessionID string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: FrameTypeEvent, Event: event, SessionID: sessionID, Payload: data}, nil
}

// NewResponseFrame builds a response to request id.
func NewResponseFrame(id string, ok bool, payload any, errMsg string) (Frame, error) {
	f := Frame{Type: FrameTypeResponse, ID: id, OK: &ok, Error: errMsg}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, err
		}
		f.Payload = data
	}
	return f, nil
}
