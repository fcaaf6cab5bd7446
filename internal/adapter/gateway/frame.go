package gateway

import (
	"encoding/json"

	"techassist/internal/domain"
)

// FrameType tags a WebSocket RPC frame.
type FrameType string

const (
	FrameTypeRequest  FrameType = "request"
	FrameTypeResponse FrameType = "response"
)

// Frame is one WebSocket RPC message. A request carries Method and the
// method's JSON params in Payload; the response echoes ID and carries either
// the result in Payload or Error with its machine-readable Code.
type Frame struct {
	Type    FrameType       `json:"type"`
	ID      uint64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
	Code    string          `json:"code,omitempty"`
}

// responseFrame answers request id with result, or with err when non-nil.
func responseFrame(id uint64, result json.RawMessage, err error) Frame {
	if err != nil {
		return Frame{
			Type:  FrameTypeResponse,
			ID:    id,
			Error: err.Error(),
			Code:  string(domain.ErrorCodeOf(err)),
		}
	}
	return Frame{Type: FrameTypeResponse, ID: id, Payload: result}
}
