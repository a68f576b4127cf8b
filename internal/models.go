package internal

import (
	"encoding/json"
	"fmt"
)

// Inbound envelope types sent by the socket gateway
const (
	EnvelopeMessage          = "message"
	EnvelopeConnectionStatus = "connection_status"
)

// OutboundEnvelope is the request written to the socket for every user message
type OutboundEnvelope struct {
	UserID    string `json:"user_id"`
	UserInput string `json:"user_input"`
	SessionID string `json:"session_id"`
}

// InboundEnvelope is a response read from the socket
type InboundEnvelope struct {
	Type              string   `json:"type"`
	Message           string   `json:"message,omitempty"`
	FormattedMessage  string   `json:"formatted_message,omitempty"`
	Content           string   `json:"content,omitempty"` // connection_status carries its text here
	Sources           []string `json:"sources,omitempty"`
	FollowUpQuestions []string `json:"follow_up_questions,omitempty"`
}

// ParseInboundEnvelope decodes a raw socket frame. Frames that are not a JSON object
// with a type discriminator are reported as *ProtocolError.
func ParseInboundEnvelope(data []byte) (*InboundEnvelope, error) {
	var env InboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &ProtocolError{Payload: truncatePayload(data), Err: err}
	}
	if env.Type == "" {
		return nil, &ProtocolError{Payload: truncatePayload(data), Err: fmt.Errorf("missing type")}
	}
	return &env, nil
}

// AssistantMessage converts a message envelope into a log entry
func (e *InboundEnvelope) AssistantMessage() ChatMessage {
	return ChatMessage{
		Role:              RoleAssistant,
		Content:           e.Message,
		FormattedMessage:  e.FormattedMessage,
		Sources:           append([]string(nil), e.Sources...),
		FollowUpQuestions: append([]string(nil), e.FollowUpQuestions...),
	}
}

// StatusText returns the diagnostic text of a connection_status envelope
func (e *InboundEnvelope) StatusText() string {
	if e.Content != "" {
		return e.Content
	}
	return e.Message
}

func truncatePayload(data []byte) string {
	const max = 120
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}
