package internal

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role identifies the author of a chat message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DeliveryStatus tracks an outbound user message after it has been appended to the log
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// ChatMessage is one entry of a conversation log
type ChatMessage struct {
	Role              Role           `json:"role" yaml:"role"`
	Content           string         `json:"content" yaml:"content"`
	FormattedMessage  string         `json:"formatted_message,omitempty" yaml:"formatted_message,omitempty"`
	Sources           []string       `json:"sources,omitempty" yaml:"sources,omitempty"`
	FollowUpQuestions []string       `json:"follow_up_questions,omitempty" yaml:"follow_up_questions,omitempty"`
	Status            DeliveryStatus `json:"status,omitempty" yaml:"status,omitempty"` // local only, user messages
}

// Session is a conversation record owned by the Session Store
type Session struct {
	ID           string        `json:"id" yaml:"id"`
	FirstMessage string        `json:"first_message" yaml:"first_message"`
	Timestamp    Timestamp     `json:"timestamp" yaml:"timestamp"`
	LastUpdated  Timestamp     `json:"last_updated" yaml:"last_updated"`
	Messages     []ChatMessage `json:"messages" yaml:"messages"`
}

// Title returns a single-line label for the session
func (s *Session) Title() string {
	title := strings.TrimSpace(s.FirstMessage)
	if title == "" {
		return "Untitled"
	}
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	return title
}

// timestampLayouts are tried in order. Python's isoformat() omits the zone for naive
// datetimes, and those are read as local time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Timestamp is an ISO-8601 time as sent by the Session Store
type Timestamp struct {
	time.Time
}

// ParseTimestamp parses an ISO-8601 string in any of the accepted layouts
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, nil
	}
	for _, layout := range timestampLayouts {
		var (
			t   time.Time
			err error
		)
		if strings.Contains(layout, "Z07:00") {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, time.Local)
		}
		if err == nil {
			return Timestamp{Time: t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// UnmarshalJSON accepts an ISO-8601 string or null
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = Timestamp{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalJSON writes RFC3339 with nanoseconds, or an empty string for the zero time
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// MarshalYAML writes the same representation as MarshalJSON
func (t Timestamp) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

// UnmarshalYAML reads the representation written by MarshalYAML
func (t *Timestamp) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t Timestamp) String() string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339Nano)
}
