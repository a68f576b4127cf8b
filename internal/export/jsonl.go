package export

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/iksnae/chat-session/internal"
)

// JSONLExporter exports sessions in JSONL format (one message per line)
type JSONLExporter struct{}

// Export exports a session to JSONL format
func (e *JSONLExporter) Export(session *internal.Session, w io.Writer) error {
	enc := json.NewEncoder(w)

	for _, msg := range session.Messages {
		obj := map[string]interface{}{
			"role":    msg.Role,
			"content": msg.Content,
		}
		if len(msg.Sources) > 0 {
			obj["sources"] = msg.Sources
		}
		if len(msg.FollowUpQuestions) > 0 {
			obj["follow_up_questions"] = msg.FollowUpQuestions
		}
		if msg.Status != "" {
			obj["status"] = msg.Status
		}

		// Encode to single line
		if err := enc.Encode(obj); err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
	}

	return nil
}

// Extension returns the file extension for this format
func (e *JSONLExporter) Extension() string {
	return "jsonl"
}
