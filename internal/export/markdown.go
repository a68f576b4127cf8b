package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/iksnae/chat-session/internal"
)

// MarkdownExporter exports sessions in Markdown format
type MarkdownExporter struct{}

// Export exports a session to Markdown format
func (e *MarkdownExporter) Export(session *internal.Session, w io.Writer) error {
	// Header
	_, _ = fmt.Fprintf(w, "# %s\n\n", escapeMarkdown(session.Title()))
	_, _ = fmt.Fprintf(w, "**Session:** %s  \n", session.ID)
	if !session.Timestamp.IsZero() {
		_, _ = fmt.Fprintf(w, "**Created:** %s  \n", session.Timestamp.Format(time.RFC3339))
	}
	if !session.LastUpdated.IsZero() {
		_, _ = fmt.Fprintf(w, "**Updated:** %s  \n", session.LastUpdated.Format(time.RFC3339))
	}
	_, _ = fmt.Fprintf(w, "**Messages:** %d\n\n", len(session.Messages))

	_, _ = fmt.Fprintf(w, "---\n\n")
	_, _ = fmt.Fprintf(w, "## Messages\n\n")

	for i, msg := range session.Messages {
		status := ""
		if msg.Status != "" && msg.Status != internal.DeliverySent {
			status = fmt.Sprintf(" (%s)", msg.Status)
		}

		_, _ = fmt.Fprintf(w, "**%s:**%s\n\n%s\n\n", msg.Role, status, escapeMarkdown(msg.Content))

		if len(msg.Sources) > 0 {
			_, _ = fmt.Fprintf(w, "Sources:\n\n")
			for _, src := range msg.Sources {
				_, _ = fmt.Fprintf(w, "- %s\n", src)
			}
			_, _ = fmt.Fprintln(w)
		}
		if len(msg.FollowUpQuestions) > 0 {
			_, _ = fmt.Fprintf(w, "Follow-up questions:\n\n")
			for _, q := range msg.FollowUpQuestions {
				_, _ = fmt.Fprintf(w, "- %s\n", escapeMarkdown(q))
			}
			_, _ = fmt.Fprintln(w)
		}

		// Add horizontal rule after each message (except the last one)
		if i < len(session.Messages)-1 {
			_, _ = fmt.Fprintf(w, "---\n\n")
		}
	}

	return nil
}

// escapeMarkdown escapes markdown special characters
func escapeMarkdown(text string) string {
	// Basic escaping - preserve code blocks
	lines := strings.Split(text, "\n")
	var result []string
	inCodeBlock := false

	for _, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			result = append(result, line)
		} else if inCodeBlock {
			result = append(result, line)
		} else {
			line = strings.ReplaceAll(line, "**", "\\*\\*")
			line = strings.ReplaceAll(line, "__", "\\_\\_")
			result = append(result, line)
		}
	}

	return strings.Join(result, "\n")
}

// Extension returns the file extension for this format
func (e *MarkdownExporter) Extension() string {
	return "md"
}
