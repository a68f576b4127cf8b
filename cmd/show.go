package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/chat-session/internal"
	"github.com/spf13/cobra"
)

var limit int

var (
	// Styles for show command
	sessionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212")).
				Padding(0, 1).
				MarginBottom(1)

	sessionMetaStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				MarginBottom(1)

	userMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true).
				Padding(0, 1)

	assistantMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("135")).
				Bold(true).
				Padding(0, 1)

	messageContentStyle = lipgloss.NewStyle().
				Padding(0, 2).
				MarginBottom(1)

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	sourceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Underline(true)

	followUpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("108"))
)

// showCmd represents the show command
var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show messages for a specific session",
	Long: `Display the messages of a stored chat session.

The session is fetched from the Session Store. If the store cannot be reached the
last cached copy is shown instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := strings.TrimSpace(args[0])

		id, err := requireIdentity()
		if err != nil {
			return err
		}

		session, err := fetchSession(cmd.Context(), id.Nickname, sessionID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		displaySessionHeader(out, session)

		total := len(session.Messages)
		if total == 0 {
			_, _ = fmt.Fprintln(out, sessionMetaStyle.Render("(no messages)"))
			return nil
		}

		messagesToShow := session.Messages
		if limit > 0 && limit < total {
			messagesToShow = messagesToShow[:limit]
		}

		for i, msg := range messagesToShow {
			renderMessage(out, msg, fmt.Sprintf("[%d/%d]", i+1, total))
		}

		// Show remaining count if limit was applied
		if limit > 0 && limit < total {
			_, _ = fmt.Fprintln(out)
			_, _ = fmt.Fprintln(out, lipgloss.NewStyle().
				Foreground(lipgloss.Color("243")).
				Italic(true).
				Render(fmt.Sprintf("... (%d more message(s))", total-limit)))
		}

		return nil
	},
}

// fetchSession reads a session from the store and refreshes the cache. When the
// store fails or does not know the session, the cached copy is used.
func fetchSession(ctx context.Context, userID, sessionID string) (*internal.Session, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	client := newStoreClient()
	cache := newCacheManager()

	var session *internal.Session
	err := internal.ShowProgress(ctx, fmt.Sprintf("Loading session %s", sessionID), func() error {
		var getErr error
		session, getErr = client.GetSession(ctx, sessionID, userID)
		return getErr
	})

	if err == nil && session != nil {
		if cacheErr := cache.SaveSessionAndUpdateIndex(session, userID); cacheErr != nil {
			internal.LogWarn("Failed to update cache: %v", cacheErr)
		}
		return session, nil
	}

	cached, cacheErr := cache.LoadSession(sessionID)
	if cacheErr == nil {
		if err != nil {
			internal.PrintWarning(fmt.Sprintf("Session Store unavailable (%v), showing cached copy", err))
		}
		return cached, nil
	}
	if !errors.Is(cacheErr, internal.ErrSessionNotFound) {
		internal.LogWarn("Failed to read cache: %v", cacheErr)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	return nil, fmt.Errorf("%w: %s (use 'chat-session history' to see available sessions)", internal.ErrSessionNotFound, sessionID)
}

func displaySessionHeader(w io.Writer, session *internal.Session) {
	if session == nil {
		return
	}
	_, _ = fmt.Fprintln(w, sessionHeaderStyle.Render(fmt.Sprintf("💬 %s", session.Title())))

	metaParts := []string{fmt.Sprintf("ID: %s", session.ID)}
	if !session.Timestamp.IsZero() {
		metaParts = append(metaParts, fmt.Sprintf("Created: %s", session.Timestamp.Local().Format("2006-01-02 15:04")))
	}
	if !session.LastUpdated.IsZero() {
		metaParts = append(metaParts, fmt.Sprintf("Updated: %s", session.LastUpdated.Local().Format("2006-01-02 15:04")))
	}
	metaParts = append(metaParts, fmt.Sprintf("Messages: %d", len(session.Messages)))

	_, _ = fmt.Fprintln(w, sessionMetaStyle.Render(strings.Join(metaParts, " • ")))
	_, _ = fmt.Fprintln(w)
}

// renderMessage prints one log entry with its sources and numbered follow-ups
func renderMessage(w io.Writer, msg internal.ChatMessage, label string) {
	var header string
	switch msg.Role {
	case internal.RoleUser:
		header = userMessageStyle.Render("👤 You")
	case internal.RoleAssistant:
		header = assistantMessageStyle.Render("🤖 Assistant")
	default:
		header = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Render(fmt.Sprintf("🔧 %s", msg.Role))
	}
	if label != "" {
		header += " " + timestampStyle.Render(label)
	}
	if msg.Status == internal.DeliveryPending || msg.Status == internal.DeliveryFailed {
		header += " " + timestampStyle.Render(string(msg.Status))
	}
	_, _ = fmt.Fprintln(w, header)

	content := strings.TrimSpace(msg.Content)
	if content != "" {
		_, _ = fmt.Fprintln(w, messageContentStyle.Render(wrapText(content, 80)))
	} else {
		_, _ = fmt.Fprintln(w, messageContentStyle.Foreground(lipgloss.Color("240")).Render("(empty message)"))
	}

	if len(msg.Sources) > 0 {
		_, _ = fmt.Fprintln(w, timestampStyle.Render("  Sources:"))
		for _, src := range msg.Sources {
			_, _ = fmt.Fprintf(w, "    • %s\n", sourceStyle.Render(src))
		}
	}
	if len(msg.FollowUpQuestions) > 0 {
		_, _ = fmt.Fprintln(w, timestampStyle.Render("  Follow-up questions:"))
		for i, q := range msg.FollowUpQuestions {
			_, _ = fmt.Fprintf(w, "    %d. %s\n", i+1, followUpStyle.Render(q))
		}
	}

	_, _ = fmt.Fprintln(w)
}

func wrapText(text string, width int) string {
	lines := strings.Split(text, "\n")
	var wrapped []string

	for _, line := range lines {
		if len(line) <= width {
			wrapped = append(wrapped, line)
			continue
		}

		// Wrap long lines
		words := strings.Fields(line)
		currentLine := ""
		for _, word := range words {
			if len(currentLine)+len(word)+1 > width {
				if currentLine != "" {
					wrapped = append(wrapped, currentLine)
					currentLine = word
				} else {
					wrapped = append(wrapped, word)
					currentLine = ""
				}
			} else {
				if currentLine == "" {
					currentLine = word
				} else {
					currentLine += " " + word
				}
			}
		}
		if currentLine != "" {
			wrapped = append(wrapped, currentLine)
		}
	}

	return strings.Join(wrapped, "\n")
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().IntVarP(&limit, "limit", "n", 0, "Limit number of messages to show")
}
