package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/chat-session/internal"
	"github.com/spf13/cobra"
)

var (
	historyOpen       int
	historyClearCache bool
)

var (
	// Styles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	bucketStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true).
			MarginTop(1)
)

// historyCmd represents the history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past sessions grouped by recency",
	Long: `List your sessions from the Session Store, grouped into Today, This Week,
This Month and Older.

Use --open N to resume the N-th session of the listing.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := requireIdentity()
		if err != nil {
			return err
		}

		cache := newCacheManager()
		if historyClearCache {
			if err := cache.ClearCache(); err != nil {
				internal.LogWarn("Failed to clear cache: %v", err)
			} else {
				internal.LogInfo("Cache cleared")
			}
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		panel := internal.NewHistoryPanel(newStoreClient(), id.Nickname, cache)
		var view internal.HistoryView
		_ = internal.ShowProgress(ctx, "Loading sessions", func() error {
			view = panel.Load(ctx)
			return nil
		})

		if historyOpen == 0 {
			displayHistory(cmd.OutOrStdout(), view)
			if view.Err != nil {
				return fmt.Errorf("failed to load sessions: %w", view.Err)
			}
			return nil
		}

		route, err := panel.SelectIndex(historyOpen)
		if err != nil {
			return err
		}
		return runChat(cmd, id, func(v *chatView) error {
			return v.openSession(ctx, route.SessionID)
		})
	},
}

// displayHistory prints the grouped listing. Sessions are numbered across groups in
// display order, which is the numbering --open and /open accept.
func displayHistory(w io.Writer, view internal.HistoryView) {
	if view.Err != nil {
		_, _ = fmt.Fprintln(w, bannerStyle.Render(fmt.Sprintf("Could not load sessions: %v", view.Err)))
		_, _ = fmt.Fprintln(w, idStyle.Render("Run the command again to retry."))
		return
	}
	if view.Empty() {
		_, _ = fmt.Fprintln(w, headerStyle.Render("📋 No sessions found"))
		return
	}

	_, _ = fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("📋 Found %d session(s)", view.Groups.Len())))

	now := view.LoadedAt
	if now.IsZero() {
		now = time.Now()
	}

	n := 0
	for _, group := range view.Groups.Groups() {
		_, _ = fmt.Fprintln(w, bucketStyle.Render(group.Bucket.Label()))

		tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
		for _, session := range group.Sessions {
			n++
			name := truncate(session.Title(), 50)
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				countStyle.Render(strconv.Itoa(n)),
				name,
				dateStyle.Render(fmt.Sprintf("%d msg", len(session.Messages))),
				dateStyle.Render(formatWhen(session.LastUpdated.Time, now)),
				idStyle.Render(session.ID),
			)
		}
		_ = tw.Flush()
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, idStyle.Render("💡 Tip: resume with ")+
		lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Render("chat-session history --open <N>")+
		idStyle.Render(" or ")+
		lipgloss.NewStyle().Foreground(lipgloss.Color("62")).Render("chat-session chat <id>"))
}

func formatWhen(t, now time.Time) string {
	if t.IsZero() {
		return "—"
	}
	t = t.In(now.Location())
	diff := now.Sub(t)
	switch {
	case diff < 24*time.Hour && t.Day() == now.Day():
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Format("Jan 02 15:04")
	default:
		return t.Format("2006-01-02")
	}
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyOpen, "open", 0, "Resume the N-th session of the listing")
	historyCmd.Flags().BoolVar(&historyClearCache, "clear-cache", false, "Clear the local session cache before loading")
}
