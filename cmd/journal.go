package cmd

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/chat-session/internal"
	"github.com/spf13/cobra"
)

var (
	journalSession string
	journalFailed  bool
	journalLimit   int
)

// journalCmd represents the journal command
var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Show the delivery status of sent messages",
	Long: `Every message typed in a chat is recorded in a local journal together with
its delivery status (pending, sent or failed). Use this command to find messages
that never reached the Socket Gateway.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		journal, err := internal.OpenJournal(cfg.JournalPath())
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer func() { _ = journal.Close() }()

		filter := internal.JournalFilter{SessionID: journalSession, Limit: journalLimit}
		if journalFailed {
			filter.Status = internal.DeliveryFailed
		}
		deliveries, err := journal.List(filter)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(deliveries) == 0 {
			_, _ = fmt.Fprintln(out, headerStyle.Render("📒 No deliveries recorded"))
			return nil
		}

		_, _ = fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("📒 %d message(s)", len(deliveries))))
		tw := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		for _, d := range deliveries {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
				idStyle.Render(strconv.FormatInt(d.ID, 10)),
				statusStyle(d.Status).Render(string(d.Status)),
				dateStyle.Render(d.UpdatedAt.Local().Format("2006-01-02 15:04:05")),
				idStyle.Render(d.SessionID),
				truncate(d.Content, 60),
			)
		}
		return tw.Flush()
	},
}

func statusStyle(status internal.DeliveryStatus) lipgloss.Style {
	switch status {
	case internal.DeliverySent:
		return successStyle
	case internal.DeliveryFailed:
		return errorStyle
	default:
		return warningStyle
	}
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.Flags().StringVar(&journalSession, "session", "", "Only show messages of this session")
	journalCmd.Flags().BoolVar(&journalFailed, "failed", false, "Only show messages that were not delivered")
	journalCmd.Flags().IntVarP(&journalLimit, "limit", "n", 0, "Maximum number of entries")
}
