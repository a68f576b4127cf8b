package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// newCmd represents the new command
var newCmd = &cobra.Command{
	Use:   "new <question...>",
	Short: "Start a new chat session",
	Long: `Start a new session with question as its first message, then continue the
conversation interactively.

Example:
  chat-session new "How do I read a file in Go?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := requireIdentity()
		if err != nil {
			return err
		}

		question := strings.TrimSpace(strings.Join(args, " "))
		return runChat(cmd, id, func(v *chatView) error {
			sessionID, err := v.ctrl.Start(question)
			if err != nil {
				return fmt.Errorf("failed to start session: %w", err)
			}
			v.println(idStyle.Render(fmt.Sprintf("Session %s", sessionID)))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(newCmd)
}
