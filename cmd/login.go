package cmd

import (
	"errors"
	"fmt"

	"github.com/iksnae/chat-session/internal"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login [nickname]",
	Short: "Choose the nickname sent with every request",
	Long: `Store a nickname as the current identity. Without a nickname a guest name of the
form user_xxxxx is generated.

The nickname is sent as user_id to the Session Store and the Socket Gateway. It is
not verified by the server.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		nickname := ""
		if len(args) == 1 {
			nickname = args[0]
		}

		id, err := internal.Login(identityStore(), nickname)
		if err != nil {
			return fmt.Errorf("failed to log in: %w", err)
		}

		out := cmd.OutOrStdout()
		if id.Guest {
			_, _ = fmt.Fprintf(out, "%s %s\n", successStyle.Render("✓ Logged in as guest"), titleStyle.Render(id.Nickname))
		} else {
			_, _ = fmt.Fprintf(out, "%s %s\n", successStyle.Render("✓ Logged in as"), titleStyle.Render(id.Nickname))
		}
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the current identity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := identityStore().Clear(); err != nil {
			return fmt.Errorf("failed to log out: %w", err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("✓ Logged out"))
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Print the current identity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := requireIdentity()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintln(out, id.Nickname)
		if verbose {
			kind := "named"
			if id.Guest {
				kind = "guest"
			}
			_, _ = fmt.Fprintln(out, dateStyle.Render(fmt.Sprintf("%s identity since %s", kind, id.CreatedAt.Format("2006-01-02 15:04"))))
		}
		return nil
	},
}

// isNoIdentity reports whether err means the user has not logged in
func isNoIdentity(err error) bool {
	return errors.Is(err, internal.ErrNoIdentity)
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}
