package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var healthcheckTimeout time.Duration

var (
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("62")).
			Bold(true).
			Underline(true)
)

// healthcheckCmd represents the healthcheck command
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check that chat-session can reach its backend",
	Long: `Check the health of chat-session by verifying:
  • Configuration
  • Local identity
  • Session Store reachability
  • Socket Gateway handshake

This command is useful for debugging connection issues.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		say := func(a ...interface{}) { _, _ = fmt.Fprintln(out, a...) }

		say(sectionStyle.Render("🔍 Chat Session Health Check"))
		say()

		var failures int

		// Step 1: Configuration
		say(infoStyle.Render("Step 1: Loading configuration..."))
		say(successStyle.Render("✅ Configuration valid"))
		if verbose {
			say(fmt.Sprintf("   Server:  %s", cfg.ServerURL))
			say(fmt.Sprintf("   Gateway: %s", cfg.GatewayURL))
			say(fmt.Sprintf("   Data:    %s", cfg.DataDir))
			say(fmt.Sprintf("   Reconnect: base %s, max %s, %d attempt(s)",
				cfg.Reconnect.BaseDelay.Duration, cfg.Reconnect.MaxDelay.Duration, cfg.Reconnect.MaxAttempts))
		}
		say()

		// Step 2: Identity
		say(infoStyle.Render("Step 2: Checking identity..."))
		id, err := requireIdentity()
		switch {
		case isNoIdentity(err):
			say(warningStyle.Render("⚠️  Not logged in"))
			say("   Run 'chat-session login' to choose a nickname")
		case err != nil:
			say(errorStyle.Render("❌ Identity file unreadable:"), err)
			failures++
		default:
			say(successStyle.Render(fmt.Sprintf("✅ Logged in as %s", id.Nickname)))
		}
		say()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		// Step 3: Session Store
		say(infoStyle.Render("Step 3: Contacting Session Store..."))
		storeCtx, cancel := context.WithTimeout(ctx, healthcheckTimeout)
		err = newStoreClient().Ping(storeCtx)
		cancel()
		if err != nil {
			say(errorStyle.Render("❌ Session Store unreachable:"), err)
			failures++
		} else {
			say(successStyle.Render("✅ Session Store reachable"))
		}
		if verbose {
			say(fmt.Sprintf("   URL: %s", cfg.ServerURL))
		}
		say()

		// Step 4: Socket Gateway
		say(infoStyle.Render("Step 4: Opening a test socket..."))
		dialer := newDialer()
		probe := "healthcheck-" + uuid.NewString()
		gwCtx, cancel := context.WithTimeout(ctx, healthcheckTimeout)
		conn, err := dialer.Dial(gwCtx, probe)
		cancel()
		if err != nil {
			say(errorStyle.Render("❌ Socket Gateway handshake failed:"), err)
			failures++
		} else {
			_ = conn.Close("healthcheck")
			say(successStyle.Render("✅ Socket Gateway accepted the handshake"))
		}
		if verbose {
			say(fmt.Sprintf("   URL: %s", dialer.URLFor(probe)))
		}
		say()

		// Summary
		say(sectionStyle.Render("📊 Summary"))
		say()
		if failures > 0 {
			say(errorStyle.Render("❌ Health check failed"))
			return fmt.Errorf("health check failed: %d problem(s) found", failures)
		}
		say(successStyle.Render("✅ Health check passed!"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().DurationVar(&healthcheckTimeout, "timeout", 5*time.Second, "Timeout for each network check")
}
