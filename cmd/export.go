package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/iksnae/chat-session/internal"
	"github.com/iksnae/chat-session/internal/export"
	"github.com/spf13/cobra"
)

var (
	format    string
	outputDir string
	exportAll bool
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export [session-id]",
	Short: "Export sessions to file",
	Long: `Export chat sessions to various formats (jsonl, md, yaml, json).

Export one session by ID, or every session of the current user with --all.
Use 'chat-session history' to see available session IDs.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Validate the format before touching the network
		exporter, err := export.NewExporter(format)
		if err != nil {
			return err
		}
		if exportAll == (len(args) == 1) {
			return errors.New("give either a session id or --all")
		}

		id, err := requireIdentity()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		var sessions []internal.Session
		if exportAll {
			sessions, err = listForExport(ctx, id.Nickname)
			if err != nil {
				return err
			}
		} else {
			session, err := fetchSession(ctx, id.Nickname, strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			sessions = []internal.Session{*session}
		}

		if len(sessions) == 0 {
			internal.PrintInfo("No sessions to export")
			return nil
		}

		var failed int
		steps := make([]internal.ProgressStep, len(sessions))
		for i := range sessions {
			session := &sessions[i]
			steps[i] = internal.ProgressStep{
				Message: fmt.Sprintf("Exporting %s", session.ID),
				Fn: func() error {
					path, err := export.WriteFile(exporter, session, outputDir)
					if err != nil {
						internal.LogError("%v", err)
						failed++
						return nil
					}
					internal.LogDebug("Wrote %s", path)
					return nil
				},
			}
		}
		if err := internal.ShowProgressWithSteps(ctx, steps); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d session(s) failed to export", failed, len(sessions))
		}

		internal.PrintSuccess(fmt.Sprintf("Export complete: %d session(s) exported to %s", len(sessions), outputDir))
		return nil
	},
}

// listForExport lists every session of userID, falling back to the local cache when
// the Session Store fails
func listForExport(ctx context.Context, userID string) ([]internal.Session, error) {
	client := newStoreClient()
	cache := newCacheManager()

	var sessions []internal.Session
	err := internal.ShowProgress(ctx, "Loading sessions", func() error {
		var listErr error
		sessions, listErr = client.ListSessions(ctx, userID)
		return listErr
	})
	if err == nil {
		if cacheErr := cache.SaveSessions(sessions, userID); cacheErr != nil {
			internal.LogWarn("Failed to save cache: %v", cacheErr)
		}
		return sessions, nil
	}

	if !cache.IsCacheValid(userID) {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	cached, cacheErr := cache.LoadAllSessions()
	if cacheErr != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	internal.PrintWarning(fmt.Sprintf("Session Store unavailable (%v), exporting %d cached session(s)", err, len(cached)))
	return cached, nil
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&format, "format", "f", "jsonl", "Export format (jsonl, md, yaml, json)")
	exportCmd.Flags().StringVarP(&outputDir, "output", "o", "./exports", "Output directory")
	exportCmd.Flags().BoolVar(&exportAll, "all", false, "Export every session of the current user")
}
