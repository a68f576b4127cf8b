package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/iksnae/chat-session/internal"
	"github.com/iksnae/chat-session/internal/chat"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
)

var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")).
			Bold(true)

	stateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			Italic(true)

	bannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("160")).
			Padding(0, 1)
)

const chatHelp = `Commands:
  /follow N   send follow-up suggestion N of the last answer
  /retry      reconnect after the connection has failed
  /history    list past sessions
  /open N     switch to session N of the last /history listing
  /status     show the connection state
  /quit       leave the chat`

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat <session-id>",
	Short: "Resume a chat session",
	Long: `Load the history of a session from the Session Store, open a socket to the
Socket Gateway and continue the conversation interactively.

Type /help inside the chat for the list of commands.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := requireIdentity()
		if err != nil {
			return err
		}
		sessionID := strings.TrimSpace(args[0])
		return runChat(cmd, id, func(v *chatView) error {
			return v.openSession(cmd.Context(), sessionID)
		})
	},
}

// lineReader is the prompt the chat loop reads from
type lineReader interface {
	Prompt(prompt string) (string, error)
}

// newLineReader opens the interactive prompt; the returned func saves its history
var newLineReader = func() (lineReader, func()) {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	historyFile := filepath.Join(cfg.DataDir, "prompt_history")
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		_ = f.Close()
	}

	reader := &linerReader{line: line}
	return reader, func() {
		if f, err := os.OpenFile(historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			_, _ = line.WriteHistory(f)
			_ = f.Close()
		}
		_ = line.Close()
	}
}

type linerReader struct {
	line *liner.State
}

func (r *linerReader) Prompt(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// runChat builds a controller for the current identity, lets start open a session on
// it and then hands the terminal to the prompt loop
func runChat(cmd *cobra.Command, id *internal.Identity, start func(v *chatView) error) error {
	view := newChatView(cmd.OutOrStdout(), id.Nickname)

	// controller warnings arrive while the prompt owns the terminal
	if restoreLogs, err := internal.LogToFile(cfg.LogPath()); err != nil {
		internal.LogWarn("Logging to stderr: %v", err)
	} else {
		defer restoreLogs()
	}

	opts := []chat.Option{
		chat.WithReconnectPolicy(reconnectPolicy()),
		chat.WithObserver(view.observe),
	}
	journal, err := internal.OpenJournal(cfg.JournalPath())
	if err != nil {
		internal.LogWarn("Delivery journal disabled: %v", err)
	} else {
		defer func() { _ = journal.Close() }()
		opts = append(opts, chat.WithRecorder(journal))
	}

	ctrl, err := chat.New(id.Nickname, newDialer(), opts...)
	if err != nil {
		return err
	}
	defer ctrl.Shutdown()
	view.ctrl = ctrl

	if err := start(view); err != nil {
		return err
	}

	reader, closeReader := newLineReader()
	defer closeReader()
	return view.run(reader)
}

// chatView renders controller events and handles prompt input
type chatView struct {
	out    io.Writer
	userID string
	ctrl   *chat.Controller
	store  sessionFetcher
	cache  *internal.CacheManager
	panel  *internal.HistoryPanel

	mu        sync.Mutex
	followUps []string
}

type sessionFetcher interface {
	internal.SessionLister
	GetSession(ctx context.Context, sessionID, userID string) (*internal.Session, error)
}

func newChatView(out io.Writer, userID string) *chatView {
	client := newStoreClient()
	cache := newCacheManager()
	return &chatView{
		out:    out,
		userID: userID,
		store:  client,
		cache:  cache,
		panel:  internal.NewHistoryPanel(client, userID, cache),
	}
}

// observe runs on the controller goroutine
func (v *chatView) observe(ev chat.Event) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch ev.Kind {
	case chat.EventMessageAppended:
		renderMessage(v.out, ev.Message, "")
		if ev.Message.Role == internal.RoleAssistant {
			v.followUps = ev.Message.FollowUpQuestions
		}
	case chat.EventDeliveryUpdated:
		if ev.Message.Status == internal.DeliveryFailed {
			_, _ = fmt.Fprintln(v.out, errorStyle.Render("✗ Message not delivered: ")+truncate(ev.Message.Content, 60))
		}
	case chat.EventStateChanged:
		v.renderState(ev)
	case chat.EventConnectionStatus:
		internal.LogDebug("Gateway status: %s", ev.Status)
	case chat.EventProtocolError:
		_, _ = fmt.Fprintln(v.out, bannerStyle.Render(fmt.Sprintf("Unreadable message from server: %v", ev.Err)))
	}
}

func (v *chatView) renderState(ev chat.Event) {
	var line string
	switch ev.State {
	case chat.StateConnecting:
		if ev.Attempt > 0 {
			line = stateStyle.Render(fmt.Sprintf("Reconnecting (attempt %d)...", ev.Attempt))
		} else {
			line = stateStyle.Render("Connecting...")
		}
	case chat.StateOpen:
		line = successStyle.Render("● Connected")
	case chat.StateClosedRetrying:
		line = warningStyle.Render(fmt.Sprintf("Connection lost, retrying in %s", ev.Delay))
	case chat.StateClosedFailed:
		line = bannerStyle.Render(fmt.Sprintf("Connection failed: %v. Type /retry to try again.", ev.Err))
	case chat.StateClosedClean:
		line = stateStyle.Render("Disconnected")
	default:
		return
	}
	_, _ = fmt.Fprintln(v.out, line)
}

func (v *chatView) println(s string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, _ = fmt.Fprintln(v.out, s)
}

// openSession loads the stored history of sessionID and opens the socket for it.
// History is best effort: without it the session opens with an empty log.
func (v *chatView) openSession(ctx context.Context, sessionID string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var session *internal.Session
	err := internal.ShowProgress(ctx, fmt.Sprintf("Loading session %s", sessionID), func() error {
		var getErr error
		session, getErr = v.store.GetSession(ctx, sessionID, v.userID)
		return getErr
	})
	switch {
	case err != nil:
		v.println(warningStyle.Render(fmt.Sprintf("⚠️  Could not load history: %v", err)))
		if cached, cacheErr := v.cache.LoadSession(sessionID); cacheErr == nil {
			session = cached
		}
	case session == nil:
		internal.LogInfo("Session %s has no stored history", sessionID)
	default:
		if cacheErr := v.cache.SaveSessionAndUpdateIndex(session, v.userID); cacheErr != nil {
			internal.LogWarn("Failed to update cache: %v", cacheErr)
		}
	}

	v.mu.Lock()
	v.followUps = nil
	v.mu.Unlock()

	var opts []chat.OpenOption
	if session != nil {
		v.println(sessionHeaderStyle.Render(fmt.Sprintf("💬 %s", session.Title())))
		opts = append(opts, chat.WithHistory(session.Messages))
	}
	return v.ctrl.Open(sessionID, opts...)
}

// run reads lines until /quit, Ctrl-C or end of input
func (v *chatView) run(r lineReader) error {
	v.println(stateStyle.Render("Type a message, or /help for commands."))
	for {
		input, err := r.Prompt(promptStyle.Render("you> "))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		quit, err := v.handleLine(input)
		if err != nil {
			v.println(errorStyle.Render("[Error]") + " " + err.Error())
		}
		if quit {
			return nil
		}
	}
}

// handleLine sends input as a message or runs it as a slash command
func (v *chatView) handleLine(input string) (bool, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return false, nil
	}
	if !strings.HasPrefix(input, "/") {
		return false, v.send(input)
	}

	parts := strings.Fields(input)
	command := strings.ToLower(parts[0])
	args := parts[1:]

	switch command {
	case "/quit", "/q", "/exit":
		return true, nil
	case "/help", "/h", "/?":
		v.println(chatHelp)
	case "/retry":
		if err := v.ctrl.Retry(); err != nil {
			return false, fmt.Errorf("cannot retry: %w", err)
		}
	case "/follow", "/f":
		n, err := indexArg(args)
		if err != nil {
			return false, err
		}
		v.mu.Lock()
		suggestions := v.followUps
		v.mu.Unlock()
		if n > len(suggestions) {
			return false, fmt.Errorf("no follow-up question %d (%d available)", n, len(suggestions))
		}
		return false, v.send(suggestions[n-1])
	case "/history":
		view := v.panel.Load(context.Background())
		v.mu.Lock()
		displayHistory(v.out, view)
		v.mu.Unlock()
	case "/open":
		n, err := indexArg(args)
		if err != nil {
			return false, err
		}
		route, err := v.panel.SelectIndex(n)
		if err != nil {
			return false, err
		}
		return false, v.openSession(context.Background(), route.SessionID)
	case "/status":
		v.println(v.status())
	default:
		return false, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
	return false, nil
}

func (v *chatView) send(text string) error {
	err := v.ctrl.Send(text)
	if errors.Is(err, chat.ErrNotOpen) {
		return fmt.Errorf("message not sent, connection is %s", v.ctrl.State())
	}
	return err
}

func (v *chatView) status() string {
	parts := []string{
		fmt.Sprintf("Session: %s", v.ctrl.SessionID()),
		fmt.Sprintf("State: %s", v.ctrl.State()),
		fmt.Sprintf("Messages: %d", len(v.ctrl.Messages())),
	}
	if err := v.ctrl.LastError(); err != nil {
		parts = append(parts, fmt.Sprintf("Last error: %v", err))
	}
	return strings.Join(parts, "\n")
}

func indexArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, errors.New("expected a number")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid number: %s", args[0])
	}
	return n, nil
}

// truncate collapses whitespace and cuts s to at most max runes
func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
