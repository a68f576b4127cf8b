package internal

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SessionLister lists the sessions that belong to a user
type SessionLister interface {
	ListSessions(ctx context.Context, userID string) ([]Session, error)
}

// HistoryView is what the history panel renders after a load
type HistoryView struct {
	Groups   GroupedSessions
	LoadedAt time.Time
	// Err is set when the fetch failed; Groups is then empty and the caller offers a retry
	Err error
	// Stale is set when the caller's context ended before the result could be applied
	Stale bool
}

// Empty reports whether there is nothing to show
func (v HistoryView) Empty() bool {
	return v.Groups.Len() == 0
}

// Route is a navigation target produced by the history panel
type Route struct {
	View      string
	SessionID string
}

// HistoryPanel is the read-only, recency-grouped view of past sessions
type HistoryPanel struct {
	lister SessionLister
	userID string
	cache  *CacheManager
	now    func() time.Time

	last HistoryView
}

// NewHistoryPanel creates a panel for userID. cache may be nil.
func NewHistoryPanel(lister SessionLister, userID string, cache *CacheManager) *HistoryPanel {
	return &HistoryPanel{
		lister: lister,
		userID: userID,
		cache:  cache,
		now:    time.Now,
	}
}

// SetClock overrides the time source used for bucketing
func (p *HistoryPanel) SetClock(now func() time.Time) {
	p.now = now
}

// Load fetches and groups the user's sessions. A failed fetch degrades to an empty
// view with Err set so that history never blocks the chat flow.
func (p *HistoryPanel) Load(ctx context.Context) HistoryView {
	sessions, err := p.lister.ListSessions(ctx, p.userID)
	if ctx.Err() != nil {
		LogDebug("Discarding history result: %v", ctx.Err())
		return HistoryView{Stale: true, Err: ctx.Err()}
	}
	if err != nil {
		LogWarn("Failed to load chat history: %v", err)
		p.last = HistoryView{LoadedAt: p.now(), Err: err}
		return p.last
	}

	if p.cache != nil {
		if err := p.cache.SaveSessions(sessions, p.userID); err != nil {
			LogWarn("Failed to cache sessions: %v", err)
		}
	}

	now := p.now()
	p.last = HistoryView{Groups: GroupSessions(sessions, now), LoadedAt: now}
	return p.last
}

// Last returns the result of the most recent Load
func (p *HistoryPanel) Last() HistoryView {
	return p.last
}

// Select returns the route into the chat view for sessionID. It does not fetch the
// session; the chat view loads its own history on entry.
func (p *HistoryPanel) Select(sessionID string) (Route, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Route{}, fmt.Errorf("no session selected")
	}
	return Route{View: "chat", SessionID: sessionID}, nil
}

// SelectIndex selects the n-th session (1-based) of the last loaded view in display order
func (p *HistoryPanel) SelectIndex(n int) (Route, error) {
	sessions := p.last.Groups.Flatten()
	if n < 1 || n > len(sessions) {
		return Route{}, fmt.Errorf("no session #%d (have %d)", n, len(sessions))
	}
	return p.Select(sessions[n-1].ID)
}
