package internal

import "strings"

// Normalizer fills the derived fields of sessions returned by the Session Store
type Normalizer struct{}

// NewNormalizer creates a new Normalizer
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeSession derives first_message from the first user message when the store
// left it empty, and falls back to the creation time for last_updated.
func (n *Normalizer) NormalizeSession(session *Session) {
	if session == nil {
		return
	}
	if strings.TrimSpace(session.FirstMessage) == "" {
		for _, msg := range session.Messages {
			if msg.Role == RoleUser && strings.TrimSpace(msg.Content) != "" {
				session.FirstMessage = msg.Content
				break
			}
		}
	}
	if session.LastUpdated.IsZero() {
		session.LastUpdated = session.Timestamp
	}
	if session.Messages == nil {
		session.Messages = []ChatMessage{}
	}
}

// NormalizeSessions normalizes every session in place and drops entries without an id
func (n *Normalizer) NormalizeSessions(sessions []Session) []Session {
	out := sessions[:0]
	for i := range sessions {
		if strings.TrimSpace(sessions[i].ID) == "" {
			LogDebug("Dropping session without id at index %d", i)
			continue
		}
		n.NormalizeSession(&sessions[i])
		out = append(out, sessions[i])
	}
	return out
}
