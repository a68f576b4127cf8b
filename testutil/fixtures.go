package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/iksnae/chat-session/internal"
)

// SampleSessions returns one session per recency bucket relative to now, newest first
func SampleSessions(now time.Time) []internal.Session {
	at := func(d time.Duration) internal.Timestamp {
		return internal.Timestamp{Time: now.Add(-d)}
	}
	return []internal.Session{
		{
			ID:           "sess-today",
			FirstMessage: "What is the capital of France?",
			Timestamp:    at(time.Minute),
			LastUpdated:  at(time.Minute),
			Messages: []internal.ChatMessage{
				{Role: internal.RoleUser, Content: "What is the capital of France?"},
				{
					Role:              internal.RoleAssistant,
					Content:           "Paris.",
					Sources:           []string{"https://en.wikipedia.org/wiki/Paris"},
					FollowUpQuestions: []string{"What is its population?"},
				},
			},
		},
		{
			ID:           "sess-week",
			FirstMessage: "Explain goroutines",
			Timestamp:    at(3 * 24 * time.Hour),
			LastUpdated:  at(3 * 24 * time.Hour),
			Messages: []internal.ChatMessage{
				{Role: internal.RoleUser, Content: "Explain goroutines"},
				{Role: internal.RoleAssistant, Content: "Lightweight threads managed by the Go runtime."},
			},
		},
		{
			ID:           "sess-month",
			FirstMessage: "Recommend a book",
			Timestamp:    at(15 * 24 * time.Hour),
			LastUpdated:  at(15 * 24 * time.Hour),
			Messages: []internal.ChatMessage{
				{Role: internal.RoleUser, Content: "Recommend a book"},
			},
		},
		{
			ID:           "sess-older",
			FirstMessage: "Hello",
			Timestamp:    at(90 * 24 * time.Hour),
			LastUpdated:  at(90 * 24 * time.Hour),
			Messages: []internal.ChatMessage{
				{Role: internal.RoleUser, Content: "Hello"},
				{Role: internal.RoleAssistant, Content: "Hi there"},
			},
		},
	}
}

// WriteConfigFixture writes a config.toml into dir and returns its path
func WriteConfigFixture(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "config.toml")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatalf("Failed to create config directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(contents), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}
