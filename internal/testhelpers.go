package internal

import (
	"time"
)

// CreateTestSession creates a test session with one exchange
func CreateTestSession(id string) *Session {
	now := Timestamp{Time: time.Now()}
	return &Session{
		ID:           id,
		FirstMessage: "Hello, how are you?",
		Timestamp:    now,
		LastUpdated:  now,
		Messages: []ChatMessage{
			{
				Role:    RoleUser,
				Content: "Hello, how are you?",
			},
			{
				Role:              RoleAssistant,
				Content:           "I'm doing well, thank you!",
				Sources:           []string{"https://example.com/greetings"},
				FollowUpQuestions: []string{"What can you do?"},
			},
		},
	}
}

// CreateTestSessionWithMessages creates a test session with custom messages
func CreateTestSessionWithMessages(id string, messages []ChatMessage) *Session {
	session := &Session{
		ID:       id,
		Messages: messages,
	}
	NewNormalizer().NormalizeSession(session)
	return session
}

// CreateTestSessionAt creates a session created at ts with a single user message
func CreateTestSessionAt(id string, ts time.Time) Session {
	return Session{
		ID:           id,
		FirstMessage: "question " + id,
		Timestamp:    Timestamp{Time: ts},
		LastUpdated:  Timestamp{Time: ts},
		Messages: []ChatMessage{
			{Role: RoleUser, Content: "question " + id},
		},
	}
}
