package chat

import "time"

const (
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 10 * time.Second
	defaultMaxAttempts = 3
)

// ReconnectPolicy controls the delay between reconnect attempts and how many are made
type ReconnectPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultReconnectPolicy returns 1s doubling up to 10s, three attempts
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		BaseDelay:   defaultBaseDelay,
		MaxDelay:    defaultMaxDelay,
		MaxAttempts: defaultMaxAttempts,
	}
}

// Delay returns min(BaseDelay * 2^attempt, MaxDelay) for a 0-indexed attempt
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}
