package chat

// State is the lifecycle state of the controller's socket connection
type State int

const (
	// StateIdle means Open has not been called yet
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosedClean
	StateClosedRetrying
	StateClosedFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosedClean:
		return "closed-clean"
	case StateClosedRetrying:
		return "closed-retrying"
	case StateClosedFailed:
		return "closed-failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state only changes through an explicit Open or Retry
func (s State) Terminal() bool {
	return s == StateClosedClean || s == StateClosedFailed
}
