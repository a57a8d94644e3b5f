package coordinator

// State is a position in the sync state machine.
type State int

const (
	StateIdle State = iota
	StateResolvingStart
	StateFetching
	StateUploading
	StateEpochExhausted
	StateAllComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolvingStart:
		return "resolving_start"
	case StateFetching:
		return "fetching"
	case StateUploading:
		return "uploading"
	case StateEpochExhausted:
		return "epoch_exhausted"
	case StateAllComplete:
		return "all_complete"
	default:
		return "unknown"
	}
}

// Outcome describes how a work unit finished.
type Outcome string

const (
	// OutcomeSkipped means the resume point was already past the epoch.
	OutcomeSkipped Outcome = "skipped"
	OutcomeEmpty   Outcome = "empty"
	// OutcomeFetchFailed is handled exactly like an empty batch.
	OutcomeFetchFailed Outcome = "fetch_failed"
	OutcomeUploaded    Outcome = "uploaded"
)
