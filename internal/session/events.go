package session

// TaskKind distinguishes the top-level turn variants.
type TaskKind int

const (
	// TaskRegular is an ordinary model turn.
	TaskRegular TaskKind = iota
	// TaskReview is a code-review turn; the session tracks review mode
	// while one runs.
	TaskReview
	// TaskCompact is a history-compaction turn.
	TaskCompact
)

func (k TaskKind) String() string {
	switch k {
	case TaskRegular:
		return "regular"
	case TaskReview:
		return "review"
	case TaskCompact:
		return "compact"
	default:
		return "unknown"
	}
}

// AbortReason explains why a turn ended without completing.
type AbortReason int

const (
	// AbortReplaced means a newer task took the turn over.
	AbortReplaced AbortReason = iota
	// AbortUserInterrupt means the user interrupted the turn.
	AbortUserInterrupt
	// AbortError means the task body failed.
	AbortError
)

func (r AbortReason) String() string {
	switch r {
	case AbortReplaced:
		return "replaced"
	case AbortUserInterrupt:
		return "user-interrupt"
	case AbortError:
		return "error"
	default:
		return "unknown"
	}
}

// EventKind tags the task-lifecycle events the supervisor emits.
type EventKind int

const (
	EventTaskStarted EventKind = iota
	EventTaskComplete
	EventTurnAborted
)

func (k EventKind) String() string {
	switch k {
	case EventTaskStarted:
		return "task-started"
	case EventTaskComplete:
		return "task-complete"
	case EventTurnAborted:
		return "turn-aborted"
	default:
		return "unknown"
	}
}

// Event is one task-lifecycle notification. Every spawned task emits
// TaskStarted followed by exactly one terminal event: TaskComplete with the
// task's final message, or TurnAborted with the reason.
type Event struct {
	Kind   EventKind
	TaskID string
	Task   TaskKind

	// LastMessage carries the task's final message on TaskComplete.
	LastMessage string
	// Reason is set on TurnAborted.
	Reason AbortReason
	// Err is set on TurnAborted when Reason is AbortError.
	Err error
}
