package trainer

// State is the orchestrator's lifecycle position.
type State int

const (
	Idle State = iota
	Preparing
	Optimizing
	Finalizing
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Preparing:
		return "preparing"
	case Optimizing:
		return "optimizing"
	case Finalizing:
		return "finalizing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) running() bool {
	return s == Preparing || s == Optimizing || s == Finalizing
}
