package process

// Status is the lifecycle state of an engine process.
type Status int

const (
	// StatusRunning indicates the process has started and not yet exited.
	StatusRunning Status = iota
	// StatusClosing indicates Close or Kill was requested.
	StatusClosing
	// StatusExited indicates the process exited after being asked to.
	StatusExited
	// StatusCrashed indicates the process exited on its own.
	StatusCrashed
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusClosing:
		return "closing"
	case StatusExited:
		return "exited"
	case StatusCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the process is gone.
func (s Status) IsTerminal() bool {
	return s == StatusExited || s == StatusCrashed
}
