package session

// State tracks the controller lifecycle. Transitions are strictly
// Initializing -> Running -> Draining -> ShutDown; ShutDown is terminal.
type State string

const (
	StateInitializing State = "initializing"
	StateRunning      State = "running"
	StateDraining     State = "draining"
	StateShutDown     State = "shut_down"
)
