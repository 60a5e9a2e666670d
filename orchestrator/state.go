package orchestrator

// State is a step of an orchestrated scrape.
type State int

const (
	StateIdle State = iota
	StateFetching
	StateBlocked
	StateAwaitingInteractiveAuth
	StateRetrying
	StateRendering
	StateSuccess
	StateFailed
)

var stateNames = [...]string{
	StateIdle:                    "idle",
	StateFetching:                "fetching",
	StateBlocked:                 "blocked",
	StateAwaitingInteractiveAuth: "awaiting_interactive_auth",
	StateRetrying:                "retrying",
	StateRendering:               "rendering",
	StateSuccess:                 "success",
	StateFailed:                  "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed
}
