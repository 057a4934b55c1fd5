package reacquire

// State is a reacquisition stage.
type State int

const (
	Acquiring State = iota
	Tracking
	LocalSearch
	ExpandedSearch
	Returning
	Waiting
	Abandoned
)

// States lists every state.
var States = []State{Acquiring, Tracking, LocalSearch, ExpandedSearch, Returning, Waiting, Abandoned}

func (s State) String() string {
	switch s {
	case Acquiring:
		return "acquiring"
	case Tracking:
		return "tracking"
	case LocalSearch:
		return "local-search"
	case ExpandedSearch:
		return "expanded-search"
	case Returning:
		return "returning"
	case Waiting:
		return "waiting"
	case Abandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state name for JSON telemetry.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Searching reports whether the state is one of the scan stages.
func (s State) Searching() bool {
	return s == LocalSearch || s == ExpandedSearch
}

// Event is a trigger derived from one observation (or a user action).
type Event int

const (
	EventTick            Event = iota // Nothing notable
	EventFound                        // A fully good frame
	EventLost                         // Loss confirmed (sustained weak, left frame, or size jump)
	EventAcquireTimeout               // No good frame since the session started
	EventLocalTimeout                 // Local scan ran out of time
	EventExpandedTimeout              // Expanded scan ran out of time
	EventArrived                      // Back at the loss pose and heading
	EventReturnTimeout                // Return trip took too long
	EventWaitTimeout                  // Waited too long for the target
	EventCancel                       // User cancelled the session
)

// Events lists every event.
var Events = []Event{
	EventTick, EventFound, EventLost, EventAcquireTimeout, EventLocalTimeout,
	EventExpandedTimeout, EventArrived, EventReturnTimeout, EventWaitTimeout, EventCancel,
}

func (e Event) String() string {
	switch e {
	case EventTick:
		return "tick"
	case EventFound:
		return "found"
	case EventLost:
		return "lost"
	case EventAcquireTimeout:
		return "acquire-timeout"
	case EventLocalTimeout:
		return "local-timeout"
	case EventExpandedTimeout:
		return "expanded-timeout"
	case EventArrived:
		return "arrived"
	case EventReturnTimeout:
		return "return-timeout"
	case EventWaitTimeout:
		return "wait-timeout"
	case EventCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Next is the transition table. It is total: every (state, event) pair has
// exactly one successor, and unlisted pairs keep the current state.
// Abandoned is absorbing; only a new session leaves it.
func Next(s State, e Event) State {
	if s == Abandoned {
		return Abandoned
	}
	if e == EventCancel {
		return Abandoned
	}

	switch s {
	case Acquiring:
		switch e {
		case EventFound:
			return Tracking
		case EventLost, EventAcquireTimeout:
			return LocalSearch
		}
	case Tracking:
		if e == EventLost {
			return LocalSearch
		}
	case LocalSearch:
		switch e {
		case EventFound:
			return Tracking
		case EventLocalTimeout:
			return ExpandedSearch
		}
	case ExpandedSearch:
		switch e {
		case EventFound:
			return Tracking
		case EventExpandedTimeout:
			return Returning
		}
	case Returning:
		// Navigation uses odometry only; sightings do not interrupt it.
		switch e {
		case EventArrived, EventReturnTimeout:
			return Waiting
		}
	case Waiting:
		switch e {
		case EventFound:
			return Tracking
		case EventWaitTimeout:
			return Abandoned
		}
	}
	return s
}
