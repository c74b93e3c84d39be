package gateway

type State int

const (
	Unknown State = iota
	Blocked
	BypassAttempt
	Resolved
	Failed
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Blocked:
		return "blocked"
	case BypassAttempt:
		return "bypass_attempt"
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return "invalid"
	}
}

var transitions = map[State][]State{
	Unknown:       {Blocked, Resolved},
	Blocked:       {BypassAttempt},
	BypassAttempt: {Resolved, Failed},
	Failed:        {Unknown},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
