package turn

// State is a step of the turn state machine:
//
//	AwaitingInput -> Classifying -> Terminated | Resume | Processing -> AwaitingInput
type State int

const (
	StateAwaitingInput State = iota
	StateClassifying
	StateTerminated
	StateResume
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateAwaitingInput:
		return "awaiting_input"
	case StateClassifying:
		return "classifying"
	case StateTerminated:
		return "terminated"
	case StateResume:
		return "resume"
	case StateProcessing:
		return "processing"
	}
	return "unknown"
}
