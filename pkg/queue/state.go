package queue

type State int32

const (
	Inactive State = iota
	Activating
	Active
)

func (s State) String() string {
	switch s {
	case Inactive:
		return "inactive"
	case Activating:
		return "activating"
	case Active:
		return "active"
	}
	return "unknown"
}
