// ABOUTME: Session status values and the allowed transitions between them
// ABOUTME: error is terminal; completed may re-enter running for another chunk

package session

// Status is the lifecycle state of a Session.
type Status string

// Session statuses.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusRunning},
	StatusRunning:   {StatusCompleted, StatusError},
	StatusCompleted: {StatusRunning},
	StatusError:     nil,
}

// CanTransition reports whether from -> to is allowed.
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}
