package model

var transitions = map[Status][]Status{
	StatusPending:       {StatusWaitingForVet},
	StatusWaitingForVet: {StatusConfirmed, StatusInProgress, StatusTimeProposed, StatusDeclined},
	StatusTimeProposed:  {StatusTimeProposed, StatusConfirmed, StatusCancelled, StatusDeclined},
	StatusConfirmed:     {StatusInProgress, StatusCompleted},
	StatusInProgress:    {StatusCompleted},
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	switch s {
	case StatusDeclined, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// OwnerCancellable lists the states an owner may cancel from. Cancellation
// deletes the appointment rather than moving it to StatusCancelled.
func (s Status) OwnerCancellable() bool {
	switch s {
	case StatusPending, StatusWaitingForVet, StatusTimeProposed, StatusConfirmed:
		return true
	}
	return false
}

// OpenRequest reports whether unassigned vets may still act on the appointment.
func (s Status) OpenRequest() bool {
	return s == StatusWaitingForVet || s == StatusTimeProposed
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusWaitingForVet, StatusConfirmed, StatusTimeProposed,
		StatusDeclined, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}
