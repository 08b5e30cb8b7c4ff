package gig

import "gigboard/internal/storage"

// statusDeleted never reaches the store; deletion removes the row. It
// exists so the lifecycle can be checked as one state machine.
const statusDeleted storage.GigStatus = "deleted"

var transitions = map[storage.GigStatus][]storage.GigStatus{
	storage.GigPending:  {storage.GigApproved, statusDeleted},
	storage.GigApproved: {statusDeleted},
}

// transition reports whether a gig may move between the two states.
// Invalid moves surface as conflicts so a stale button press reads as
// "already handled" rather than an internal error.
func transition(from, to storage.GigStatus) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return &ConflictError{Msg: "This gig has already been handled."}
}
