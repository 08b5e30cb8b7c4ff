package gig

import "fmt"

// ValidationError rejects a submission before anything is stored. The
// submitted fields are carried along so the user gets their input back
// for correction.
type ValidationError struct {
	Reason string
	Echo   []EchoField
}

// EchoField is one submitted field echoed back on rejection.
type EchoField struct {
	Name  string
	Value string
}

func (e *ValidationError) Error() string { return e.Reason }

// PermissionError means the actor may not perform the operation.
type PermissionError struct {
	Op string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("not permitted: %s", e.Op)
}

// ConflictError means the operation was already performed, typically by
// a concurrent actor. It is reported as "already done", not a failure.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// NotFoundError means the gig or instance is gone; the user-facing
// framing is "no longer available".
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string { return e.Msg }

// CooldownError rejects a submission made before the posting cooldown
// for the origin channel has elapsed.
type CooldownError struct {
	Remaining string
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("posting again too soon, wait %s", e.Remaining)
}
