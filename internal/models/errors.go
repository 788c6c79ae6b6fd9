package models

import (
	"fmt"
	"time"
)

// NotFoundError reports that a referenced invite or guest does not exist.
// Read paths return nil instead; only write paths return this error.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
}

// ConflictError reports an invite code collision on create. The caller should
// retry with a fresh code.
type ConflictError struct {
	Code string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("invite code %q already exists", e.Code)
}

// DeadlinePassedError rejects an invitee-facing mutation after the RSVP
// deadline.
type DeadlinePassedError struct {
	Code     string
	Deadline time.Time
}

func (e *DeadlinePassedError) Error() string {
	return fmt.Sprintf("invite %q: RSVP deadline %s has passed", e.Code, e.Deadline.Format(time.RFC3339))
}

// LockedInviteError rejects an invitee-facing mutation on a locked invite.
type LockedInviteError struct {
	Code string
}

func (e *LockedInviteError) Error() string {
	return fmt.Sprintf("invite %q is locked", e.Code)
}

// AllowanceExceededError rejects a plus-one addition that would exceed the
// invite's ceiling. Allowance and Count describe the state at rejection time
// so callers can render a precise message.
type AllowanceExceededError struct {
	Code      string
	Allowance int
	Count     int
}

func (e *AllowanceExceededError) Error() string {
	return fmt.Sprintf("invite %q: plus-one allowance exceeded (%d of %d used)", e.Code, e.Count, e.Allowance)
}

// ForbiddenError reports that the caller's role lacks the capability required
// by the operation.
type ForbiddenError struct {
	Role Role
	Op   string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("role %s may not %s", e.Role, e.Op)
}

// ValidationError reports a malformed field on a create or update request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
