package models

import (
	"time"

	"github.com/google/uuid"
)

// MaxGuestNameLength bounds the guest name field.
const MaxGuestNameLength = 100

// Guest represents a single invitee under an invite
type Guest struct {
	ID                  uuid.UUID  `json:"id"`
	InviteCode          string     `json:"invite_code"`
	Name                string     `json:"name"`
	Attending           Attendance `json:"attending,omitempty"`
	IsPlusOne           bool       `json:"is_plus_one"`
	DietaryRequirements string     `json:"dietary_requirements,omitempty"`
	IsChild             bool       `json:"is_child"`
	ChildAge            int        `json:"child_age,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// GuestUpdate carries a partial guest update. Nil fields are left unchanged.
type GuestUpdate struct {
	Name                *string
	Attending           *Attendance
	DietaryRequirements *string
	IsChild             *bool
	ChildAge            *int
}

// Attendance is the tri-state RSVP answer of a single guest. The zero value
// means the guest has not responded yet.
type Attendance string

const (
	AttendanceUnset     Attendance = ""
	AttendanceConfirmed Attendance = "confirmed"
	AttendanceDeclined  Attendance = "declined"
)

// Valid reports whether a is one of the three attendance states.
func (a Attendance) Valid() bool {
	switch a {
	case AttendanceUnset, AttendanceConfirmed, AttendanceDeclined:
		return true
	}
	return false
}

// Responded reports whether the guest has given an answer either way.
func (a Attendance) Responded() bool {
	return a == AttendanceConfirmed || a == AttendanceDeclined
}

func (a Attendance) String() string {
	if a == AttendanceUnset {
		return "no response"
	}
	return string(a)
}
