package models

import "fmt"

// Role identifies the caller of a lifecycle operation. The zero value is the
// public invitee-facing surface, which has no administrative capabilities and
// is instead gated by the invite's deadline and lock.
type Role string

const (
	RoleInvitee     Role = ""
	RoleAdmin       Role = "admin"
	RoleCoordinator Role = "coordinator"
	RoleObserver    Role = "observer"
)

// Capability is a single administrative permission checked before a mutation.
type Capability int

const (
	CapCreateInvite Capability = iota
	CapUpdateInvite
	CapDeleteInvite
	CapChangeAllowance
	CapLockInvite
	CapUnlockInvite
	CapMutateGuests
	CapResetAttendance
	CapBypassDeadline
)

// ParseRole maps a configured role name to a Role. An empty string is the
// public invitee surface.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleInvitee, RoleAdmin, RoleCoordinator, RoleObserver:
		return Role(s), nil
	}
	return RoleInvitee, fmt.Errorf("unknown role %q", s)
}

// Administrative reports whether the role belongs to the admin surface.
// Observers count: they are administrative callers with no write capabilities.
func (r Role) Administrative() bool {
	return r != RoleInvitee
}

// Can reports whether the role holds the given capability. Invitees and
// observers hold none; coordinators hold everything except invite deletion,
// allowance changes, unlocking, and invite creation.
func (r Role) Can(c Capability) bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleCoordinator:
		switch c {
		case CapCreateInvite, CapDeleteInvite, CapChangeAllowance, CapUnlockInvite:
			return false
		}
		return true
	}
	return false
}

func (r Role) String() string {
	if r == RoleInvitee {
		return "invitee"
	}
	return string(r)
}
