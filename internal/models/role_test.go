package models

import "testing"

func TestParseRole(t *testing.T) {
	for _, name := range []string{"", "admin", "coordinator", "observer"} {
		if _, err := ParseRole(name); err != nil {
			t.Errorf("ParseRole(%q) returned error: %v", name, err)
		}
	}
	if _, err := ParseRole("superuser"); err == nil {
		t.Error("ParseRole accepted an unknown role")
	}
}

func TestRoleCapabilities(t *testing.T) {
	allCaps := []Capability{
		CapCreateInvite, CapUpdateInvite, CapDeleteInvite, CapChangeAllowance,
		CapLockInvite, CapUnlockInvite, CapMutateGuests, CapResetAttendance,
		CapBypassDeadline,
	}

	for _, c := range allCaps {
		if !RoleAdmin.Can(c) {
			t.Errorf("admin should hold capability %d", c)
		}
		if RoleObserver.Can(c) {
			t.Errorf("observer should not hold capability %d", c)
		}
		if RoleInvitee.Can(c) {
			t.Errorf("invitee should not hold capability %d", c)
		}
	}

	coordinatorDenied := map[Capability]bool{
		CapCreateInvite:    true,
		CapDeleteInvite:    true,
		CapChangeAllowance: true,
		CapUnlockInvite:    true,
	}
	for _, c := range allCaps {
		got := RoleCoordinator.Can(c)
		if want := !coordinatorDenied[c]; got != want {
			t.Errorf("coordinator capability %d: got %v, want %v", c, got, want)
		}
	}
}

func TestRoleAdministrative(t *testing.T) {
	if RoleInvitee.Administrative() {
		t.Error("invitee should not be administrative")
	}
	for _, r := range []Role{RoleAdmin, RoleCoordinator, RoleObserver} {
		if !r.Administrative() {
			t.Errorf("%s should be administrative", r)
		}
	}
}
