package rsvp_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wedding-rsvp/internal/models"
	"wedding-rsvp/internal/rsvp"
	"wedding-rsvp/internal/storage"
)

var testStart = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// newTestService wires the engine to a real store with a controllable clock.
// Mutating *now moves time for deadline logic.
func newTestService(t *testing.T) (*rsvp.Service, *storage.Store, *time.Time) {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "rsvp.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := testStart
	service := rsvp.NewService(store, zerolog.Nop(), func() time.Time { return now })
	return service, store, &now
}

func createTestInvite(t *testing.T, service *rsvp.Service, code string, allowance int, deadline time.Time) models.Invite {
	t.Helper()
	inv, err := service.CreateInvite(context.Background(), models.RoleAdmin, rsvp.CreateInviteParams{
		Code:             code,
		Deadline:         deadline,
		PlusOneAllowance: allowance,
	})
	require.NoError(t, err)
	return inv
}

func TestCreateInvite(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	deadline := testStart.Add(30 * 24 * time.Hour)

	t.Run("explicit code", func(t *testing.T) {
		inv, err := service.CreateInvite(ctx, models.RoleAdmin, rsvp.CreateInviteParams{
			Code:             "SMITH",
			Deadline:         deadline,
			PlusOneAllowance: 2,
			Notes:            "College friends",
		})
		require.NoError(t, err)
		assert.Equal(t, "SMITH", inv.Code)
		assert.Equal(t, "en", inv.Language)
		assert.False(t, inv.Locked)
	})

	t.Run("explicit code conflict", func(t *testing.T) {
		_, err := service.CreateInvite(ctx, models.RoleAdmin, rsvp.CreateInviteParams{
			Code:     "SMITH",
			Deadline: deadline,
		})
		var conflict *models.ConflictError
		require.ErrorAs(t, err, &conflict)
	})

	t.Run("generated code", func(t *testing.T) {
		inv, err := service.CreateInvite(ctx, models.RoleAdmin, rsvp.CreateInviteParams{
			Deadline: deadline,
			Language: "it",
		})
		require.NoError(t, err)
		assert.True(t, rsvp.ValidCode(inv.Code))
		assert.Equal(t, "it", inv.Language)
	})

	t.Run("validation", func(t *testing.T) {
		var invalid *models.ValidationError

		_, err := service.CreateInvite(ctx, models.RoleAdmin, rsvp.CreateInviteParams{
			Deadline: deadline, Language: "xx",
		})
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "language", invalid.Field)

		_, err = service.CreateInvite(ctx, models.RoleAdmin, rsvp.CreateInviteParams{
			Deadline: deadline, PlusOneAllowance: -1,
		})
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "plus_one_allowance", invalid.Field)

		_, err = service.CreateInvite(ctx, models.RoleAdmin, rsvp.CreateInviteParams{})
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "deadline", invalid.Field)

		_, err = service.CreateInvite(ctx, models.RoleAdmin, rsvp.CreateInviteParams{
			Deadline: deadline, Code: "toolongcode",
		})
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, "code", invalid.Field)
	})

	t.Run("roles", func(t *testing.T) {
		var forbidden *models.ForbiddenError
		for _, role := range []models.Role{models.RoleInvitee, models.RoleObserver, models.RoleCoordinator} {
			_, err := service.CreateInvite(ctx, role, rsvp.CreateInviteParams{Deadline: deadline})
			require.ErrorAs(t, err, &forbidden, "role %s", role)
		}
	})
}

// CreateInvite regenerates the code when a generated one collides, bounded to
// three attempts.
func TestCreateInviteRetriesOnCollision(t *testing.T) {
	repo := &collidingRepo{failures: 2}
	service := rsvp.NewService(repo, zerolog.Nop(), nil)

	inv, err := service.CreateInvite(context.Background(), models.RoleAdmin, rsvp.CreateInviteParams{
		Deadline: testStart.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, repo.calls)
	assert.True(t, rsvp.ValidCode(inv.Code))

	repo = &collidingRepo{failures: 3}
	service = rsvp.NewService(repo, zerolog.Nop(), nil)
	_, err = service.CreateInvite(context.Background(), models.RoleAdmin, rsvp.CreateInviteParams{
		Deadline: testStart.Add(time.Hour),
	})
	require.Error(t, err)
	var conflict *models.ConflictError
	assert.ErrorAs(t, err, &conflict)
	assert.Equal(t, 3, repo.calls)
}

// collidingRepo fails CreateInvite with a ConflictError a set number of times.
// Only CreateInvite is exercised; the embedded nil interface covers the rest.
type collidingRepo struct {
	rsvp.Repository
	failures int
	calls    int
}

func (r *collidingRepo) CreateInvite(_ context.Context, inv models.Invite) (models.Invite, error) {
	r.calls++
	if r.calls <= r.failures {
		return models.Invite{}, &models.ConflictError{Code: inv.Code}
	}
	return inv, nil
}

func TestDeadlineGating(t *testing.T) {
	service, _, now := newTestService(t)
	ctx := context.Background()
	deadline := testStart.Add(time.Hour)
	createTestInvite(t, service, "SMITH", 5, deadline)

	*now = deadline.Add(-time.Second)
	_, err := service.AddGuest(ctx, models.RoleInvitee, "SMITH", rsvp.GuestParams{Name: "Alice"})
	require.NoError(t, err)

	*now = deadline.Add(time.Second)
	_, err = service.AddGuest(ctx, models.RoleInvitee, "SMITH", rsvp.GuestParams{Name: "Bob"})
	var passed *models.DeadlinePassedError
	require.ErrorAs(t, err, &passed)
	assert.Equal(t, "SMITH", passed.Code)
	assert.Equal(t, deadline, passed.Deadline)

	// Administrative callers bypass the deadline.
	_, err = service.AddGuest(ctx, models.RoleAdmin, "SMITH", rsvp.GuestParams{Name: "Bob"})
	require.NoError(t, err)
	_, err = service.AddGuest(ctx, models.RoleCoordinator, "SMITH", rsvp.GuestParams{Name: "Carol"})
	require.NoError(t, err)
}

func TestDeadlineObservedOnReadLocksInvite(t *testing.T) {
	service, store, now := newTestService(t)
	ctx := context.Background()
	deadline := testStart.Add(time.Hour)
	createTestInvite(t, service, "SMITH", 0, deadline)

	inv, err := service.GetInvite(ctx, "SMITH")
	require.NoError(t, err)
	assert.False(t, inv.Locked)

	*now = deadline
	inv, err = service.GetInvite(ctx, "SMITH")
	require.NoError(t, err)
	assert.True(t, inv.Locked)

	// The transition is persisted, not just reported.
	stored, err := store.GetInvite(ctx, "SMITH")
	require.NoError(t, err)
	assert.True(t, stored.Locked)
}

func TestLockGating(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	deadline := testStart.Add(time.Hour)
	createTestInvite(t, service, "SMITH", 0, deadline)

	var forbidden *models.ForbiddenError
	require.ErrorAs(t, service.Lock(ctx, models.RoleObserver, "SMITH"), &forbidden)

	// The invitee-facing surface may lock (submit and finish) but never unlock.
	require.NoError(t, service.Lock(ctx, models.RoleInvitee, "SMITH"))
	require.ErrorAs(t, service.Unlock(ctx, models.RoleInvitee, "SMITH"), &forbidden)
	require.ErrorAs(t, service.Unlock(ctx, models.RoleCoordinator, "SMITH"), &forbidden)

	_, err := service.AddGuest(ctx, models.RoleInvitee, "SMITH", rsvp.GuestParams{Name: "Alice"})
	var locked *models.LockedInviteError
	require.ErrorAs(t, err, &locked)

	require.NoError(t, service.Unlock(ctx, models.RoleAdmin, "SMITH"))
	_, err = service.AddGuest(ctx, models.RoleInvitee, "SMITH", rsvp.GuestParams{Name: "Alice"})
	require.NoError(t, err)

	require.NoError(t, service.Lock(ctx, models.RoleAdmin, "SMITH"))
	require.NoError(t, service.Lock(ctx, models.RoleCoordinator, "SMITH"))
}

func TestRoleGating(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	deadline := testStart.Add(time.Hour)
	createTestInvite(t, service, "SMITH", 2, deadline)

	var forbidden *models.ForbiddenError

	t.Run("observer is read-only", func(t *testing.T) {
		_, err := service.AddGuest(ctx, models.RoleObserver, "SMITH", rsvp.GuestParams{Name: "Alice"})
		require.ErrorAs(t, err, &forbidden)

		_, err = service.UpdateInvite(ctx, models.RoleObserver, "SMITH", models.InviteUpdate{})
		require.ErrorAs(t, err, &forbidden)

		require.ErrorAs(t, service.DeleteInvite(ctx, models.RoleObserver, "SMITH"), &forbidden)

		invites, err := service.ListInvites(ctx, models.RoleObserver, models.ListFilter{})
		require.NoError(t, err)
		assert.Len(t, invites, 1)
	})

	t.Run("coordinator cannot delete or change allowance", func(t *testing.T) {
		require.ErrorAs(t, service.DeleteInvite(ctx, models.RoleCoordinator, "SMITH"), &forbidden)

		allowance := 5
		_, err := service.UpdateInvite(ctx, models.RoleCoordinator, "SMITH", models.InviteUpdate{
			PlusOneAllowance: &allowance,
		})
		require.ErrorAs(t, err, &forbidden)

		lang := "it"
		inv, err := service.UpdateInvite(ctx, models.RoleCoordinator, "SMITH", models.InviteUpdate{
			Language: &lang,
		})
		require.NoError(t, err)
		assert.Equal(t, "it", inv.Language)
	})

	t.Run("invitee cannot use the admin surface", func(t *testing.T) {
		_, err := service.ListInvites(ctx, models.RoleInvitee, models.ListFilter{})
		require.ErrorAs(t, err, &forbidden)

		require.ErrorAs(t, service.DeleteInvite(ctx, models.RoleInvitee, "SMITH"), &forbidden)
	})

	t.Run("admin may delete", func(t *testing.T) {
		require.NoError(t, service.DeleteInvite(ctx, models.RoleAdmin, "SMITH"))
		inv, err := service.GetInvite(ctx, "SMITH")
		require.NoError(t, err)
		assert.Nil(t, inv)
	})
}

func TestAttendanceTransitions(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	deadline := testStart.Add(time.Hour)
	createTestInvite(t, service, "SMITH", 0, deadline)

	guest, err := service.AddGuest(ctx, models.RoleInvitee, "SMITH", rsvp.GuestParams{Name: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceUnset, guest.Attending)

	confirm := models.AttendanceConfirmed
	guest, err = service.UpdateGuest(ctx, models.RoleInvitee, guest.ID, models.GuestUpdate{Attending: &confirm})
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceConfirmed, guest.Attending)

	// Re-toggling pre-deadline is fine.
	decline := models.AttendanceDeclined
	guest, err = service.UpdateGuest(ctx, models.RoleInvitee, guest.ID, models.GuestUpdate{Attending: &decline})
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceDeclined, guest.Attending)

	// Only the admin surface may clear an answer back to unset.
	unset := models.AttendanceUnset
	_, err = service.UpdateGuest(ctx, models.RoleInvitee, guest.ID, models.GuestUpdate{Attending: &unset})
	var forbidden *models.ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	_, err = service.UpdateGuest(ctx, models.RoleObserver, guest.ID, models.GuestUpdate{Attending: &unset})
	require.ErrorAs(t, err, &forbidden)

	guest, err = service.UpdateGuest(ctx, models.RoleAdmin, guest.ID, models.GuestUpdate{Attending: &unset})
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceUnset, guest.Attending)
}

func TestAllowanceDecreaseOnlyBlocksFurtherAdds(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	deadline := testStart.Add(time.Hour)
	createTestInvite(t, service, "SMITH", 2, deadline)

	_, err := service.AddGuest(ctx, models.RoleInvitee, "SMITH", rsvp.GuestParams{Name: "Bob", IsPlusOne: true})
	require.NoError(t, err)
	_, err = service.AddGuest(ctx, models.RoleInvitee, "SMITH", rsvp.GuestParams{Name: "Carol", IsPlusOne: true})
	require.NoError(t, err)

	// Lowering the ceiling below the current count succeeds and keeps both guests.
	allowance := 1
	_, err = service.UpdateInvite(ctx, models.RoleAdmin, "SMITH", models.InviteUpdate{PlusOneAllowance: &allowance})
	require.NoError(t, err)

	_, guests, err := service.GetInviteWithGuests(ctx, "SMITH")
	require.NoError(t, err)
	assert.Len(t, guests, 2)

	_, err = service.AddGuest(ctx, models.RoleAdmin, "SMITH", rsvp.GuestParams{Name: "Dan", IsPlusOne: true})
	var exceeded *models.AllowanceExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 1, exceeded.Allowance)
	assert.Equal(t, 2, exceeded.Count)
}

func TestRemoveGuest(t *testing.T) {
	service, _, now := newTestService(t)
	ctx := context.Background()
	deadline := testStart.Add(time.Hour)
	createTestInvite(t, service, "SMITH", 0, deadline)

	guest, err := service.AddGuest(ctx, models.RoleInvitee, "SMITH", rsvp.GuestParams{Name: "Alice"})
	require.NoError(t, err)

	require.NoError(t, service.RemoveGuest(ctx, models.RoleInvitee, guest.ID))
	// Idempotent for unknown ids too.
	require.NoError(t, service.RemoveGuest(ctx, models.RoleInvitee, guest.ID))

	guest, err = service.AddGuest(ctx, models.RoleInvitee, "SMITH", rsvp.GuestParams{Name: "Bob"})
	require.NoError(t, err)

	*now = deadline.Add(time.Minute)
	var passed *models.DeadlinePassedError
	require.ErrorAs(t, service.RemoveGuest(ctx, models.RoleInvitee, guest.ID), &passed)

	var forbidden *models.ForbiddenError
	require.ErrorAs(t, service.RemoveGuest(ctx, models.RoleObserver, guest.ID), &forbidden)

	require.NoError(t, service.RemoveGuest(ctx, models.RoleCoordinator, guest.ID))
}

func TestUpdateGuestValidation(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	deadline := testStart.Add(time.Hour)
	createTestInvite(t, service, "SMITH", 0, deadline)

	guest, err := service.AddGuest(ctx, models.RoleInvitee, "SMITH", rsvp.GuestParams{Name: "Alice"})
	require.NoError(t, err)

	var invalid *models.ValidationError
	empty := ""
	_, err = service.UpdateGuest(ctx, models.RoleInvitee, guest.ID, models.GuestUpdate{Name: &empty})
	require.ErrorAs(t, err, &invalid)

	bogus := models.Attendance("maybe")
	_, err = service.UpdateGuest(ctx, models.RoleInvitee, guest.ID, models.GuestUpdate{Attending: &bogus})
	require.ErrorAs(t, err, &invalid)
}

func TestListInvitesValidation(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	var invalid *models.ValidationError
	_, err := service.ListInvites(ctx, models.RoleAdmin, models.ListFilter{Offset: -1})
	require.ErrorAs(t, err, &invalid)

	_, err = service.ListInvites(ctx, models.RoleAdmin, models.ListFilter{Limit: -1})
	require.ErrorAs(t, err, &invalid)

	_, err = service.ListInvites(ctx, models.RoleAdmin, models.ListFilter{Language: "xx"})
	require.ErrorAs(t, err, &invalid)
}

func TestSummarize(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()
	deadline := testStart.Add(time.Hour)
	createTestInvite(t, service, "SMITH", 2, deadline)

	confirm := models.AttendanceConfirmed
	decline := models.AttendanceDeclined

	alice, err := service.AddGuest(ctx, models.RoleInvitee, "SMITH", rsvp.GuestParams{Name: "Alice"})
	require.NoError(t, err)
	_, err = service.UpdateGuest(ctx, models.RoleInvitee, alice.ID, models.GuestUpdate{Attending: &confirm})
	require.NoError(t, err)

	bob, err := service.AddGuest(ctx, models.RoleInvitee, "SMITH", rsvp.GuestParams{Name: "Bob", IsPlusOne: true})
	require.NoError(t, err)
	_, err = service.UpdateGuest(ctx, models.RoleInvitee, bob.ID, models.GuestUpdate{Attending: &decline})
	require.NoError(t, err)

	_, err = service.AddGuest(ctx, models.RoleInvitee, "SMITH", rsvp.GuestParams{Name: "Junior", IsChild: true, ChildAge: 6})
	require.NoError(t, err)

	summary, err := service.Summarize(ctx, "SMITH")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Attending)
	assert.Equal(t, 1, summary.Declined)
	assert.Equal(t, 1, summary.NoResponse)
	assert.Equal(t, 1, summary.Children)
	assert.Equal(t, 1, summary.PlusOnesUsed)
	assert.Equal(t, 2, summary.Allowance)

	absent, err := service.Summarize(ctx, "NOPEZ")
	require.NoError(t, err)
	assert.Nil(t, absent)
}

func TestInviteURL(t *testing.T) {
	inv := models.Invite{Code: "SMITH", Language: "en"}
	assert.Equal(t, "http://localhost:5173/invite/SMITH", rsvp.InviteURL("http://localhost:5173", inv))

	inv.Language = "it"
	assert.Equal(t, "http://localhost:5173/invite/SMITH?lang=it", rsvp.InviteURL("http://localhost:5173", inv))
}
