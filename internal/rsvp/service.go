// Package rsvp implements the invite lifecycle rules: deadline and lock
// gating on the invitee-facing path, role checks on the administrative path,
// and the plus-one allowance policy.
package rsvp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wedding-rsvp/internal/models"
)

// createAttempts bounds code regeneration when a generated invite code
// collides with an existing one.
const createAttempts = 3

// defaultListLimit is used when a list request does not set a limit.
const defaultListLimit = 50

// Repository is the persistence boundary the engine drives. Implemented by
// storage.Store.
type Repository interface {
	CreateInvite(ctx context.Context, inv models.Invite) (models.Invite, error)
	GetInvite(ctx context.Context, code string) (*models.Invite, error)
	GetInviteWithGuests(ctx context.Context, code string) (*models.Invite, []models.Guest, error)
	UpdateInvite(ctx context.Context, code string, upd models.InviteUpdate) (models.Invite, error)
	DeleteInvite(ctx context.Context, code string) error
	LockInvite(ctx context.Context, code string) error
	UnlockInvite(ctx context.Context, code string) error
	ListInvites(ctx context.Context, f models.ListFilter) ([]models.Invite, error)
	AddGuest(ctx context.Context, inviteCode string, g models.Guest, bypassLock bool) (models.Guest, error)
	GetGuest(ctx context.Context, id uuid.UUID) (*models.Guest, error)
	RemoveGuest(ctx context.Context, id uuid.UUID) error
	UpdateGuest(ctx context.Context, id uuid.UUID, upd models.GuestUpdate) (models.Guest, error)
}

// Service is the RSVP lifecycle engine.
type Service struct {
	repo Repository
	log  zerolog.Logger
	now  func() time.Time
}

// NewService creates a lifecycle engine over the given repository. A nil now
// falls back to time.Now; tests inject a fixed clock for deadline logic.
func NewService(repo Repository, log zerolog.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo: repo,
		log:  log.With().Str("component", "rsvp").Logger(),
		now:  now,
	}
}

// CreateInviteParams describes a new invite. An empty Code requests a
// generated one; a collision on a generated code is retried with a fresh code
// up to three times.
type CreateInviteParams struct {
	Code             string
	Deadline         time.Time
	Language         string
	PlusOneAllowance int
	Notes            string
}

// GuestParams describes a guest to add under an invite.
type GuestParams struct {
	Name                string
	Attending           models.Attendance
	IsPlusOne           bool
	DietaryRequirements string
	IsChild             bool
	ChildAge            int
}

// CreateInvite creates a new invite. Admin only.
func (s *Service) CreateInvite(ctx context.Context, role models.Role, p CreateInviteParams) (models.Invite, error) {
	if err := s.require(role, models.CapCreateInvite, "create invites"); err != nil {
		return models.Invite{}, err
	}

	if p.Language == "" {
		p.Language = models.DefaultLanguage
	}
	if !models.LanguageSupported(p.Language) {
		return models.Invite{}, &models.ValidationError{Field: "language", Reason: fmt.Sprintf("unsupported language %q", p.Language)}
	}
	if p.PlusOneAllowance < 0 || p.PlusOneAllowance > models.MaxPlusOneAllowance {
		return models.Invite{}, &models.ValidationError{Field: "plus_one_allowance", Reason: fmt.Sprintf("must be between 0 and %d", models.MaxPlusOneAllowance)}
	}
	if p.Deadline.IsZero() {
		return models.Invite{}, &models.ValidationError{Field: "deadline", Reason: "deadline is required"}
	}

	inv := models.Invite{
		Deadline:         p.Deadline,
		Language:         p.Language,
		PlusOneAllowance: p.PlusOneAllowance,
		Notes:            p.Notes,
	}

	if p.Code != "" {
		if !ValidCode(p.Code) {
			return models.Invite{}, &models.ValidationError{Field: "code", Reason: fmt.Sprintf("must be %d uppercase letters or digits", models.CodeLength)}
		}
		inv.Code = p.Code
		return s.repo.CreateInvite(ctx, inv)
	}

	var lastErr error
	for attempt := 0; attempt < createAttempts; attempt++ {
		code, err := GenerateCode()
		if err != nil {
			return models.Invite{}, fmt.Errorf("failed to generate invite code: %w", err)
		}
		inv.Code = code

		created, err := s.repo.CreateInvite(ctx, inv)
		var conflict *models.ConflictError
		if errors.As(err, &conflict) {
			s.log.Warn().Str("code", code).Int("attempt", attempt+1).Msg("Generated invite code collided, retrying")
			lastErr = err
			continue
		}
		if err != nil {
			return models.Invite{}, err
		}
		s.log.Info().Str("code", created.Code).Time("deadline", created.Deadline).Msg("Invite created")
		return created, nil
	}
	return models.Invite{}, fmt.Errorf("failed to create invite after %d attempts: %w", createAttempts, lastErr)
}

// GetInvite resolves an invite by code, returning nil when the code is
// unknown. Observing a passed deadline locks the invite.
func (s *Service) GetInvite(ctx context.Context, code string) (*models.Invite, error) {
	inv, err := s.repo.GetInvite(ctx, code)
	if err != nil || inv == nil {
		return inv, err
	}
	s.observeDeadline(ctx, inv)
	return inv, nil
}

// GetInviteWithGuests resolves an invite and its guests ordered by creation
// time. A nil invite means the code is unknown.
func (s *Service) GetInviteWithGuests(ctx context.Context, code string) (*models.Invite, []models.Guest, error) {
	inv, guests, err := s.repo.GetInviteWithGuests(ctx, code)
	if err != nil || inv == nil {
		return inv, guests, err
	}
	s.observeDeadline(ctx, inv)
	return inv, guests, nil
}

// ListInvites returns a page of invites for the administrative surface.
func (s *Service) ListInvites(ctx context.Context, role models.Role, f models.ListFilter) ([]models.Invite, error) {
	if !role.Administrative() {
		return nil, s.forbidden(role, "list invites")
	}
	if f.Offset < 0 {
		return nil, &models.ValidationError{Field: "offset", Reason: "must be non-negative"}
	}
	if f.Limit < 0 {
		return nil, &models.ValidationError{Field: "limit", Reason: "must be non-negative"}
	}
	if f.Limit == 0 {
		f.Limit = defaultListLimit
	}
	if f.Language != "" && !models.LanguageSupported(f.Language) {
		return nil, &models.ValidationError{Field: "language", Reason: fmt.Sprintf("unsupported language %q", f.Language)}
	}
	return s.repo.ListInvites(ctx, f)
}

// UpdateInvite merges a partial update into the invite. Changing the
// allowance requires the admin role; lowering it below the current plus-one
// count never removes guests, it only blocks further additions.
func (s *Service) UpdateInvite(ctx context.Context, role models.Role, code string, upd models.InviteUpdate) (models.Invite, error) {
	if err := s.require(role, models.CapUpdateInvite, "update invites"); err != nil {
		return models.Invite{}, err
	}
	if upd.PlusOneAllowance != nil {
		if err := s.require(role, models.CapChangeAllowance, "change the plus-one allowance"); err != nil {
			return models.Invite{}, err
		}
		if *upd.PlusOneAllowance < 0 || *upd.PlusOneAllowance > models.MaxPlusOneAllowance {
			return models.Invite{}, &models.ValidationError{Field: "plus_one_allowance", Reason: fmt.Sprintf("must be between 0 and %d", models.MaxPlusOneAllowance)}
		}
	}
	if upd.Language != nil && !models.LanguageSupported(*upd.Language) {
		return models.Invite{}, &models.ValidationError{Field: "language", Reason: fmt.Sprintf("unsupported language %q", *upd.Language)}
	}
	if upd.Deadline != nil && upd.Deadline.IsZero() {
		return models.Invite{}, &models.ValidationError{Field: "deadline", Reason: "deadline is required"}
	}
	return s.repo.UpdateInvite(ctx, code, upd)
}

// DeleteInvite removes the invite and all its guests. Admin only; idempotent.
func (s *Service) DeleteInvite(ctx context.Context, role models.Role, code string) error {
	if err := s.require(role, models.CapDeleteInvite, "delete invites"); err != nil {
		return err
	}
	if err := s.repo.DeleteInvite(ctx, code); err != nil {
		return err
	}
	s.log.Info().Str("code", code).Msg("Invite deleted")
	return nil
}

// Lock closes the invite to further guest mutation. Invitees may lock their
// own invite (the submit-and-finish flow); on the administrative surface the
// lock capability is required. Idempotent.
func (s *Service) Lock(ctx context.Context, role models.Role, code string) error {
	if role.Administrative() {
		if err := s.require(role, models.CapLockInvite, "lock invites"); err != nil {
			return err
		}
	}
	return s.repo.LockInvite(ctx, code)
}

// Unlock reopens a locked invite. Admin only.
func (s *Service) Unlock(ctx context.Context, role models.Role, code string) error {
	if err := s.require(role, models.CapUnlockInvite, "unlock invites"); err != nil {
		return err
	}
	return s.repo.UnlockInvite(ctx, code)
}

// AddGuest adds a guest under the invite. Invitee calls are rejected once the
// deadline has passed or the invite is locked; administrative callers bypass
// both but never the allowance ceiling, which is enforced atomically by the
// repository.
func (s *Service) AddGuest(ctx context.Context, role models.Role, inviteCode string, p GuestParams) (models.Guest, error) {
	if role.Administrative() {
		if err := s.require(role, models.CapMutateGuests, "add guests"); err != nil {
			return models.Guest{}, err
		}
	}
	if err := validateGuestParams(p); err != nil {
		return models.Guest{}, err
	}

	if !role.Administrative() {
		if err := s.gateInvitee(ctx, inviteCode); err != nil {
			return models.Guest{}, err
		}
	}

	if !p.IsChild {
		p.ChildAge = 0
	}
	g := models.Guest{
		Name:                p.Name,
		Attending:           p.Attending,
		IsPlusOne:           p.IsPlusOne,
		DietaryRequirements: p.DietaryRequirements,
		IsChild:             p.IsChild,
		ChildAge:            p.ChildAge,
	}

	added, err := s.repo.AddGuest(ctx, inviteCode, g, role.Administrative())
	if err != nil {
		return models.Guest{}, err
	}
	s.log.Info().Str("code", inviteCode).Str("guest", added.Name).Bool("plus_one", added.IsPlusOne).Msg("Guest added")
	return added, nil
}

// UpdateGuest merges a partial update into the guest. Invitee calls are
// deadline- and lock-gated through the owning invite; clearing the attendance
// answer back to unset requires an administrative role.
func (s *Service) UpdateGuest(ctx context.Context, role models.Role, guestID uuid.UUID, upd models.GuestUpdate) (models.Guest, error) {
	if role.Administrative() {
		if err := s.require(role, models.CapMutateGuests, "edit guests"); err != nil {
			return models.Guest{}, err
		}
	}
	if err := validateGuestUpdate(upd); err != nil {
		return models.Guest{}, err
	}
	if upd.Attending != nil && *upd.Attending == models.AttendanceUnset {
		if err := s.require(role, models.CapResetAttendance, "reset an attendance answer"); err != nil {
			return models.Guest{}, err
		}
	}

	g, err := s.repo.GetGuest(ctx, guestID)
	if err != nil {
		return models.Guest{}, err
	}
	if g == nil {
		return models.Guest{}, &models.NotFoundError{Entity: "guest", Key: guestID.String()}
	}

	if !role.Administrative() {
		if err := s.gateInvitee(ctx, g.InviteCode); err != nil {
			return models.Guest{}, err
		}
	}
	return s.repo.UpdateGuest(ctx, guestID, upd)
}

// RemoveGuest deletes the guest. Idempotent: removing an unknown id succeeds.
// Invitee calls are deadline- and lock-gated through the owning invite.
func (s *Service) RemoveGuest(ctx context.Context, role models.Role, guestID uuid.UUID) error {
	if role.Administrative() {
		if err := s.require(role, models.CapMutateGuests, "remove guests"); err != nil {
			return err
		}
	}

	g, err := s.repo.GetGuest(ctx, guestID)
	if err != nil {
		return err
	}
	if g == nil {
		return nil
	}

	if !role.Administrative() {
		if err := s.gateInvitee(ctx, g.InviteCode); err != nil {
			return err
		}
	}
	return s.repo.RemoveGuest(ctx, guestID)
}

// Summary aggregates the RSVP state of one invite for the organizer view.
type Summary struct {
	Code         string
	Attending    int
	Declined     int
	NoResponse   int
	Children     int
	PlusOnesUsed int
	Allowance    int
	Locked       bool
	Deadline     time.Time
}

// Summarize computes attendance counts for the invite. A nil summary means
// the code is unknown.
func (s *Service) Summarize(ctx context.Context, code string) (*Summary, error) {
	inv, guests, err := s.GetInviteWithGuests(ctx, code)
	if err != nil || inv == nil {
		return nil, err
	}

	sum := &Summary{
		Code:      inv.Code,
		Allowance: inv.PlusOneAllowance,
		Locked:    inv.Locked,
		Deadline:  inv.Deadline,
	}
	for _, g := range guests {
		switch g.Attending {
		case models.AttendanceConfirmed:
			sum.Attending++
		case models.AttendanceDeclined:
			sum.Declined++
		default:
			sum.NoResponse++
		}
		if g.IsChild {
			sum.Children++
		}
		if g.IsPlusOne {
			sum.PlusOnesUsed++
		}
	}
	return sum, nil
}

// InviteURL builds the public RSVP link for an invite, carrying its language
// preference.
func InviteURL(baseURL string, inv models.Invite) string {
	u := fmt.Sprintf("%s/invite/%s", baseURL, url.PathEscape(inv.Code))
	if inv.Language != models.DefaultLanguage {
		u += "?lang=" + url.QueryEscape(inv.Language)
	}
	return u
}

// gateInvitee rejects invitee-facing mutations once the deadline has passed
// or the invite is locked. Observing a passed deadline persists the lock.
func (s *Service) gateInvitee(ctx context.Context, code string) error {
	inv, err := s.repo.GetInvite(ctx, code)
	if err != nil {
		return err
	}
	if inv == nil {
		return &models.NotFoundError{Entity: "invite", Key: code}
	}
	if !s.now().Before(inv.Deadline) {
		s.observeDeadline(ctx, inv)
		return &models.DeadlinePassedError{Code: inv.Code, Deadline: inv.Deadline}
	}
	if inv.Locked {
		return &models.LockedInviteError{Code: inv.Code}
	}
	return nil
}

// observeDeadline applies the implicit OPEN -> LOCKED transition when a read
// path sees the deadline has passed.
func (s *Service) observeDeadline(ctx context.Context, inv *models.Invite) {
	if inv.Locked || s.now().Before(inv.Deadline) {
		return
	}
	if err := s.repo.LockInvite(ctx, inv.Code); err != nil {
		s.log.Error().Err(err).Str("code", inv.Code).Msg("Failed to lock invite past deadline")
		return
	}
	inv.Locked = true
	s.log.Info().Str("code", inv.Code).Time("deadline", inv.Deadline).Msg("Invite locked, deadline passed")
}

// require checks a capability and logs the rejection for audit.
func (s *Service) require(role models.Role, c models.Capability, op string) error {
	if role.Can(c) {
		return nil
	}
	return s.forbidden(role, op)
}

func (s *Service) forbidden(role models.Role, op string) error {
	err := &models.ForbiddenError{Role: role, Op: op}
	s.log.Warn().Str("role", role.String()).Str("op", op).Msg("Operation forbidden")
	return err
}

func validateGuestParams(p GuestParams) error {
	if p.Name == "" {
		return &models.ValidationError{Field: "name", Reason: "name is required"}
	}
	if len(p.Name) > models.MaxGuestNameLength {
		return &models.ValidationError{Field: "name", Reason: fmt.Sprintf("must be at most %d characters", models.MaxGuestNameLength)}
	}
	if !p.Attending.Valid() {
		return &models.ValidationError{Field: "attending", Reason: fmt.Sprintf("unknown attendance state %q", string(p.Attending))}
	}
	if p.ChildAge < 0 {
		return &models.ValidationError{Field: "child_age", Reason: "must be non-negative"}
	}
	return nil
}

func validateGuestUpdate(upd models.GuestUpdate) error {
	if upd.Name != nil {
		if *upd.Name == "" {
			return &models.ValidationError{Field: "name", Reason: "name is required"}
		}
		if len(*upd.Name) > models.MaxGuestNameLength {
			return &models.ValidationError{Field: "name", Reason: fmt.Sprintf("must be at most %d characters", models.MaxGuestNameLength)}
		}
	}
	if upd.Attending != nil && !upd.Attending.Valid() {
		return &models.ValidationError{Field: "attending", Reason: fmt.Sprintf("unknown attendance state %q", string(*upd.Attending))}
	}
	if upd.ChildAge != nil && *upd.ChildAge < 0 {
		return &models.ValidationError{Field: "child_age", Reason: "must be non-negative"}
	}
	return nil
}
