package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"wedding-rsvp/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS invites (
	code               TEXT PRIMARY KEY,
	deadline           TIMESTAMP NOT NULL,
	locked             BOOLEAN NOT NULL DEFAULT 0,
	language           TEXT NOT NULL DEFAULT 'en',
	notes              TEXT,
	plus_one_allowance INTEGER NOT NULL DEFAULT 0,
	created_at         TIMESTAMP NOT NULL,
	updated_at         TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS guests (
	id                   TEXT PRIMARY KEY,
	invite_code          TEXT NOT NULL REFERENCES invites(code) ON DELETE CASCADE,
	name                 TEXT NOT NULL,
	attending            BOOLEAN,
	is_plus_one          BOOLEAN NOT NULL DEFAULT 0,
	dietary_requirements TEXT,
	is_child             BOOLEAN NOT NULL DEFAULT 0,
	child_age            INTEGER,
	created_at           TIMESTAMP NOT NULL,
	updated_at           TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_guests_invite_code ON guests(invite_code);
`

// Store persists invites and their guests in SQLite. All guest writes that
// touch the plus-one ceiling run inside an immediate transaction so that
// concurrent additions cannot jointly exceed the allowance.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens (creating if needed) the SQLite database at filePath and
// ensures the schema exists.
func NewStore(filePath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate", filePath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SetClock overrides the timestamp source. Intended for tests.
func (s *Store) SetClock(now func() time.Time) {
	s.now = now
}

// CreateInvite inserts a new invite. The code must be unique; a collision is
// reported as a ConflictError so the caller can regenerate and retry.
func (s *Store) CreateInvite(ctx context.Context, inv models.Invite) (models.Invite, error) {
	ts := s.now().UTC()
	inv.CreatedAt = ts
	inv.UpdatedAt = ts

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO invites (code, deadline, locked, language, notes, plus_one_allowance, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.Code, inv.Deadline.UTC(), inv.Locked, inv.Language,
		nullString(inv.Notes), inv.PlusOneAllowance, inv.CreatedAt, inv.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Invite{}, &models.ConflictError{Code: inv.Code}
		}
		return models.Invite{}, fmt.Errorf("failed to insert invite: %w", err)
	}
	return inv, nil
}

// GetInvite returns the invite with the given code, or nil if absent.
func (s *Store) GetInvite(ctx context.Context, code string) (*models.Invite, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT code, deadline, locked, language, notes, plus_one_allowance, created_at, updated_at
		 FROM invites WHERE code = ?`, code)

	inv, err := scanInvite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read invite: %w", err)
	}
	return inv, nil
}

// GetInviteWithGuests returns the invite and its guests ordered by guest
// creation time ascending. A nil invite means the code is unknown.
func (s *Store) GetInviteWithGuests(ctx context.Context, code string) (*models.Invite, []models.Guest, error) {
	inv, err := s.GetInvite(ctx, code)
	if err != nil || inv == nil {
		return inv, nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, invite_code, name, attending, is_plus_one, dietary_requirements, is_child, child_age, created_at, updated_at
		 FROM guests WHERE invite_code = ? ORDER BY created_at ASC, rowid ASC`, code)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read guests: %w", err)
	}
	defer rows.Close()

	var guests []models.Guest
	for rows.Next() {
		g, err := scanGuest(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan guest: %w", err)
		}
		guests = append(guests, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to iterate guests: %w", err)
	}
	return inv, guests, nil
}

// UpdateInvite merges the non-nil fields into the stored invite and stamps
// updated_at. The code itself is immutable.
func (s *Store) UpdateInvite(ctx context.Context, code string, upd models.InviteUpdate) (models.Invite, error) {
	sets := []string{"updated_at = ?"}
	args := []any{s.now().UTC()}

	if upd.Deadline != nil {
		sets = append(sets, "deadline = ?")
		args = append(args, upd.Deadline.UTC())
	}
	if upd.Language != nil {
		sets = append(sets, "language = ?")
		args = append(args, *upd.Language)
	}
	if upd.PlusOneAllowance != nil {
		sets = append(sets, "plus_one_allowance = ?")
		args = append(args, *upd.PlusOneAllowance)
	}
	if upd.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, nullString(*upd.Notes))
	}
	args = append(args, code)

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE invites SET %s WHERE code = ?", strings.Join(sets, ", ")), args...)
	if err != nil {
		return models.Invite{}, fmt.Errorf("failed to update invite: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return models.Invite{}, fmt.Errorf("failed to read update result: %w", err)
	} else if n == 0 {
		return models.Invite{}, &models.NotFoundError{Entity: "invite", Key: code}
	}

	inv, err := s.GetInvite(ctx, code)
	if err != nil {
		return models.Invite{}, err
	}
	return *inv, nil
}

// DeleteInvite removes the invite and, through the foreign key cascade, every
// guest that references it. Deleting an unknown code is a no-op.
func (s *Store) DeleteInvite(ctx context.Context, code string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM invites WHERE code = ?`, code); err != nil {
		return fmt.Errorf("failed to delete invite: %w", err)
	}
	return nil
}

// LockInvite sets locked on the invite. Locking an already-locked invite is a
// no-op apart from the updated_at stamp.
func (s *Store) LockInvite(ctx context.Context, code string) error {
	return s.setLocked(ctx, code, true)
}

// UnlockInvite clears the locked flag.
func (s *Store) UnlockInvite(ctx context.Context, code string) error {
	return s.setLocked(ctx, code, false)
}

func (s *Store) setLocked(ctx context.Context, code string, locked bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE invites SET locked = ?, updated_at = ? WHERE code = ?`,
		locked, s.now().UTC(), code)
	if err != nil {
		return fmt.Errorf("failed to update lock state: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	} else if n == 0 {
		return &models.NotFoundError{Entity: "invite", Key: code}
	}
	return nil
}

// ListInvites returns a page of invites ordered by creation time ascending,
// optionally filtered by language.
func (s *Store) ListInvites(ctx context.Context, f models.ListFilter) ([]models.Invite, error) {
	query := `SELECT code, deadline, locked, language, notes, plus_one_allowance, created_at, updated_at
	          FROM invites`
	args := []any{}
	if f.Language != "" {
		query += ` WHERE language = ?`
		args = append(args, f.Language)
	}
	query += ` ORDER BY created_at ASC, rowid ASC LIMIT ? OFFSET ?`
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invites: %w", err)
	}
	defer rows.Close()

	var invites []models.Invite
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invite: %w", err)
		}
		invites = append(invites, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invites: %w", err)
	}
	return invites, nil
}

// AddGuest inserts a guest under the invite. The existence check, the lock
// check, and the plus-one allowance check run in the same immediate
// transaction as the insert, so two concurrent additions serialize and the
// persisted plus-one count never exceeds the ceiling. bypassLock lets
// administrative callers add guests to a locked invite; the allowance check
// is never bypassed.
func (s *Store) AddGuest(ctx context.Context, inviteCode string, g models.Guest, bypassLock bool) (models.Guest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Guest{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var locked bool
	var allowance int
	err = tx.QueryRowContext(ctx,
		`SELECT locked, plus_one_allowance FROM invites WHERE code = ?`, inviteCode).
		Scan(&locked, &allowance)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Guest{}, &models.NotFoundError{Entity: "invite", Key: inviteCode}
	}
	if err != nil {
		return models.Guest{}, fmt.Errorf("failed to read invite: %w", err)
	}
	if locked && !bypassLock {
		return models.Guest{}, &models.LockedInviteError{Code: inviteCode}
	}

	if g.IsPlusOne {
		var count int
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM guests WHERE invite_code = ? AND is_plus_one = 1`, inviteCode).
			Scan(&count)
		if err != nil {
			return models.Guest{}, fmt.Errorf("failed to count plus-ones: %w", err)
		}
		if count+1 > allowance {
			return models.Guest{}, &models.AllowanceExceededError{Code: inviteCode, Allowance: allowance, Count: count}
		}
	}

	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	g.InviteCode = inviteCode
	ts := s.now().UTC()
	g.CreatedAt = ts
	g.UpdatedAt = ts

	_, err = tx.ExecContext(ctx,
		`INSERT INTO guests (id, invite_code, name, attending, is_plus_one, dietary_requirements, is_child, child_age, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID.String(), g.InviteCode, g.Name, attendanceToNullBool(g.Attending), g.IsPlusOne,
		nullString(g.DietaryRequirements), g.IsChild, childAgeValue(g.IsChild, g.ChildAge),
		g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		return models.Guest{}, fmt.Errorf("failed to insert guest: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Guest{}, fmt.Errorf("failed to commit guest insert: %w", err)
	}
	return g, nil
}

// GetGuest returns the guest with the given id, or nil if absent.
func (s *Store) GetGuest(ctx context.Context, id uuid.UUID) (*models.Guest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, invite_code, name, attending, is_plus_one, dietary_requirements, is_child, child_age, created_at, updated_at
		 FROM guests WHERE id = ?`, id.String())

	g, err := scanGuest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read guest: %w", err)
	}
	return g, nil
}

// RemoveGuest deletes the guest. Removing an unknown id is a no-op.
func (s *Store) RemoveGuest(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM guests WHERE id = ?`, id.String()); err != nil {
		return fmt.Errorf("failed to delete guest: %w", err)
	}
	return nil
}

// UpdateGuest merges the non-nil fields into the stored guest and stamps
// updated_at. Setting is_child to false clears the stored child age.
func (s *Store) UpdateGuest(ctx context.Context, id uuid.UUID, upd models.GuestUpdate) (models.Guest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Guest{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sets := []string{"updated_at = ?"}
	args := []any{s.now().UTC()}

	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.Attending != nil {
		sets = append(sets, "attending = ?")
		args = append(args, attendanceToNullBool(*upd.Attending))
	}
	if upd.DietaryRequirements != nil {
		sets = append(sets, "dietary_requirements = ?")
		args = append(args, nullString(*upd.DietaryRequirements))
	}
	if upd.IsChild != nil {
		sets = append(sets, "is_child = ?")
		args = append(args, *upd.IsChild)
	}
	if upd.ChildAge != nil {
		sets = append(sets, "child_age = ?")
		args = append(args, *upd.ChildAge)
	}
	args = append(args, id.String())

	res, err := tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE guests SET %s WHERE id = ?", strings.Join(sets, ", ")), args...)
	if err != nil {
		return models.Guest{}, fmt.Errorf("failed to update guest: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return models.Guest{}, fmt.Errorf("failed to read update result: %w", err)
	} else if n == 0 {
		return models.Guest{}, &models.NotFoundError{Entity: "guest", Key: id.String()}
	}

	// Child age is only meaningful for children.
	if _, err := tx.ExecContext(ctx,
		`UPDATE guests SET child_age = NULL WHERE id = ? AND is_child = 0`, id.String()); err != nil {
		return models.Guest{}, fmt.Errorf("failed to clear child age: %w", err)
	}

	row := tx.QueryRowContext(ctx,
		`SELECT id, invite_code, name, attending, is_plus_one, dietary_requirements, is_child, child_age, created_at, updated_at
		 FROM guests WHERE id = ?`, id.String())
	g, err := scanGuest(row)
	if err != nil {
		return models.Guest{}, fmt.Errorf("failed to re-read guest: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Guest{}, fmt.Errorf("failed to commit guest update: %w", err)
	}
	return *g, nil
}

// PlusOneCount returns the number of plus-one guests currently stored under
// the invite.
func (s *Store) PlusOneCount(ctx context.Context, inviteCode string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM guests WHERE invite_code = ? AND is_plus_one = 1`, inviteCode).
		Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count plus-ones: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvite(row scanner) (*models.Invite, error) {
	var inv models.Invite
	var notes sql.NullString
	err := row.Scan(&inv.Code, &inv.Deadline, &inv.Locked, &inv.Language,
		&notes, &inv.PlusOneAllowance, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inv.Notes = notes.String
	return &inv, nil
}

func scanGuest(row scanner) (*models.Guest, error) {
	var g models.Guest
	var id string
	var attending sql.NullBool
	var dietary sql.NullString
	var childAge sql.NullInt64
	err := row.Scan(&id, &g.InviteCode, &g.Name, &attending, &g.IsPlusOne,
		&dietary, &g.IsChild, &childAge, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	g.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("malformed guest id %q: %w", id, err)
	}
	g.Attending = attendanceFromNullBool(attending)
	g.DietaryRequirements = dietary.String
	g.ChildAge = int(childAge.Int64)
	return &g, nil
}

func attendanceToNullBool(a models.Attendance) sql.NullBool {
	switch a {
	case models.AttendanceConfirmed:
		return sql.NullBool{Bool: true, Valid: true}
	case models.AttendanceDeclined:
		return sql.NullBool{Bool: false, Valid: true}
	}
	return sql.NullBool{}
}

func attendanceFromNullBool(b sql.NullBool) models.Attendance {
	switch {
	case !b.Valid:
		return models.AttendanceUnset
	case b.Bool:
		return models.AttendanceConfirmed
	}
	return models.AttendanceDeclined
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func childAgeValue(isChild bool, age int) sql.NullInt64 {
	if !isChild {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(age), Valid: true}
}

func isUniqueViolation(err error) bool {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Code == sqlite3.ErrConstraint
	}
	return false
}
