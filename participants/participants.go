// Package participants is the identity lookup the registration engine relies
// on. A participant's email is the account key used across the system.
package participants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"program-events/ctxlog"
	"program-events/db"
	"program-events/models"
)

type Directory struct {
	store db.Runner
}

func NewDirectory(store db.Runner) *Directory {
	return &Directory{store: store}
}

const participantColumns = `email, first_name, last_name, phone, city, total_donations`

type scanner interface {
	Scan(dest ...any) error
}

func scanParticipant(row scanner) (*models.Participant, error) {
	var (
		p                        models.Participant
		first, last, phone, city sql.NullString
	)
	if err := row.Scan(&p.Email, &first, &last, &phone, &city, &p.TotalDonations); err != nil {
		return nil, err
	}
	p.FirstName = first.String
	p.LastName = last.String
	p.Phone = phone.String
	p.City = city.String
	return &p, nil
}

// Lookup returns the participant registered under email.
func (d *Directory) Lookup(ctx context.Context, email string) (*models.Participant, error) {
	email = models.NormalizeEmail(email)
	p, err := scanParticipant(d.store.QueryRowContext(ctx,
		`SELECT `+participantColumns+` FROM participant WHERE email = ?`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("participant %q", email)
	}
	if err != nil {
		return nil, db.Classify(err)
	}
	return p, nil
}

// Add enrolls a participant. Managers only.
func (d *Directory) Add(ctx context.Context, caller models.Caller, p models.Participant) (*models.Participant, error) {
	if err := caller.RequireManager("add participants"); err != nil {
		return nil, err
	}
	p.Email = models.NormalizeEmail(p.Email)
	if err := models.Validate(p); err != nil {
		return nil, err
	}

	_, err := d.store.ExecContext(ctx,
		`INSERT INTO participant (`+participantColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		p.Email, db.NullString(p.FirstName), db.NullString(p.LastName), db.NullString(p.Phone), db.NullString(p.City), p.TotalDonations,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: participant %q already exists", models.ErrConflict, p.Email)
		}
		return nil, db.Classify(err)
	}

	ctxlog.FromContext(ctx).Info("participant added", "participant", p.Email, "by", caller.Email)
	return &p, nil
}

// List returns participants ordered by last then first name. A non-empty
// filter matches first name, last name or email, ignoring case.
func (d *Directory) List(ctx context.Context, filter string) ([]models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participant`
	var args []any
	if filter = strings.TrimSpace(filter); filter != "" {
		like := db.LikePattern(filter)
		query += ` WHERE LOWER(COALESCE(first_name, '')) LIKE LOWER(?) ESCAPE '\'
			OR LOWER(COALESCE(last_name, '')) LIKE LOWER(?) ESCAPE '\'
			OR LOWER(email) LIKE LOWER(?) ESCAPE '\'`
		args = append(args, like, like, like)
	}
	query += ` ORDER BY last_name, first_name, email`

	rows, err := d.store.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	out := []models.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, db.Classify(err)
		}
		out = append(out, *p)
	}
	return out, db.Classify(rows.Err())
}
