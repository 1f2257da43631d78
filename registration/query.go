package registration

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"program-events/db"
	"program-events/models"
)

const registrationColumns = `id, participant_email, event_name, event_start, instance_id, status, attended,
	check_in_time, created_at, survey_satisfaction, survey_usefulness, survey_instructor,
	survey_recommendation, survey_overall, survey_comments, survey_submitted_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRegistration(row scanner) (*models.Registration, error) {
	var (
		r                                           models.Registration
		status                                      string
		checkIn, submitted                          sql.NullTime
		satisfaction, usefulness, instructor, recom sql.NullInt64
		overall                                     sql.NullFloat64
		comments                                    sql.NullString
	)
	err := row.Scan(&r.ID, &r.ParticipantEmail, &r.EventName, &r.EventStart, &r.InstanceID, &status, &r.Attended,
		&checkIn, &r.CreatedAt, &satisfaction, &usefulness, &instructor, &recom, &overall, &comments, &submitted)
	if err != nil {
		return nil, err
	}
	r.Status = models.RegistrationStatus(status)
	r.EventStart = r.EventStart.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.CheckInTime = db.TimePtr(checkIn)
	if submitted.Valid {
		r.Survey = &models.Survey{
			Satisfaction:   db.IntPtr(satisfaction),
			Usefulness:     db.IntPtr(usefulness),
			Instructor:     db.IntPtr(instructor),
			Recommendation: db.IntPtr(recom),
			Overall:        db.FloatPtr(overall),
			Comments:       comments.String,
			SubmittedAt:    db.TimePtr(submitted),
		}
	}
	return &r, nil
}

func (e *Engine) find(ctx context.Context, email string, instanceID int64) (*models.Registration, error) {
	r, err := scanRegistration(e.store.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registration WHERE participant_email = ? AND instance_id = ?`,
		email, instanceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("registration for %q on instance %d", email, instanceID)
	}
	if err != nil {
		return nil, db.Classify(err)
	}
	return r, nil
}

func (e *Engine) load(ctx context.Context, id int64) (*models.Registration, error) {
	r, err := scanRegistration(e.store.QueryRowContext(ctx,
		`SELECT `+registrationColumns+` FROM registration WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("registration %d", id)
	}
	if err != nil {
		return nil, db.Classify(err)
	}
	return r, nil
}

// Get returns a registration visible to the caller: their own, or any for a manager.
func (e *Engine) Get(ctx context.Context, caller models.Caller, id int64) (*models.Registration, error) {
	r, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.CanAccess(r.ParticipantEmail) {
		return nil, models.Forbiddenf("registration %d belongs to another participant", id)
	}
	return r, nil
}

// MyRegistrations lists the caller's registrations by event start. Upcoming
// and past are judged on the start time copied at sign-up.
func (e *Engine) MyRegistrations(ctx context.Context, caller models.Caller, scope models.Scope, now time.Time) ([]models.Registration, error) {
	email := models.NormalizeEmail(caller.Email)
	if email == "" {
		return nil, models.Forbiddenf("listing registrations requires an identity")
	}

	query := `SELECT ` + registrationColumns + ` FROM registration WHERE participant_email = ?`
	args := []any{email}
	switch scope {
	case models.ScopeUpcoming:
		query += ` AND event_start > ?`
		args = append(args, db.UTC(now))
	case models.ScopePast:
		query += ` AND event_start <= ?`
		args = append(args, db.UTC(now))
	}
	query += ` ORDER BY event_start ASC, id ASC`

	return e.query(ctx, query, args...)
}

// List is the manager view over all registrations and their survey
// answers, newest first. The filter matches the id, email, event name or
// survey comments, ignoring case.
func (e *Engine) List(ctx context.Context, caller models.Caller, filter string) ([]models.Registration, error) {
	if err := caller.RequireManager("list registrations"); err != nil {
		return nil, err
	}

	query := `SELECT ` + registrationColumns + ` FROM registration`
	var args []any
	if filter = strings.TrimSpace(filter); filter != "" {
		like := db.LikePattern(filter)
		query += ` WHERE CAST(id AS TEXT) LIKE LOWER(?) ESCAPE '\'
			OR LOWER(participant_email) LIKE LOWER(?) ESCAPE '\'
			OR LOWER(event_name) LIKE LOWER(?) ESCAPE '\'
			OR LOWER(COALESCE(survey_comments, '')) LIKE LOWER(?) ESCAPE '\'`
		args = append(args, like, like, like, like)
	}
	query += ` ORDER BY id DESC`

	return e.query(ctx, query, args...)
}

func (e *Engine) query(ctx context.Context, query string, args ...any) ([]models.Registration, error) {
	rows, err := e.store.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	out := []models.Registration{}
	for rows.Next() {
		r, err := scanRegistration(rows)
		if err != nil {
			return nil, db.Classify(err)
		}
		out = append(out, *r)
	}
	return out, db.Classify(rows.Err())
}
