// Package schedule manages event instances: concrete, dated occurrences of a
// catalog definition with their own location, capacity and sign-up deadline.
package schedule

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"program-events/ctxlog"
	"program-events/db"
	"program-events/models"
)

type Service struct {
	store db.Store
}

func NewService(store db.Store) *Service {
	return &Service{store: store}
}

const instanceSelect = `
	SELECT i.id, i.event_name, i.start_time, i.end_time, i.location, i.capacity, i.registration_deadline,
		e.type, e.description, e.default_capacity
	FROM event_instance i
	LEFT JOIN event e ON e.name = i.event_name`

type scanner interface {
	Scan(dest ...any) error
}

func scanInstance(row scanner) (*models.EventInstance, error) {
	var (
		in                  models.EventInstance
		location, typ, desc sql.NullString
		capacity, defCap    sql.NullInt64
		deadline            sql.NullTime
	)
	err := row.Scan(&in.ID, &in.EventName, &in.StartTime, &in.EndTime, &location, &capacity, &deadline,
		&typ, &desc, &defCap)
	if err != nil {
		return nil, err
	}
	in.StartTime = in.StartTime.UTC()
	in.EndTime = in.EndTime.UTC()
	in.Location = location.String
	in.Capacity = db.IntPtr(capacity)
	in.RegistrationDeadline = db.TimePtr(deadline)
	in.EventType = typ.String
	in.EventDescription = desc.String
	in.DefaultCapacity = db.IntPtr(defCap)
	return &in, nil
}

func validateWindow(start, end time.Time, deadline *time.Time) error {
	if start.IsZero() || end.IsZero() {
		return models.Invalidf("start_time and end_time are required")
	}
	if !start.Before(end) {
		return models.Invalidf("start_time must be before end_time")
	}
	if deadline != nil && deadline.After(end) {
		return models.Invalidf("registration_deadline must not be after end_time")
	}
	return nil
}

// Create schedules a new occurrence of eventName.
func (s *Service) Create(ctx context.Context, caller models.Caller, eventName string, sch models.Schedule) (*models.EventInstance, error) {
	if err := caller.RequireManager("schedule events"); err != nil {
		return nil, err
	}
	if err := models.Validate(sch); err != nil {
		return nil, err
	}
	if err := validateWindow(sch.StartTime, sch.EndTime, sch.RegistrationDeadline); err != nil {
		return nil, err
	}

	var created *models.EventInstance
	err := s.store.InTx(ctx, func(tx db.Runner) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM event WHERE name = ?`, eventName).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return models.NotFoundf("event %q", eventName)
		}
		if err != nil {
			return db.Classify(err)
		}

		var id int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO event_instance (event_name, start_time, end_time, location, capacity, registration_deadline)
			VALUES (?, ?, ?, ?, ?, ?)
			RETURNING id
		`, eventName, db.UTC(sch.StartTime), db.UTC(sch.EndTime), db.NullString(sch.Location),
			db.NullInt(sch.Capacity), db.NullTime(sch.RegistrationDeadline)).Scan(&id)
		if err != nil {
			return db.Classify(err)
		}

		created, err = get(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	ctxlog.FromContext(ctx).Info("instance scheduled",
		"instance_id", created.ID, "event", eventName, "start", created.StartTime, "by", caller.Email)
	return created, nil
}

// Get returns the instance with id.
func (s *Service) Get(ctx context.Context, id int64) (*models.EventInstance, error) {
	return get(ctx, s.store, id)
}

func get(ctx context.Context, q db.Runner, id int64) (*models.EventInstance, error) {
	in, err := scanInstance(q.QueryRowContext(ctx, instanceSelect+` WHERE i.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("event instance %d", id)
	}
	if err != nil {
		return nil, db.Classify(err)
	}
	return in, nil
}

// Update applies patch to the instance. Nil and unset fields keep their
// value; the merged schedule must still start before it ends.
func (s *Service) Update(ctx context.Context, caller models.Caller, id int64, patch models.SchedulePatch) (*models.EventInstance, error) {
	if err := caller.RequireManager("edit scheduled events"); err != nil {
		return nil, err
	}
	if err := models.Validate(patch); err != nil {
		return nil, err
	}

	var updated *models.EventInstance
	err := s.store.InTx(ctx, func(tx db.Runner) error {
		in, err := get(ctx, tx, id)
		if err != nil {
			return err
		}
		if patch.StartTime != nil {
			in.StartTime = db.UTC(*patch.StartTime)
		}
		if patch.EndTime != nil {
			in.EndTime = db.UTC(*patch.EndTime)
		}
		if patch.Location != nil {
			in.Location = *patch.Location
		}
		in.Capacity = patch.Capacity.Apply(in.Capacity)
		in.RegistrationDeadline = patch.RegistrationDeadline.Apply(in.RegistrationDeadline)
		if err := validateWindow(in.StartTime, in.EndTime, in.RegistrationDeadline); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE event_instance
			SET start_time = ?, end_time = ?, location = ?, capacity = ?, registration_deadline = ?
			WHERE id = ?
		`, db.UTC(in.StartTime), db.UTC(in.EndTime), db.NullString(in.Location), db.NullInt(in.Capacity),
			db.NullTime(in.RegistrationDeadline), id)
		if err != nil {
			return db.Classify(err)
		}

		updated, err = get(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	ctxlog.FromContext(ctx).Info("instance updated", "instance_id", id, "by", caller.Email)
	return updated, nil
}

// Delete removes the instance. Registrations keep their copied event name
// and start time.
func (s *Service) Delete(ctx context.Context, caller models.Caller, id int64) error {
	if err := caller.RequireManager("delete scheduled events"); err != nil {
		return err
	}

	res, err := s.store.ExecContext(ctx, `DELETE FROM event_instance WHERE id = ?`, id)
	if err != nil {
		return db.Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return db.Classify(err)
	}
	if n == 0 {
		return models.NotFoundf("event instance %d", id)
	}

	ctxlog.FromContext(ctx).Info("instance deleted", "instance_id", id, "by", caller.Email)
	return nil
}

// ListUpcoming returns instances starting strictly after now, earliest first.
func (s *Service) ListUpcoming(ctx context.Context, now time.Time, filter string) ([]models.EventInstance, error) {
	return s.list(ctx, &now, filter)
}

// ListAll returns past and future instances, earliest first. Managers only.
func (s *Service) ListAll(ctx context.Context, caller models.Caller, filter string) ([]models.EventInstance, error) {
	if err := caller.RequireManager("list all scheduled events"); err != nil {
		return nil, err
	}
	return s.list(ctx, nil, filter)
}

func (s *Service) list(ctx context.Context, after *time.Time, filter string) ([]models.EventInstance, error) {
	var (
		where []string
		args  []any
	)
	if after != nil {
		where = append(where, `i.start_time > ?`)
		args = append(args, db.UTC(*after))
	}
	if filter = strings.TrimSpace(filter); filter != "" {
		like := db.LikePattern(filter)
		where = append(where, `(LOWER(i.event_name) LIKE LOWER(?) ESCAPE '\'
			OR LOWER(COALESCE(e.type, '')) LIKE LOWER(?) ESCAPE '\'
			OR LOWER(COALESCE(e.description, '')) LIKE LOWER(?) ESCAPE '\'
			OR LOWER(COALESCE(i.location, '')) LIKE LOWER(?) ESCAPE '\')`)
		args = append(args, like, like, like, like)
	}

	query := instanceSelect
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY i.start_time ASC, i.id ASC`

	rows, err := s.store.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	instances := []models.EventInstance{}
	for rows.Next() {
		in, err := scanInstance(rows)
		if err != nil {
			return nil, db.Classify(err)
		}
		instances = append(instances, *in)
	}
	return instances, db.Classify(rows.Err())
}
