// Package catalog manages event definitions: the named, recurring templates
// that scheduled instances are created from.
package catalog

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

type Service struct {
	store db.Store
}

func NewService(store db.Store) *Service {
	return &Service{store: store}
}

const eventColumns = `name, type, description, recurrence_pattern, default_capacity`

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*models.Event, error) {
	var (
		e                  models.Event
		typ, desc, pattern sql.NullString
		capacity           sql.NullInt64
	)
	if err := row.Scan(&e.Name, &typ, &desc, &pattern, &capacity); err != nil {
		return nil, err
	}
	e.Type = typ.String
	e.Description = desc.String
	e.RecurrencePattern = pattern.String
	e.DefaultCapacity = db.IntPtr(capacity)
	return &e, nil
}

// Create adds a definition. A duplicate name surfaces the unique-key
// violation as ErrConflict.
func (s *Service) Create(ctx context.Context, caller models.Caller, e models.Event) (*models.Event, error) {
	if err := caller.RequireManager("add events"); err != nil {
		return nil, err
	}
	e.Name = strings.TrimSpace(e.Name)
	if err := models.Validate(e); err != nil {
		return nil, err
	}

	_, err := s.store.ExecContext(ctx,
		`INSERT INTO event (`+eventColumns+`) VALUES (?, ?, ?, ?, ?)`,
		e.Name, db.NullString(e.Type), db.NullString(e.Description), db.NullString(e.RecurrencePattern), db.NullInt(e.DefaultCapacity),
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: event %q already exists", models.ErrConflict, e.Name)
		}
		return nil, db.Classify(err)
	}

	ctxlog.FromContext(ctx).Info("event created", "event", e.Name, "by", caller.Email)
	return &e, nil
}

// Get returns the definition called name.
func (s *Service) Get(ctx context.Context, name string) (*models.Event, error) {
	return get(ctx, s.store, name)
}

func get(ctx context.Context, q db.Runner, name string) (*models.Event, error) {
	e, err := scanEvent(q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM event WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("event %q", name)
	}
	if err != nil {
		return nil, db.Classify(err)
	}
	return e, nil
}

// Update applies patch to the definition. Nil fields keep their value; a
// non-nil empty string clears the column.
func (s *Service) Update(ctx context.Context, caller models.Caller, name string, patch models.EventPatch) (*models.Event, error) {
	if err := caller.RequireManager("edit events"); err != nil {
		return nil, err
	}
	if err := models.Validate(patch); err != nil {
		return nil, err
	}

	var updated *models.Event
	err := s.store.InTx(ctx, func(tx db.Runner) error {
		e, err := get(ctx, tx, name)
		if err != nil {
			return err
		}
		if patch.Type != nil {
			e.Type = *patch.Type
		}
		if patch.Description != nil {
			e.Description = *patch.Description
		}
		if patch.RecurrencePattern != nil {
			e.RecurrencePattern = *patch.RecurrencePattern
		}
		e.DefaultCapacity = patch.DefaultCapacity.Apply(e.DefaultCapacity)

		_, err = tx.ExecContext(ctx,
			`UPDATE event
			SET type = ?, description = ?, recurrence_pattern = ?, default_capacity = ?
			WHERE name = ?`,
			db.NullString(e.Type), db.NullString(e.Description), db.NullString(e.RecurrencePattern), db.NullInt(e.DefaultCapacity), name,
		)
		if err != nil {
			return db.Classify(err)
		}
		updated = e
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctxlog.FromContext(ctx).Info("event updated", "event", name, "by", caller.Email)
	return updated, nil
}

// Delete removes a definition. Definitions that still have scheduled
// instances are kept and ErrConflict is returned.
func (s *Service) Delete(ctx context.Context, caller models.Caller, name string) error {
	if err := caller.RequireManager("delete events"); err != nil {
		return err
	}

	res, err := s.store.ExecContext(ctx, `
		DELETE FROM event
		WHERE name = ? AND NOT EXISTS (SELECT 1 FROM event_instance WHERE event_name = ?)
	`, name, name)
	if err != nil {
		return db.Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return db.Classify(err)
	}
	if n == 0 {
		if _, err := s.Get(ctx, name); err != nil {
			return err
		}
		return fmt.Errorf("%w: event %q still has scheduled instances", models.ErrConflict, name)
	}

	ctxlog.FromContext(ctx).Info("event deleted", "event", name, "by", caller.Email)
	return nil
}

// List returns definitions ordered by name. A non-empty filter keeps those
// whose name or description contains it, ignoring case.
func (s *Service) List(ctx context.Context, filter string) ([]models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM event`
	var args []any
	if filter = strings.TrimSpace(filter); filter != "" {
		like := db.LikePattern(filter)
		query += ` WHERE LOWER(name) LIKE LOWER(?) ESCAPE '\' OR LOWER(COALESCE(description, '')) LIKE LOWER(?) ESCAPE '\'`
		args = append(args, like, like)
	}
	query += ` ORDER BY name`

	rows, err := s.store.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, db.Classify(err)
		}
		events = append(events, *e)
	}
	return events, db.Classify(rows.Err())
}
