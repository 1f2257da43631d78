// Package registration is the sign-up engine: it links participants to event
// instances, keeps at most one registration per (participant, instance) pair,
// enforces deadlines and capacity, and records attendance and surveys.
//
// Registration IDs come from the store's sequence, and the pair uniqueness is
// a table constraint. A unique violation on insert is treated as the
// authoritative duplicate signal and resolved to the existing row.
package registration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"program-events/ctxlog"
	"program-events/db"
	"program-events/models"
)

// Instances resolves scheduled event instances.
type Instances interface {
	Get(ctx context.Context, id int64) (*models.EventInstance, error)
}

// Participants resolves a participant identity.
type Participants interface {
	Lookup(ctx context.Context, email string) (*models.Participant, error)
}

type Engine struct {
	store        db.Store
	instances    Instances
	participants Participants
	now          func() time.Time
}

type Option func(*Engine)

// WithClock replaces time.Now as the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store db.Store, instances Instances, participants Participants, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		instances:    instances,
		participants: participants,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var (
	errDuplicate = errors.New("registration already exists")
	errFull      = errors.New("no seats left")
)

// SignUp registers the calling participant for an instance. Repeating the
// call returns the existing registration instead of failing.
func (e *Engine) SignUp(ctx context.Context, caller models.Caller, instanceID int64) (*models.Registration, error) {
	if caller.IsManager() {
		return nil, models.Forbiddenf("sign-up is a participant action")
	}
	email := models.NormalizeEmail(caller.Email)
	if email == "" {
		return nil, models.Forbiddenf("sign-up requires a participant identity")
	}
	log := ctxlog.FromContext(ctx).With("participant", email, "instance_id", instanceID)

	in, err := e.instances.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if _, err := e.participants.Lookup(ctx, email); err != nil {
		return nil, err
	}

	now := db.UTC(e.now())
	if in.DeadlinePassed(now) {
		return nil, fmt.Errorf("%w: sign-up closed at %s", models.ErrDeadlinePassed, in.RegistrationDeadline.Format(time.RFC3339))
	}

	existing, err := e.find(ctx, email, instanceID)
	if err == nil {
		log.Debug("registration already exists", "registration_id", existing.ID)
		return existing, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	reg, err := e.insert(ctx, email, instanceID, now)
	switch {
	case err == nil:
		log.Info("participant registered", "registration_id", reg.ID, "event", reg.EventName)
		return reg, nil
	case errors.Is(err, errDuplicate), errors.Is(err, errFull):
		// A concurrent sign-up for the same pair may have won the insert or
		// taken the last seat; either way its row is the answer.
		existing, ferr := e.find(ctx, email, instanceID)
		if ferr == nil {
			log.Debug("concurrent sign-up resolved to existing registration", "registration_id", existing.ID)
			return existing, nil
		}
		if !errors.Is(ferr, models.ErrNotFound) {
			return nil, ferr
		}
		if errors.Is(err, errFull) {
			log.Info("sign-up rejected, instance full")
			return nil, fmt.Errorf("%w: instance %d", models.ErrCapacityExceeded, instanceID)
		}
		return nil, fmt.Errorf("%w: %v", models.ErrConflict, err)
	default:
		log.Error("sign-up failed", "error", err)
		return nil, err
	}
}

// insert runs the capacity check and the insert in one transaction. Bumping
// the instance version first takes the row lock (the write lock on SQLite),
// so concurrent sign-ups for one instance count seats one at a time.
func (e *Engine) insert(ctx context.Context, email string, instanceID int64, now time.Time) (*models.Registration, error) {
	var reg *models.Registration
	err := e.store.InTx(ctx, func(tx db.Runner) error {
		res, err := tx.ExecContext(ctx, `UPDATE event_instance SET version = version + 1 WHERE id = ?`, instanceID)
		if err != nil {
			return db.Classify(err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return db.Classify(err)
		} else if n == 0 {
			return models.NotFoundf("event instance %d", instanceID)
		}

		var (
			in                    = models.EventInstance{ID: instanceID}
			capacity, defaultSeat sql.NullInt64
		)
		err = tx.QueryRowContext(ctx, `
			SELECT i.event_name, i.start_time, i.capacity, e.default_capacity
			FROM event_instance i
			LEFT JOIN event e ON e.name = i.event_name
			WHERE i.id = ?
		`, instanceID).Scan(&in.EventName, &in.StartTime, &capacity, &defaultSeat)
		if err != nil {
			return db.Classify(err)
		}
		in.Capacity, in.DefaultCapacity = db.IntPtr(capacity), db.IntPtr(defaultSeat)

		if limit, ok := in.EffectiveCapacity(); ok {
			var taken int64
			err = tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM registration WHERE instance_id = ? AND status <> ?`,
				instanceID, string(models.StatusCancelled)).Scan(&taken)
			if err != nil {
				return db.Classify(err)
			}
			if taken >= int64(limit) {
				return errFull
			}
		}

		// Name and start are copied so the registration keeps what the
		// participant signed up for after the instance is edited or deleted.
		eventName, start := in.EventName, in.StartTime.UTC()
		var id int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO registration (participant_email, event_name, event_start, instance_id, status, attended, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			RETURNING id
		`, email, eventName, start, instanceID, string(models.StatusRegistered), false, now).Scan(&id)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return errDuplicate
			}
			return db.Classify(err)
		}

		reg = &models.Registration{
			ID:               id,
			ParticipantEmail: email,
			EventName:        eventName,
			EventStart:       start,
			InstanceID:       instanceID,
			Status:           models.StatusRegistered,
			CreatedAt:        now,
		}
		return nil
	})
	return reg, err
}
