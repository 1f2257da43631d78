package registration

import (
	"context"
	"database/sql"
	"fmt"

	"program-events/ctxlog"
	"program-events/db"
	"program-events/models"
)

// CheckIn marks a registered participant as attended. Managers only.
func (e *Engine) CheckIn(ctx context.Context, caller models.Caller, id int64) (*models.Registration, error) {
	if err := caller.RequireManager("check in participants"); err != nil {
		return nil, err
	}

	// Only allow checking in if status is still 'Registered'
	res, err := e.store.ExecContext(ctx, `
		UPDATE registration
		SET status = ?, attended = ?, check_in_time = ?
		WHERE id = ? AND status = ?
	`, string(models.StatusAttended), true, db.UTC(e.now()), id, string(models.StatusRegistered))
	if err := e.transitioned(ctx, res, err, id); err != nil {
		return nil, err
	}

	ctxlog.FromContext(ctx).Info("participant checked in", "registration_id", id, "by", caller.Email)
	return e.load(ctx, id)
}

// Cancel withdraws a registration. The owner or a manager may cancel; the
// freed seat counts toward capacity again.
func (e *Engine) Cancel(ctx context.Context, caller models.Caller, id int64) (*models.Registration, error) {
	r, err := e.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if r.Status.Terminal() {
		return nil, fmt.Errorf("%w: registration %d is %s", models.ErrConflict, id, r.Status)
	}

	res, err := e.store.ExecContext(ctx,
		`UPDATE registration SET status = ? WHERE id = ? AND status = ?`,
		string(models.StatusCancelled), id, string(models.StatusRegistered))
	if err := e.transitioned(ctx, res, err, id); err != nil {
		return nil, err
	}

	ctxlog.FromContext(ctx).Info("registration cancelled", "registration_id", id, "by", caller.Email)
	return e.load(ctx, id)
}

// RecordSurvey stores the owner's post-event survey. Overall is the mean of
// the supplied scores. A survey can be submitted once.
func (e *Engine) RecordSurvey(ctx context.Context, caller models.Caller, id int64, s models.Survey) (*models.Registration, error) {
	if caller.IsManager() {
		return nil, models.Forbiddenf("surveys are answered by participants")
	}
	if err := models.Validate(s); err != nil {
		return nil, err
	}
	scores := s.Scores()
	if len(scores) == 0 {
		return nil, models.Invalidf("at least one survey score is required")
	}

	r, err := e.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if r.Status == models.StatusCancelled {
		return nil, fmt.Errorf("%w: registration %d is cancelled", models.ErrConflict, id)
	}

	sum := 0
	for _, v := range scores {
		sum += v
	}
	overall := float64(sum) / float64(len(scores))

	res, err := e.store.ExecContext(ctx, `
		UPDATE registration
		SET survey_satisfaction = ?, survey_usefulness = ?, survey_instructor = ?, survey_recommendation = ?,
			survey_overall = ?, survey_comments = ?, survey_submitted_at = ?
		WHERE id = ? AND survey_submitted_at IS NULL AND status <> ?
	`, db.NullInt(s.Satisfaction), db.NullInt(s.Usefulness), db.NullInt(s.Instructor), db.NullInt(s.Recommendation),
		overall, db.NullString(s.Comments), db.UTC(e.now()), id, string(models.StatusCancelled))
	if err != nil {
		return nil, db.Classify(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, db.Classify(err)
	} else if n == 0 {
		return nil, fmt.Errorf("%w: survey for registration %d already recorded", models.ErrConflict, id)
	}

	ctxlog.FromContext(ctx).Info("survey recorded", "registration_id", id, "overall", overall)
	return e.load(ctx, id)
}

// transitioned checks the result of a conditional status update. Zero
// affected rows means the registration is missing or no longer Registered.
func (e *Engine) transitioned(ctx context.Context, res sql.Result, err error, id int64) error {
	if err != nil {
		return db.Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return db.Classify(err)
	}
	if n > 0 {
		return nil
	}
	r, err := e.load(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: registration %d is %s", models.ErrConflict, id, r.Status)
}
