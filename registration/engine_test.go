package registration_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"program-events/catalog"
	"program-events/db"
	"program-events/models"
	"program-events/participants"
	"program-events/registration"
	"program-events/schedule"
	"program-events/testutil"
)

var T = time.Date(2026, 9, 15, 18, 0, 0, 0, time.UTC)

type fixture struct {
	store     *db.DB
	catalog   *catalog.Service
	schedule  *schedule.Service
	directory *participants.Directory
	engine    *registration.Engine
	clock     *testutil.Clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := testutil.OpenDB(t)
	f := &fixture{
		store:     store,
		catalog:   catalog.NewService(store),
		schedule:  schedule.NewService(store),
		directory: participants.NewDirectory(store),
		clock:     testutil.NewClock(T),
	}
	f.engine = registration.NewEngine(store, f.schedule, f.directory, registration.WithClock(f.clock.Now))
	return f
}

func (f *fixture) event(t *testing.T, e models.Event) {
	t.Helper()
	_, err := f.catalog.Create(context.Background(), testutil.Manager, e)
	require.NoError(t, err)
}

func (f *fixture) instance(t *testing.T, eventName string, sch models.Schedule) *models.EventInstance {
	t.Helper()
	in, err := f.schedule.Create(context.Background(), testutil.Manager, eventName, sch)
	require.NoError(t, err)
	return in
}

func (f *fixture) participants(t *testing.T, emails ...string) {
	t.Helper()
	for _, email := range emails {
		_, err := f.directory.Add(context.Background(), testutil.Manager, models.Participant{Email: email})
		require.NoError(t, err)
	}
}

func (f *fixture) count(t *testing.T, instanceID int64) int {
	t.Helper()
	var n int
	err := f.store.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM registration WHERE instance_id = ?`, instanceID).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestMentorNightScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.event(t, models.Event{Name: "Mentor Night", DefaultCapacity: testutil.IntPtr(2)})
	deadline := T.Add(30 * time.Minute)
	in := f.instance(t, "Mentor Night", models.Schedule{
		StartTime:            T.Add(time.Hour),
		EndTime:              T.Add(3 * time.Hour),
		RegistrationDeadline: &deadline,
	})
	f.participants(t, "a@x.com", "b@x.com")

	first, err := f.engine.SignUp(ctx, testutil.Participant("a@x.com"), in.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRegistered, first.Status)
	assert.Equal(t, "a@x.com", first.ParticipantEmail)
	assert.Equal(t, "Mentor Night", first.EventName)
	assert.True(t, first.EventStart.Equal(in.StartTime))
	assert.True(t, first.CreatedAt.Equal(T))
	assert.False(t, first.Attended)
	assert.Nil(t, first.CheckInTime)
	assert.Nil(t, first.Survey)

	f.clock.Set(T.Add(5 * time.Minute))
	again, err := f.engine.SignUp(ctx, testutil.Participant("a@x.com"), in.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, again.CreatedAt.Equal(first.CreatedAt))
	assert.Equal(t, 1, f.count(t, in.ID))

	f.clock.Set(T.Add(40 * time.Minute))
	_, err = f.engine.SignUp(ctx, testutil.Participant("b@x.com"), in.ID)
	assert.ErrorIs(t, err, models.ErrDeadlinePassed)
	_, err = f.engine.SignUp(ctx, testutil.Participant("a@x.com"), in.ID)
	assert.ErrorIs(t, err, models.ErrDeadlinePassed)
	assert.Equal(t, 1, f.count(t, in.ID))
}

func TestSignUpByManagerIsForbidden(t *testing.T) {
	f := newFixture(t)
	f.event(t, models.Event{Name: "Art Lab"})
	in := f.instance(t, "Art Lab", models.Schedule{StartTime: T.Add(time.Hour), EndTime: T.Add(2 * time.Hour)})
	f.participants(t, testutil.Manager.Email)

	_, err := f.engine.SignUp(context.Background(), testutil.Manager, in.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)
	assert.Zero(t, f.count(t, in.ID))
}

func TestSignUpNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.event(t, models.Event{Name: "Art Lab"})
	in := f.instance(t, "Art Lab", models.Schedule{StartTime: T.Add(time.Hour), EndTime: T.Add(2 * time.Hour)})
	f.participants(t, "a@x.com")

	_, err := f.engine.SignUp(ctx, testutil.Participant("a@x.com"), 4242)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.engine.SignUp(ctx, testutil.Participant("stranger@x.com"), in.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = f.engine.SignUp(ctx, models.Caller{Role: models.RoleParticipant}, in.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)
	assert.Zero(t, f.count(t, in.ID))
}

func TestSignUpIsCaseInsensitiveOnEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.event(t, models.Event{Name: "Art Lab"})
	in := f.instance(t, "Art Lab", models.Schedule{StartTime: T.Add(time.Hour), EndTime: T.Add(2 * time.Hour)})
	f.participants(t, "a@x.com")

	first, err := f.engine.SignUp(ctx, testutil.Participant("a@x.com"), in.ID)
	require.NoError(t, err)
	second, err := f.engine.SignUp(ctx, testutil.Participant(" A@X.com"), in.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.count(t, in.ID))
}

func TestCapacityFallsBackToDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.event(t, models.Event{Name: "Workshop", DefaultCapacity: testutil.IntPtr(1)})
	inherits := f.instance(t, "Workshop", models.Schedule{StartTime: T.Add(time.Hour), EndTime: T.Add(2 * time.Hour)})
	overrides := f.instance(t, "Workshop", models.Schedule{
		StartTime: T.Add(time.Hour), EndTime: T.Add(2 * time.Hour), Capacity: testutil.IntPtr(2),
	})
	f.participants(t, "a@x.com", "b@x.com")

	_, err := f.engine.SignUp(ctx, testutil.Participant("a@x.com"), inherits.ID)
	require.NoError(t, err)
	_, err = f.engine.SignUp(ctx, testutil.Participant("b@x.com"), inherits.ID)
	assert.ErrorIs(t, err, models.ErrCapacityExceeded)

	_, err = f.engine.SignUp(ctx, testutil.Participant("a@x.com"), overrides.ID)
	require.NoError(t, err)
	_, err = f.engine.SignUp(ctx, testutil.Participant("b@x.com"), overrides.ID)
	require.NoError(t, err)

	// Already registered participants still get their row back on a full instance.
	again, err := f.engine.SignUp(ctx, testutil.Participant("a@x.com"), inherits.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRegistered, again.Status)
}

func TestZeroCapacityAcceptsNobody(t *testing.T) {
	f := newFixture(t)
	f.event(t, models.Event{Name: "Closed"})
	in := f.instance(t, "Closed", models.Schedule{
		StartTime: T.Add(time.Hour), EndTime: T.Add(2 * time.Hour), Capacity: testutil.IntPtr(0),
	})
	f.participants(t, "a@x.com")

	_, err := f.engine.SignUp(context.Background(), testutil.Participant("a@x.com"), in.ID)
	assert.ErrorIs(t, err, models.ErrCapacityExceeded)
}

func TestSnapshotSurvivesInstanceEdits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.event(t, models.Event{Name: "Gala"})
	in := f.instance(t, "Gala", models.Schedule{StartTime: T.Add(time.Hour), EndTime: T.Add(4 * time.Hour)})
	f.participants(t, "a@x.com")

	reg, err := f.engine.SignUp(ctx, testutil.Participant("a@x.com"), in.ID)
	require.NoError(t, err)

	moved := T.Add(2 * time.Hour)
	_, err = f.schedule.Update(ctx, testutil.Manager, in.ID, models.SchedulePatch{StartTime: &moved})
	require.NoError(t, err)
	require.NoError(t, f.schedule.Delete(ctx, testutil.Manager, in.ID))

	got, err := f.engine.Get(ctx, testutil.Participant("a@x.com"), reg.ID)
	require.NoError(t, err)
	assert.Equal(t, "Gala", got.EventName)
	assert.True(t, got.EventStart.Equal(T.Add(time.Hour)))
}

func TestCheckIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.event(t, models.Event{Name: "Gala"})
	in := f.instance(t, "Gala", models.Schedule{StartTime: T.Add(time.Hour), EndTime: T.Add(4 * time.Hour)})
	f.participants(t, "a@x.com")

	reg, err := f.engine.SignUp(ctx, testutil.Participant("a@x.com"), in.ID)
	require.NoError(t, err)

	_, err = f.engine.CheckIn(ctx, testutil.Participant("a@x.com"), reg.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)

	f.clock.Set(T.Add(65 * time.Minute))
	checked, err := f.engine.CheckIn(ctx, testutil.Manager, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAttended, checked.Status)
	assert.True(t, checked.Attended)
	require.NotNil(t, checked.CheckInTime)
	assert.True(t, checked.CheckInTime.Equal(T.Add(65*time.Minute)))

	// Attended is terminal.
	_, err = f.engine.CheckIn(ctx, testutil.Manager, reg.ID)
	assert.ErrorIs(t, err, models.ErrConflict)
	_, err = f.engine.Cancel(ctx, testutil.Manager, reg.ID)
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = f.engine.CheckIn(ctx, testutil.Manager, 999)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCancelFreesCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.event(t, models.Event{Name: "Workshop"})
	in := f.instance(t, "Workshop", models.Schedule{
		StartTime: T.Add(time.Hour), EndTime: T.Add(2 * time.Hour), Capacity: testutil.IntPtr(1),
	})
	f.participants(t, "a@x.com", "b@x.com")

	reg, err := f.engine.SignUp(ctx, testutil.Participant("a@x.com"), in.ID)
	require.NoError(t, err)
	_, err = f.engine.SignUp(ctx, testutil.Participant("b@x.com"), in.ID)
	require.ErrorIs(t, err, models.ErrCapacityExceeded)

	_, err = f.engine.Cancel(ctx, testutil.Participant("b@x.com"), reg.ID)
	assert.ErrorIs(t, err, models.ErrForbidden)

	cancelled, err := f.engine.Cancel(ctx, testutil.Participant("a@x.com"), reg.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)

	_, err = f.engine.Cancel(ctx, testutil.Participant("a@x.com"), reg.ID)
	assert.ErrorIs(t, err, models.ErrConflict)
	_, err = f.engine.CheckIn(ctx, testutil.Manager, reg.ID)
	assert.ErrorIs(t, err, models.ErrConflict)

	_, err = f.engine.SignUp(ctx, testutil.Participant("b@x.com"), in.ID)
	require.NoError(t, err)

	// The cancelled pair keeps its single row.
	again, err := f.engine.SignUp(ctx, testutil.Participant("a@x.com"), in.ID)
	require.NoError(t, err)
	assert.Equal(t, reg.ID, again.ID)
	assert.Equal(t, models.StatusCancelled, again.Status)
	assert.Equal(t, 2, f.count(t, in.ID))
}

func TestRecordSurvey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.event(t, models.Event{Name: "Gala"})
	in := f.instance(t, "Gala", models.Schedule{StartTime: T.Add(time.Hour), EndTime: T.Add(4 * time.Hour)})
	f.participants(t, "a@x.com", "b@x.com")

	reg, err := f.engine.SignUp(ctx, testutil.Participant("a@x.com"), in.ID)
	require.NoError(t, err)

	_, err = f.engine.RecordSurvey(ctx, testutil.Participant("a@x.com"), reg.ID, models.Survey{})
	assert.ErrorIs(t, err, models.ErrInvalid)
	_, err = f.engine.RecordSurvey(ctx, testutil.Participant("a@x.com"), reg.ID, models.Survey{Satisfaction: testutil.IntPtr(6)})
	assert.ErrorIs(t, err, models.ErrInvalid)
	_, err = f.engine.RecordSurvey(ctx, testutil.Participant("b@x.com"), reg.ID, models.Survey{Satisfaction: testutil.IntPtr(5)})
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = f.engine.RecordSurvey(ctx, testutil.Manager, reg.ID, models.Survey{Satisfaction: testutil.IntPtr(5)})
	assert.ErrorIs(t, err, models.ErrForbidden)

	got, err := f.engine.RecordSurvey(ctx, testutil.Participant("a@x.com"), reg.ID, models.Survey{
		Satisfaction:   testutil.IntPtr(5),
		Usefulness:     testutil.IntPtr(4),
		Recommendation: testutil.IntPtr(3),
		Comments:       "Loved the mentors",
	})
	require.NoError(t, err)
	require.NotNil(t, got.Survey)
	require.NotNil(t, got.Survey.Overall)
	assert.InDelta(t, 4.0, *got.Survey.Overall, 1e-9)
	assert.Nil(t, got.Survey.Instructor)
	assert.Equal(t, "Loved the mentors", got.Survey.Comments)

	_, err = f.engine.RecordSurvey(ctx, testutil.Participant("a@x.com"), reg.ID, models.Survey{Satisfaction: testutil.IntPtr(1)})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestMyRegistrationsScopes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.event(t, models.Event{Name: "Club"})
	f.participants(t, "a@x.com", "b@x.com")

	var ids []int64
	for _, offset := range []time.Duration{3 * time.Hour, -2 * time.Hour, time.Hour} {
		in := f.instance(t, "Club", models.Schedule{StartTime: T.Add(offset), EndTime: T.Add(offset + time.Hour)})
		reg, err := f.engine.SignUp(ctx, testutil.Participant("a@x.com"), in.ID)
		require.NoError(t, err)
		ids = append(ids, reg.ID)
		_, err = f.engine.SignUp(ctx, testutil.Participant("b@x.com"), in.ID)
		require.NoError(t, err)
	}

	collect := func(scope models.Scope) []int64 {
		regs, err := f.engine.MyRegistrations(ctx, testutil.Participant("a@x.com"), scope, T)
		require.NoError(t, err)
		var out []int64
		for _, r := range regs {
			assert.Equal(t, "a@x.com", r.ParticipantEmail)
			out = append(out, r.ID)
		}
		return out
	}
	assert.Equal(t, []int64{ids[1], ids[2], ids[0]}, collect(models.ScopeAll))
	assert.Equal(t, []int64{ids[2], ids[0]}, collect(models.ScopeUpcoming))
	assert.Equal(t, []int64{ids[1]}, collect(models.ScopePast))
}

func TestManagerListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.event(t, models.Event{Name: "Club"})
	f.event(t, models.Event{Name: "Gala"})
	club := f.instance(t, "Club", models.Schedule{StartTime: T.Add(time.Hour), EndTime: T.Add(2 * time.Hour)})
	gala := f.instance(t, "Gala", models.Schedule{StartTime: T.Add(time.Hour), EndTime: T.Add(2 * time.Hour)})
	f.participants(t, "a@x.com", "b@x.com")

	for _, email := range []string{"a@x.com", "b@x.com"} {
		for _, in := range []*models.EventInstance{club, gala} {
			_, err := f.engine.SignUp(ctx, testutil.Participant(email), in.ID)
			require.NoError(t, err)
		}
	}

	_, err := f.engine.List(ctx, testutil.Participant("a@x.com"), "")
	assert.ErrorIs(t, err, models.ErrForbidden)

	all, err := f.engine.List(ctx, testutil.Manager, "")
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Greater(t, all[0].ID, all[3].ID)

	galas, err := f.engine.List(ctx, testutil.Manager, "GALA")
	require.NoError(t, err)
	assert.Len(t, galas, 2)

	byID, err := f.engine.List(ctx, testutil.Manager, fmt.Sprint(all[0].ID))
	require.NoError(t, err)
	assert.NotEmpty(t, byID)

	_, err = f.engine.Get(ctx, testutil.Participant("b@x.com"), all[len(all)-1].ID)
	assert.ErrorIs(t, err, models.ErrForbidden)
}

// racingStore lets a competing sign-up commit between the engine's
// duplicate pre-check and its insert transaction.
type racingStore struct {
	*db.DB
	once sync.Once
	race func(ctx context.Context) error
}

func (s *racingStore) InTx(ctx context.Context, fn func(tx db.Runner) error) error {
	var err error
	s.once.Do(func() { err = s.race(ctx) })
	if err != nil {
		return err
	}
	return s.DB.InTx(ctx, fn)
}

func (f *fixture) racingEngine(email string, in *models.EventInstance, racerID *int64) *registration.Engine {
	store := &racingStore{DB: f.store, race: func(ctx context.Context) error {
		return f.store.QueryRowContext(ctx, `
			INSERT INTO registration (participant_email, event_name, event_start, instance_id, status, attended, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			RETURNING id
		`, email, in.EventName, db.UTC(in.StartTime), in.ID, string(models.StatusRegistered), false, db.UTC(f.clock.Now())).Scan(racerID)
	}}
	return registration.NewEngine(store, f.schedule, f.directory, registration.WithClock(f.clock.Now))
}

func TestSignUpLosingInsertReturnsWinnersRow(t *testing.T) {
	f := newFixture(t)
	f.event(t, models.Event{Name: "Open House"})
	in := f.instance(t, "Open House", models.Schedule{StartTime: T.Add(time.Hour), EndTime: T.Add(2 * time.Hour)})
	f.participants(t, "a@x.com")

	var racerID int64
	engine := f.racingEngine("a@x.com", in, &racerID)

	reg, err := engine.SignUp(context.Background(), testutil.Participant("a@x.com"), in.ID)
	require.NoError(t, err)
	require.NotZero(t, racerID)
	assert.Equal(t, racerID, reg.ID)
	assert.Equal(t, models.StatusRegistered, reg.Status)
	assert.Equal(t, 1, f.count(t, in.ID))
}

func TestSignUpFullBecauseOfOwnRacingRow(t *testing.T) {
	f := newFixture(t)
	f.event(t, models.Event{Name: "Studio"})
	in := f.instance(t, "Studio", models.Schedule{
		StartTime: T.Add(time.Hour), EndTime: T.Add(2 * time.Hour), Capacity: testutil.IntPtr(1),
	})
	f.participants(t, "a@x.com")

	var racerID int64
	engine := f.racingEngine("a@x.com", in, &racerID)

	reg, err := engine.SignUp(context.Background(), testutil.Participant("a@x.com"), in.ID)
	require.NoError(t, err)
	assert.Equal(t, racerID, reg.ID)
	assert.Equal(t, 1, f.count(t, in.ID))
}

func TestSignUpLastSeatTakenByOther(t *testing.T) {
	f := newFixture(t)
	f.event(t, models.Event{Name: "Studio"})
	in := f.instance(t, "Studio", models.Schedule{
		StartTime: T.Add(time.Hour), EndTime: T.Add(2 * time.Hour), Capacity: testutil.IntPtr(1),
	})
	f.participants(t, "a@x.com", "b@x.com")

	var racerID int64
	engine := f.racingEngine("b@x.com", in, &racerID)

	_, err := engine.SignUp(context.Background(), testutil.Participant("a@x.com"), in.ID)
	assert.ErrorIs(t, err, models.ErrCapacityExceeded)
	assert.Equal(t, 1, f.count(t, in.ID))
}
