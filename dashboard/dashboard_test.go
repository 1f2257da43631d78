package dashboard_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"program-events/catalog"
	"program-events/dashboard"
	"program-events/models"
	"program-events/participants"
	"program-events/registration"
	"program-events/schedule"
	"program-events/testutil"
)

var T = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*dashboard.Service, *registration.Engine, []*models.EventInstance) {
	t.Helper()
	ctx := context.Background()
	store := testutil.OpenDB(t)

	events := catalog.NewService(store)
	sched := schedule.NewService(store)
	dir := participants.NewDirectory(store)
	clock := testutil.NewClock(T)
	engine := registration.NewEngine(store, sched, dir, registration.WithClock(clock.Now))

	_, err := events.Create(ctx, testutil.Manager, models.Event{Name: "Coding Club"})
	require.NoError(t, err)
	_, err = events.Create(ctx, testutil.Manager, models.Event{Name: "Dance"})
	require.NoError(t, err)

	var instances []*models.EventInstance
	for _, offset := range []time.Duration{-time.Hour, 2 * time.Hour, time.Hour} {
		in, err := sched.Create(ctx, testutil.Manager, "Coding Club", models.Schedule{
			StartTime: T.Add(offset), EndTime: T.Add(offset + time.Hour),
		})
		require.NoError(t, err)
		instances = append(instances, in)
	}

	_, err = dir.Add(ctx, testutil.Manager, models.Participant{Email: "a@x.com", TotalDonations: 25.5})
	require.NoError(t, err)
	_, err = dir.Add(ctx, testutil.Manager, models.Participant{Email: "b@x.com", TotalDonations: 10})
	require.NoError(t, err)

	return dashboard.NewService(store, sched, engine), engine, instances
}

func TestAgendaMarksOwnRegistrations(t *testing.T) {
	svc, engine, instances := setup(t)
	ctx := context.Background()

	mine, err := engine.SignUp(ctx, testutil.Participant("a@x.com"), instances[2].ID)
	require.NoError(t, err)
	_, err = engine.SignUp(ctx, testutil.Participant("b@x.com"), instances[1].ID)
	require.NoError(t, err)
	_, err = engine.SignUp(ctx, testutil.Participant("a@x.com"), instances[0].ID)
	require.NoError(t, err)

	items, err := svc.Agenda(ctx, testutil.Participant("a@x.com"), T, "")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, instances[2].ID, items[0].Instance.ID)
	require.NotNil(t, items[0].Registration)
	assert.Equal(t, mine.ID, items[0].Registration.ID)

	assert.Equal(t, instances[1].ID, items[1].Instance.ID)
	assert.Nil(t, items[1].Registration)
}

func TestAgendaForManager(t *testing.T) {
	svc, _, instances := setup(t)

	items, err := svc.Agenda(context.Background(), testutil.Manager, T, "coding")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, instances[2].ID, items[0].Instance.ID)
	for _, it := range items {
		assert.Nil(t, it.Registration)
	}
}

func TestStats(t *testing.T) {
	svc, engine, instances := setup(t)
	ctx := context.Background()

	reg, err := engine.SignUp(ctx, testutil.Participant("a@x.com"), instances[1].ID)
	require.NoError(t, err)
	_, err = engine.SignUp(ctx, testutil.Participant("b@x.com"), instances[1].ID)
	require.NoError(t, err)
	_, err = engine.RecordSurvey(ctx, testutil.Participant("a@x.com"), reg.ID, models.Survey{Satisfaction: testutil.IntPtr(4)})
	require.NoError(t, err)

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, dashboard.Stats{
		Participants:   2,
		Events:         2,
		Instances:      3,
		Registrations:  2,
		Surveys:        1,
		DonationsTotal: 35.5,
	}, *st)
}

func TestStatsEmpty(t *testing.T) {
	store := testutil.OpenDB(t)
	svc := dashboard.NewService(store, schedule.NewService(store), nil)

	st, err := svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, *st)
}
