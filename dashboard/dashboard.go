// Package dashboard builds read-only views that combine several stores: a
// participant's agenda and the landing page counters.
package dashboard

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"program-events/db"
	"program-events/models"
)

// Upcoming lists instances starting after now.
type Upcoming interface {
	ListUpcoming(ctx context.Context, now time.Time, filter string) ([]models.EventInstance, error)
}

// Registrations lists a caller's own registrations.
type Registrations interface {
	MyRegistrations(ctx context.Context, caller models.Caller, scope models.Scope, now time.Time) ([]models.Registration, error)
}

// AgendaItem is an upcoming instance with the caller's registration for it, if any.
type AgendaItem struct {
	Instance     models.EventInstance `json:"instance"`
	Registration *models.Registration `json:"registration,omitempty"`
}

// Stats are the landing page totals.
type Stats struct {
	Participants   int64   `json:"participants"`
	Events         int64   `json:"events"`
	Instances      int64   `json:"instances"`
	Registrations  int64   `json:"registrations"`
	Surveys        int64   `json:"surveys"`
	DonationsTotal float64 `json:"donations_total"`
}

type Service struct {
	store         db.Runner
	upcoming      Upcoming
	registrations Registrations
}

func NewService(store db.Runner, upcoming Upcoming, registrations Registrations) *Service {
	return &Service{store: store, upcoming: upcoming, registrations: registrations}
}

// Agenda returns upcoming instances in start order, each marked with the
// caller's registration. Managers get the plain upcoming list.
func (s *Service) Agenda(ctx context.Context, caller models.Caller, now time.Time, filter string) ([]AgendaItem, error) {
	var (
		instances []models.EventInstance
		regs      []models.Registration
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		instances, err = s.upcoming.ListUpcoming(gctx, now, filter)
		return err
	})
	if !caller.IsManager() {
		g.Go(func() error {
			var err error
			regs, err = s.registrations.MyRegistrations(gctx, caller, models.ScopeAll, now)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byInstance := make(map[int64]*models.Registration, len(regs))
	for i := range regs {
		byInstance[regs[i].InstanceID] = &regs[i]
	}

	items := make([]AgendaItem, 0, len(instances))
	for _, in := range instances {
		items = append(items, AgendaItem{Instance: in, Registration: byInstance[in.ID]})
	}
	return items, nil
}

// Stats counts the main tables concurrently.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	counts := []struct {
		dest  *int64
		query string
	}{
		{&st.Participants, `SELECT COUNT(*) FROM participant`},
		{&st.Events, `SELECT COUNT(*) FROM event`},
		{&st.Instances, `SELECT COUNT(*) FROM event_instance`},
		{&st.Registrations, `SELECT COUNT(*) FROM registration`},
		{&st.Surveys, `SELECT COUNT(*) FROM registration WHERE survey_submitted_at IS NOT NULL`},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, c := range counts {
		g.Go(func() error {
			return db.Classify(s.store.QueryRowContext(gctx, c.query).Scan(c.dest))
		})
	}
	g.Go(func() error {
		return db.Classify(s.store.QueryRowContext(gctx,
			`SELECT COALESCE(SUM(total_donations), 0) FROM participant`).Scan(&st.DonationsTotal))
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &st, nil
}
