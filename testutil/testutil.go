// Package testutil holds shared fixtures for package tests: a throwaway
// SQLite database per test, callers, and a settable clock.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"program-events/db"
	"program-events/models"
)

// OpenDB creates a schema-initialized SQLite database in t.TempDir().
func OpenDB(t *testing.T) *db.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	dsn := fmt.Sprintf("file:%s?mode=rwc&_pragma=foreign_keys(1)&_time_format=sqlite", path)

	store, err := db.Open(context.Background(), db.SQLite, dsn)
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.InitSchema(context.Background()), "failed to init schema")
	return store
}

var (
	Manager = models.Caller{Email: "staff@ellarises.org", Role: models.RoleManager}
)

// Participant returns a participant caller for email.
func Participant(email string) models.Caller {
	return models.Caller{Email: email, Role: models.RoleParticipant}
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func IntPtr(n int) *int { return &n }

func TimePtr(t time.Time) *time.Time { return &t }

func StrPtr(s string) *string { return &s }
