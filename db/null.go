package db

import (
	"database/sql"
	"strings"
	"time"
)

// UTC normalizes t for storage. Postgres keeps microseconds, so SQLite rows
// are truncated the same way to compare equal after a round trip.
func UTC(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// NullString stores the empty string as NULL.
func NullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func NullInt(p *int) any {
	if p == nil {
		return nil
	}
	return int64(*p)
}

func NullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func NullTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return UTC(*p)
}

func IntPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func FloatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func TimePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	v := n.Time.UTC()
	return &v
}

// LikePattern builds a substring pattern for
// `LOWER(col) LIKE LOWER(?) ESCAPE '\'`. Case folding is left to LOWER so
// both sides go through the same function.
func LikePattern(filter string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(filter) + "%"
}
