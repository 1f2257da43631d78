package db

import (
	"context"
	"fmt"
)

// Registration has no foreign key to event_instance: deleting an instance
// must leave the registrations that copied its name and start time intact.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS event (
	name TEXT PRIMARY KEY,
	type TEXT,
	description TEXT,
	recurrence_pattern TEXT,
	default_capacity INTEGER CHECK (default_capacity IS NULL OR default_capacity >= 0)
);

CREATE TABLE IF NOT EXISTS event_instance (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_name TEXT NOT NULL REFERENCES event(name),
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	location TEXT,
	capacity INTEGER CHECK (capacity IS NULL OR capacity >= 0),
	registration_deadline DATETIME,
	version INTEGER NOT NULL DEFAULT 0,
	CHECK (start_time < end_time)
);

CREATE INDEX IF NOT EXISTS event_instance_start_idx ON event_instance (start_time);
CREATE INDEX IF NOT EXISTS event_instance_event_idx ON event_instance (event_name);

CREATE TABLE IF NOT EXISTS participant (
	email TEXT PRIMARY KEY,
	first_name TEXT,
	last_name TEXT,
	phone TEXT,
	city TEXT,
	total_donations REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS registration (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	participant_email TEXT NOT NULL,
	event_name TEXT NOT NULL,
	event_start DATETIME NOT NULL,
	instance_id INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'Registered' CHECK (status IN ('Registered', 'Attended', 'Cancelled')),
	attended BOOLEAN NOT NULL DEFAULT 0,
	check_in_time DATETIME,
	created_at DATETIME NOT NULL,
	survey_satisfaction INTEGER,
	survey_usefulness INTEGER,
	survey_instructor INTEGER,
	survey_recommendation INTEGER,
	survey_overall REAL,
	survey_comments TEXT,
	survey_submitted_at DATETIME,
	UNIQUE (participant_email, instance_id)
);

CREATE INDEX IF NOT EXISTS registration_instance_idx ON registration (instance_id, status);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS event (
	name TEXT PRIMARY KEY,
	type TEXT,
	description TEXT,
	recurrence_pattern TEXT,
	default_capacity INTEGER CHECK (default_capacity IS NULL OR default_capacity >= 0)
);

CREATE TABLE IF NOT EXISTS event_instance (
	id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
	event_name TEXT NOT NULL REFERENCES event(name),
	start_time TIMESTAMPTZ NOT NULL,
	end_time TIMESTAMPTZ NOT NULL,
	location TEXT,
	capacity INTEGER CHECK (capacity IS NULL OR capacity >= 0),
	registration_deadline TIMESTAMPTZ,
	version BIGINT NOT NULL DEFAULT 0,
	CHECK (start_time < end_time)
);

CREATE INDEX IF NOT EXISTS event_instance_start_idx ON event_instance (start_time);
CREATE INDEX IF NOT EXISTS event_instance_event_idx ON event_instance (event_name);

CREATE TABLE IF NOT EXISTS participant (
	email TEXT PRIMARY KEY,
	first_name TEXT,
	last_name TEXT,
	phone TEXT,
	city TEXT,
	total_donations DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS registration (
	id BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
	participant_email TEXT NOT NULL,
	event_name TEXT NOT NULL,
	event_start TIMESTAMPTZ NOT NULL,
	instance_id BIGINT NOT NULL,
	status TEXT NOT NULL DEFAULT 'Registered' CHECK (status IN ('Registered', 'Attended', 'Cancelled')),
	attended BOOLEAN NOT NULL DEFAULT FALSE,
	check_in_time TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	survey_satisfaction INTEGER,
	survey_usefulness INTEGER,
	survey_instructor INTEGER,
	survey_recommendation INTEGER,
	survey_overall DOUBLE PRECISION,
	survey_comments TEXT,
	survey_submitted_at TIMESTAMPTZ,
	UNIQUE (participant_email, instance_id)
);

CREATE INDEX IF NOT EXISTS registration_instance_idx ON registration (instance_id, status);
`

// InitSchema sets up the required tables
func (db *DB) InitSchema(ctx context.Context) error {
	schema := sqliteSchema
	if db.dialect == Postgres {
		schema = postgresSchema
	}
	if _, err := db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("could not create schema: %w", err)
	}
	return nil
}
