package models

import "time"

// Event is a recurring event definition. Name is the natural key.
type Event struct {
	Name              string `json:"name" validate:"required,max=200"`
	Type              string `json:"type,omitempty"`
	Description       string `json:"description,omitempty"`
	RecurrencePattern string `json:"recurrence_pattern,omitempty"`
	DefaultCapacity   *int   `json:"default_capacity,omitempty" validate:"omitempty,min=0"`
}

// EventPatch carries the fields of an event update. Nil fields are left
// unchanged. DefaultCapacity can be cleared with an explicit null.
type EventPatch struct {
	Type              *string       `json:"type"`
	Description       *string       `json:"description"`
	RecurrencePattern *string       `json:"recurrence_pattern"`
	DefaultCapacity   Nullable[int] `json:"default_capacity" validate:"omitempty,min=0"`
}

// EventInstance is one scheduled occurrence of an Event.
type EventInstance struct {
	ID                   int64      `json:"id"`
	EventName            string     `json:"event_name"`
	StartTime            time.Time  `json:"start_time"`
	EndTime              time.Time  `json:"end_time"`
	Location             string     `json:"location,omitempty"`
	Capacity             *int       `json:"capacity,omitempty"`
	RegistrationDeadline *time.Time `json:"registration_deadline,omitempty"`

	// Joined from the owning definition when listing.
	EventType        string `json:"event_type,omitempty"`
	EventDescription string `json:"event_description,omitempty"`
	DefaultCapacity  *int   `json:"default_capacity,omitempty"`
}

// EffectiveCapacity returns the seat limit for the instance, falling back to
// the definition's default. ok is false when the instance is unlimited.
func (i *EventInstance) EffectiveCapacity() (limit int, ok bool) {
	if i.Capacity != nil {
		return *i.Capacity, true
	}
	if i.DefaultCapacity != nil {
		return *i.DefaultCapacity, true
	}
	return 0, false
}

// DeadlinePassed reports whether sign-up has closed at now.
func (i *EventInstance) DeadlinePassed(now time.Time) bool {
	return i.RegistrationDeadline != nil && now.After(*i.RegistrationDeadline)
}

// Schedule is the input for creating an instance.
type Schedule struct {
	StartTime            time.Time  `json:"start_time" validate:"required"`
	EndTime              time.Time  `json:"end_time" validate:"required"`
	Location             string     `json:"location"`
	Capacity             *int       `json:"capacity" validate:"omitempty,min=0"`
	RegistrationDeadline *time.Time `json:"registration_deadline"`
}

// SchedulePatch carries the fields of an instance update. Nil and unset
// fields are left unchanged. An explicit null clears Capacity (back to the
// event default) or RegistrationDeadline.
type SchedulePatch struct {
	StartTime            *time.Time          `json:"start_time"`
	EndTime              *time.Time          `json:"end_time"`
	Location             *string             `json:"location"`
	Capacity             Nullable[int]       `json:"capacity" validate:"omitempty,min=0"`
	RegistrationDeadline Nullable[time.Time] `json:"registration_deadline"`
}

// Participant is an enrolled person. Email doubles as the account identity.
type Participant struct {
	Email          string  `json:"email" validate:"required,email"`
	FirstName      string  `json:"first_name"`
	LastName       string  `json:"last_name"`
	Phone          string  `json:"phone,omitempty"`
	City           string  `json:"city,omitempty"`
	TotalDonations float64 `json:"total_donations"`
}

// RegistrationStatus is the state of a participant's registration.
type RegistrationStatus string

const (
	StatusRegistered RegistrationStatus = "Registered"
	StatusAttended   RegistrationStatus = "Attended"
	StatusCancelled  RegistrationStatus = "Cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s RegistrationStatus) Terminal() bool {
	return s == StatusAttended || s == StatusCancelled
}

// Registration represents a participant's sign-up for an event instance.
// EventName and EventStart are copied from the instance at sign-up time.
type Registration struct {
	ID               int64              `json:"id"`
	ParticipantEmail string             `json:"participant_email"`
	EventName        string             `json:"event_name"`
	EventStart       time.Time          `json:"event_start"`
	InstanceID       int64              `json:"instance_id"`
	Status           RegistrationStatus `json:"status"`
	Attended         bool               `json:"attended"`
	CheckInTime      *time.Time         `json:"check_in_time,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	Survey           *Survey            `json:"survey,omitempty"`
}

// Survey holds the post-event survey scores filled in after attendance.
type Survey struct {
	Satisfaction   *int       `json:"satisfaction,omitempty" validate:"omitempty,min=1,max=5"`
	Usefulness     *int       `json:"usefulness,omitempty" validate:"omitempty,min=1,max=5"`
	Instructor     *int       `json:"instructor,omitempty" validate:"omitempty,min=1,max=5"`
	Recommendation *int       `json:"recommendation,omitempty" validate:"omitempty,min=1,max=5"`
	Overall        *float64   `json:"overall,omitempty"`
	Comments       string     `json:"comments,omitempty" validate:"max=2000"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
}

// Scores returns the supplied scores in a fixed order.
func (s *Survey) Scores() []int {
	var out []int
	for _, p := range []*int{s.Satisfaction, s.Usefulness, s.Instructor, s.Recommendation} {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}

// Scope bounds a participant's registration listing by event start.
type Scope string

const (
	ScopeAll      Scope = "all"
	ScopeUpcoming Scope = "upcoming"
	ScopePast     Scope = "past"
)

// ParseScope parses a scope string; the empty string means ScopeAll.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "", ScopeAll:
		return ScopeAll, nil
	case ScopeUpcoming, ScopePast:
		return Scope(s), nil
	}
	return "", Invalidf("unknown scope %q", s)
}
