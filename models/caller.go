package models

import "strings"

// Role is the privilege level of a caller.
type Role string

const (
	RoleManager     Role = "manager"
	RoleParticipant Role = "participant"
)

// ParseRole accepts the role names and the legacy one-letter levels ("M", "U").
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "manager", "m":
		return RoleManager, nil
	case "participant", "user", "u":
		return RoleParticipant, nil
	}
	return "", Invalidf("unknown role %q", s)
}

// Caller identifies who is invoking an operation. It is always passed
// explicitly; nothing in the core reads identity from ambient state.
type Caller struct {
	Email string
	Role  Role
}

func (c Caller) IsManager() bool {
	return c.Role == RoleManager
}

// RequireManager returns ErrForbidden unless the caller is a manager.
func (c Caller) RequireManager(action string) error {
	if !c.IsManager() {
		return Forbiddenf("only managers can %s", action)
	}
	return nil
}

// CanAccess reports whether the caller may act on data owned by email.
func (c Caller) CanAccess(email string) bool {
	return c.IsManager() || NormalizeEmail(c.Email) == NormalizeEmail(email)
}

// NormalizeEmail is the canonical form of an identity key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
