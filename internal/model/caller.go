package model

import (
	"strings"

	"github.com/google/uuid"
)

const RoleAdmin = "admin"

// Caller is the authenticated identity behind a request. A zero UserID means
// the request carried no identity.
type Caller struct {
	UserID uuid.UUID
	Role   string
}

func (c Caller) Authenticated() bool {
	return c.UserID != uuid.Nil
}

// IsAdmin accepts the plain admin role and department roles such as admin_voirie.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin || strings.HasPrefix(c.Role, RoleAdmin+"_")
}
