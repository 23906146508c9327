package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims is the payload of the staff tokens issued by the chat adapter.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	ChatID   int64    `json:"chat_id"`
	Role     UserRole `json:"role"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Actor identifies who pressed an affordance.
type Actor struct {
	UserID   string
	ChatID   int64
	FullName string
	Role     UserRole
}

// Actor converts the claims into the service-level identity.
func (c *JWTClaims) Actor() Actor {
	if c == nil {
		return Actor{}
	}
	return Actor{UserID: c.UserID, ChatID: c.ChatID, FullName: c.FullName, Role: c.Role}
}

// DisplayName falls back to a placeholder when the adapter did not send a name.
func (a Actor) DisplayName() string {
	if a.FullName == "" {
		return "Неизвестный"
	}
	return a.FullName
}

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin UserRole = "SUPERADMIN"
	RoleAdmin      UserRole = "ADMIN"
	RoleTeacher    UserRole = "TEACHER"
)

// Privileged reports whether the role may verify new students and trigger exports.
func (r UserRole) Privileged() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// StaffRoles lists every role allowed to drive roster sessions.
var StaffRoles = []UserRole{RoleSuperAdmin, RoleAdmin, RoleTeacher}
