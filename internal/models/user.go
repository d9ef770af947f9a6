package models

import "fmt"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTutor   UserRole = "TUTOR"
	RoleStudent UserRole = "STUDENT"
	// RoleSystem is used for transitions driven by internal jobs.
	RoleSystem UserRole = "SYSTEM"
)

// ParseUserRole validates a role coming from a token or payload.
func ParseUserRole(raw string) (UserRole, error) {
	switch role := UserRole(raw); role {
	case RoleAdmin, RoleTutor, RoleStudent, RoleSystem:
		return role, nil
	}
	return "", fmt.Errorf("unknown user role %q", raw)
}

// Actor identifies who performs an operation on the scheduling core.
type Actor struct {
	UserID string
	Role   UserRole
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
