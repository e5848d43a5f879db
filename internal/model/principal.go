package model

import "github.com/google/uuid"

const (
	RoleAdmin    = "ADMIN"
	RoleOperator = "OPERATOR"
	RoleViewer   = "VIEWER"
)

type Principal struct {
	UserID uuid.UUID
	Role   string
}

func (p Principal) CanWrite() bool {
	return p.Role == RoleAdmin || p.Role == RoleOperator
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
