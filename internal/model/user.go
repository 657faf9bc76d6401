package model

// UserRole 平台角色（用户本身由 CRUD 层维护，这里只关心权限）
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)
