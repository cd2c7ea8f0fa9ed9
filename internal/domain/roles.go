package domain

import (
	"fmt"
	"strings"
)

// Role is the capability level of a profile.
type Role string

const (
	RoleReader Role = "reader"
	RoleAdmin  Role = "admin"
)

// ParseRole validates a raw role value.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleReader:
		return RoleReader, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

// RoleOrDefault returns the role of p, or reader when p is nil.
func RoleOrDefault(p *Profile) Role {
	if p == nil || p.Role == "" {
		return RoleReader
	}
	return p.Role
}

// IsAdmin reports whether the profile grants admin access.
func (p Profile) IsAdmin() bool {
	return p.Role == RoleAdmin
}
