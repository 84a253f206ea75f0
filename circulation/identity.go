package circulation

import (
	"errors"
	"strings"
)

// Role distinguishes the two access levels of a session.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

const defaultAdminUser = "admin"

// ErrInvalidCredentials occurs when a login matches neither the admin
// credentials nor a registered member id.
var ErrInvalidCredentials = errors.New("invalid credentials")

// IdentityConfig carries the admin credentials. AdminUser defaults to "admin";
// an empty AdminPassword disables admin login entirely.
type IdentityConfig struct {
	AdminUser     string
	AdminPassword string
}

// Session is the result of a successful login. Member is set for member
// sessions and nil for admin sessions.
type Session struct {
	Role   Role
	Member *Member
}

// Login authenticates either the admin (username and password) or a member
// (member id, no password). Member ids match case-insensitively.
func Login(cfg IdentityConfig, repo *Repository, identifier string, password string) (Session, error) {
	identifier = strings.TrimSpace(identifier)

	adminUser := cfg.AdminUser
	if adminUser == "" {
		adminUser = defaultAdminUser
	}

	if cfg.AdminPassword != "" &&
		strings.EqualFold(identifier, adminUser) &&
		password == cfg.AdminPassword {

		return Session{Role: RoleAdmin}, nil
	}

	if member, found := repo.MemberByMemberID(identifier); found {
		return Session{Role: RoleMember, Member: &member}, nil
	}

	return Session{}, errors.Join(ErrNotFound, ErrInvalidCredentials)
}
