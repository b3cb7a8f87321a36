package rbac

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/clubspace/clubspace/internal/platform/httpx"
)

// Role is the coarse account role stored on the profile.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleClubLeader Role = "club_leader"
	RoleMember     Role = "member"
)

// Roles lists every role in ascending privilege.
func Roles() []Role {
	return []Role{RoleMember, RoleClubLeader, RoleAdmin}
}

// ParseRole normalises and validates a role name.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch role {
	case RoleAdmin, RoleClubLeader, RoleMember:
		return role, true
	}
	return "", false
}

func (r Role) String() string { return string(r) }

// Errors returned by grant and revoke. Each wraps an httpx sentinel so the
// HTTP edge maps them without knowing about rbac.
var (
	ErrAlreadyGranted    = fmt.Errorf("%w: permission already granted", httpx.ErrDuplicate)
	ErrUnknownPermission = fmt.Errorf("%w: unknown permission", httpx.ErrValidation)
	ErrGrantNotFound     = fmt.Errorf("grant %w", httpx.ErrNotFound)
	ErrNotFound          = httpx.ErrNotFound
)

// Permission is an atomic capability from the catalog.
type Permission struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserPermission is an individual grant of a permission to a user.
type UserPermission struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	PermissionID string     `json:"permission_id"`
	Permission   string     `json:"permission"`
	GrantedBy    string     `json:"granted_by"`
	GrantedAt    time.Time  `json:"granted_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	ClubID       string     `json:"club_id,omitempty"`
	Active       bool       `json:"active"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
}

// Expired reports whether the grant has passed its expiry at now.
func (g UserPermission) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !now.Before(*g.ExpiresAt)
}

// RolePermission maps a role to a permission in the role floor.
type RolePermission struct {
	Role       Role   `json:"role"`
	Permission string `json:"permission"`
}

// ScopeKind discriminates Scope.
type ScopeKind int

const (
	ScopeGlobal ScopeKind = iota
	ScopeClub
)

// Scope is the context a permission is checked in.
type Scope struct {
	Kind   ScopeKind
	ClubID string
}

// GlobalScope matches the role floor and grants without a club context.
func GlobalScope() Scope { return Scope{Kind: ScopeGlobal} }

// ClubScope matches grants without a club context or bound to clubID.
func ClubScope(clubID string) Scope { return Scope{Kind: ScopeClub, ClubID: clubID} }

func (s Scope) String() string {
	if s.Kind == ScopeClub {
		return "club:" + s.ClubID
	}
	return "global"
}

// Principal describes the authenticated actor.
type Principal interface {
	GetID() string
	GetRole() Role
}

// Subject is a minimal Principal for callers that only know id and role.
type Subject struct {
	ID   string
	Role Role
}

func (s Subject) GetID() string { return s.ID }
func (s Subject) GetRole() Role { return s.Role }

type grantScope struct {
	clubID    string
	expiresAt *time.Time
}

// PermissionSet is the effective permission set of one user: the role floor
// plus active individual grants.
type PermissionSet struct {
	Role   Role
	floor  map[string]struct{}
	grants map[string][]grantScope
}

// NewPermissionSet merges role-derived names with individual grants.
func NewPermissionSet(role Role, floor []string, grants []UserPermission) PermissionSet {
	set := PermissionSet{
		Role:   role,
		floor:  make(map[string]struct{}, len(floor)),
		grants: make(map[string][]grantScope, len(grants)),
	}
	for _, name := range floor {
		set.floor[normalize(name)] = struct{}{}
	}
	for _, g := range grants {
		if !g.Active {
			continue
		}
		name := normalize(g.Permission)
		set.grants[name] = append(set.grants[name], grantScope{clubID: g.ClubID, expiresAt: g.ExpiresAt})
	}
	return set
}

// Allows evaluates name in scope at now. Admin is always allowed.
func (s PermissionSet) Allows(name string, scope Scope, now time.Time) bool {
	if s.Role == RoleAdmin {
		return true
	}
	name = normalize(name)
	if _, ok := s.floor[name]; ok {
		return true
	}
	for _, g := range s.grants[name] {
		if g.expiresAt != nil && !now.Before(*g.expiresAt) {
			continue
		}
		if g.clubID != "" && (scope.Kind != ScopeClub || g.clubID != scope.ClubID) {
			continue
		}
		return true
	}
	return false
}

// Names lists the permission names effective at now, sorted. Club-bound
// grants are included once.
func (s PermissionSet) Names(now time.Time) []string {
	seen := make(map[string]struct{}, len(s.floor)+len(s.grants))
	for name := range s.floor {
		seen[name] = struct{}{}
	}
	for name, scopes := range s.grants {
		for _, g := range scopes {
			if g.expiresAt == nil || now.Before(*g.expiresAt) {
				seen[name] = struct{}{}
				break
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func normalize(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
