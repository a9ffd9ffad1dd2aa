package perm

import "github.com/slateboards/slate/pkg/orgs"

// Permission names a single guarded operation.
type Permission string

const (
	PermBoardView        Permission = "board:view"
	PermBoardEdit        Permission = "board:edit"
	PermBoardDelete      Permission = "board:delete"
	PermBoardShare       Permission = "board:share"
	PermCardCreate       Permission = "card:create"
	PermCardEdit         Permission = "card:edit"
	PermCardDelete       Permission = "card:delete"
	PermCardMove         Permission = "card:move"
	PermAttachmentAdd    Permission = "attachment:add"
	PermAttachmentDelete Permission = "attachment:delete"
	PermMemberManage     Permission = "member:manage"
	PermSchemeManage     Permission = "scheme:manage"
)

// roleRank orders roles from weakest to strongest. A stronger role implies
// every weaker one.
var roleRank = map[orgs.Role]int{
	orgs.RoleViewer: 0,
	orgs.RoleMember: 1,
	orgs.RoleAdmin:  2,
	orgs.RoleOwner:  3,
}

// RoleAtLeast reports whether have meets or exceeds want. Unknown roles rank
// below viewer, so a corrupted role value denies rather than grants.
func RoleAtLeast(have, want orgs.Role) bool {
	haveRank, ok := roleRank[have]
	if !ok {
		return false
	}
	wantRank, ok := roleRank[want]
	if !ok {
		return false
	}
	return haveRank >= wantRank
}

// defaultGrants maps each role to the permissions it holds when no scheme
// entry says otherwise.
var defaultGrants = map[orgs.Role]map[Permission]bool{
	orgs.RoleViewer: {
		PermBoardView: true,
	},
	orgs.RoleMember: {
		PermBoardView:     true,
		PermCardCreate:    true,
		PermCardEdit:      true,
		PermCardMove:      true,
		PermAttachmentAdd: true,
	},
	orgs.RoleAdmin: {
		PermBoardView:        true,
		PermBoardEdit:        true,
		PermBoardShare:       true,
		PermCardCreate:       true,
		PermCardEdit:         true,
		PermCardDelete:       true,
		PermCardMove:         true,
		PermAttachmentAdd:    true,
		PermAttachmentDelete: true,
		PermMemberManage:     true,
		PermSchemeManage:     true,
	},
	orgs.RoleOwner: {
		PermBoardView:        true,
		PermBoardEdit:        true,
		PermBoardDelete:      true,
		PermBoardShare:       true,
		PermCardCreate:       true,
		PermCardEdit:         true,
		PermCardDelete:       true,
		PermCardMove:         true,
		PermAttachmentAdd:    true,
		PermAttachmentDelete: true,
		PermMemberManage:     true,
		PermSchemeManage:     true,
	},
}

// DefaultGrant reports whether role holds perm under the built-in defaults.
func DefaultGrant(role orgs.Role, perm Permission) bool {
	grants, ok := defaultGrants[role]
	if !ok {
		return false
	}
	return grants[perm]
}

// SchemeEntry is one explicit (role, permission) decision in a scheme.
type SchemeEntry struct {
	Role       orgs.Role  `json:"role"`
	Permission Permission `json:"permission"`
	Granted    bool       `json:"granted"`
}

// Scheme is a named set of entries that can be attached to boards.
type Scheme struct {
	ID      int64         `json:"id"`
	OrgID   string        `json:"org_id"`
	Name    string        `json:"name"`
	Entries []SchemeEntry `json:"entries"`
}

// Resolve decides perm for role under the scheme. An explicit entry wins;
// otherwise the role defaults apply.
func (s *Scheme) Resolve(role orgs.Role, perm Permission) bool {
	if s != nil {
		for _, e := range s.Entries {
			if e.Role == role && e.Permission == perm {
				return e.Granted
			}
		}
	}
	return DefaultGrant(role, perm)
}
