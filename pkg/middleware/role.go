package middleware

import (
	"fmt"

	"github.com/samber/lo"
)

// Role はユーザーのアクセス階層。
type Role string

const (
	// RoleUnassigned はロール未割り当て。ログイン直後のユーザーはこの状態になる。
	RoleUnassigned Role = ""
	// RoleMember は一般会員。
	RoleMember Role = "member"
	// RoleAdmin は管理者。
	RoleAdmin Role = "admin"
)

// String はロールの文字列表現を返す。
func (r Role) String() string {
	if r == RoleUnassigned {
		return "unassigned"
	}
	return string(r)
}

// IsValid はロールが既知の値かどうかを返す。
func (r Role) IsValid() bool {
	switch r {
	case RoleUnassigned, RoleMember, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole は保存値をRoleに変換する。未知の値はErrInvalidRoleを返す。
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsValid() {
		return RoleUnassigned, fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// Policy はルートが宣言する認可ポリシー。
type Policy int

const (
	// PolicyPublic は認証・認可を一切行わない。
	PolicyPublic Policy = iota
	// PolicyMemberOrAdmin は member または admin を許可する。
	PolicyMemberOrAdmin
	// PolicyAdminOnly は admin のみ許可する。
	PolicyAdminOnly
)

// String はポリシー名を返す。
func (p Policy) String() string {
	switch p {
	case PolicyPublic:
		return "public"
	case PolicyMemberOrAdmin:
		return "member_or_admin"
	case PolicyAdminOnly:
		return "admin_only"
	default:
		return "unknown"
	}
}

// allowedRoles はポリシーごとの許可リスト。完全一致でのみ判定する。
var allowedRoles = map[Policy][]Role{
	PolicyMemberOrAdmin: {RoleMember, RoleAdmin},
	PolicyAdminOnly:     {RoleAdmin},
}

// Permits はロールがポリシーを満たすかどうかを返す。
// PolicyPublic は常に true を返す。未知のポリシーは常に false。
func (p Policy) Permits(r Role) bool {
	if p == PolicyPublic {
		return true
	}
	return lo.Contains(allowedRoles[p], r)
}
