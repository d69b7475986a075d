package access

import (
	"context"
	"sync"

	"github.com/hitoshi/wrapmag/internal/model"
)

// RoleKind はロール取得結果の種別。
type RoleKind int

const (
	// RoleUnresolved はロールを取得していない状態（ゼロ値）。
	RoleUnresolved RoleKind = iota
	// RoleSome はロールが取得できた。
	RoleSome
	// RoleNone はプロフィールがない、またはロールが未設定。
	RoleNone
	// RoleError はプロフィールストアへの問い合わせに失敗した。
	RoleError
)

// RoleResult はロール取得の結果。Some / None / Error のいずれか。
type RoleResult struct {
	Kind RoleKind
	Role model.Role
	// ProfileMissing はKindがRoleNoneのとき、プロフィール行自体が存在しないことを示す。
	ProfileMissing bool
	Err            error
}

// Some はロールが取得できた結果を返す。roleは未知の値の場合もある。
func Some(role model.Role) RoleResult {
	return RoleResult{Kind: RoleSome, Role: role}
}

// NoProfile はプロフィールが存在しない結果を返す。
func NoProfile() RoleResult {
	return RoleResult{Kind: RoleNone, ProfileMissing: true}
}

// NoRole はプロフィールはあるがロールが未設定の結果を返す。
func NoRole() RoleResult {
	return RoleResult{Kind: RoleNone}
}

// Failed は取得失敗の結果を返す。
func Failed(err error) RoleResult {
	return RoleResult{Kind: RoleError, Err: err}
}

// Known はロールが取得できている場合にそのロールを返す。
func (r RoleResult) Known() (model.Role, bool) {
	if r.Kind != RoleSome {
		return "", false
	}
	return r.Role, true
}

// ProfileFinder はプロフィールの取得に必要なインターフェース。
// repository.ProfileRepositoryの部分集合として定義する。
type ProfileFinder interface {
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)
}

// RoleLookup はユーザーIDからロールを取得する。
// 読み取り専用で、リクエストをまたいだキャッシュは持たない。
type RoleLookup struct {
	profiles ProfileFinder
}

// NewRoleLookup はRoleLookupを生成する。
func NewRoleLookup(profiles ProfileFinder) *RoleLookup {
	return &RoleLookup{profiles: profiles}
}

// LookupRole はユーザーのロールを取得する。
// コンテキストにWithRoleMemoのメモがある場合、同一リクエスト内の2回目以降はメモの結果を返す。
func (l *RoleLookup) LookupRole(ctx context.Context, userID string) RoleResult {
	memo := memoFromContext(ctx)
	if memo != nil {
		if res, ok := memo.get(userID); ok {
			return res
		}
	}

	res := l.lookup(ctx, userID)

	// 取得失敗は同一リクエスト内でも再試行できるようにメモしない
	if memo != nil && res.Kind != RoleError {
		memo.set(userID, res)
	}
	return res
}

func (l *RoleLookup) lookup(ctx context.Context, userID string) RoleResult {
	profile, err := l.profiles.FindByUserID(ctx, userID)
	if err != nil {
		return Failed(err)
	}
	if profile == nil {
		return NoProfile()
	}
	if profile.Role == "" {
		return NoRole()
	}
	return Some(profile.Role)
}

type memoKey struct{}

type roleMemo struct {
	mu      sync.Mutex
	results map[string]RoleResult
}

func (m *roleMemo) get(userID string) (RoleResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.results[userID]
	return res, ok
}

func (m *roleMemo) set(userID string, res RoleResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[userID] = res
}

// WithRoleMemo はリクエスト単位のロールメモを持つコンテキストを返す。
// 既にメモがある場合はそのまま返す。
func WithRoleMemo(ctx context.Context) context.Context {
	if memoFromContext(ctx) != nil {
		return ctx
	}
	return context.WithValue(ctx, memoKey{}, &roleMemo{results: make(map[string]RoleResult)})
}

func memoFromContext(ctx context.Context) *roleMemo {
	m, _ := ctx.Value(memoKey{}).(*roleMemo)
	return m
}
