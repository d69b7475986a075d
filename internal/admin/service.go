// Package admin は管理コンソール（ユーザー一覧・ロール変更・アカウント削除）のドメインロジックを提供する。
package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/wrapmag/internal/model"
	"github.com/hitoshi/wrapmag/internal/repository"
)

// ErrSelfDemotion は管理者が自分自身のロールを変更しようとした場合のエラー。
var ErrSelfDemotion = errors.New("cannot change own role")

// Service は管理コンソールのサービス層。
// 呼び出し元がsuperadminであることの確認はゲートとハンドラーで行う。
type Service struct {
	profileRepo repository.ProfileRepository
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	profileRepo repository.ProfileRepository,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
) *Service {
	return &Service{
		profileRepo: profileRepo,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
	}
}

// ListProfiles は全ユーザーのプロフィールを作成日時の新しい順に返す。
func (s *Service) ListProfiles(ctx context.Context) ([]*model.Profile, error) {
	profiles, err := s.profileRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}

// ListTeam はsuperadminのプロフィールを返す。
func (s *Service) ListTeam(ctx context.Context) ([]*model.Profile, error) {
	team, err := s.profileRepo.ListByRole(ctx, model.RoleSuperadmin)
	if err != nil {
		return nil, fmt.Errorf("failed to list team: %w", err)
	}
	return team, nil
}

// ChangeRole は対象ユーザーのロールを変更する。
// roleは定義済みの値のみ受け付け、それ以外はmodel.ErrInvalidRoleを返す。
// 事業者ロールへの変更では新ロールの事業者プロフィール行も用意され、旧ロールのディレクトリからは外れる。
func (s *Service) ChangeRole(ctx context.Context, actorID, targetID string, role model.Role) error {
	if !role.IsKnown() {
		return model.ErrInvalidRole
	}
	if actorID == targetID {
		return ErrSelfDemotion
	}

	if err := s.profileRepo.UpdateRole(ctx, targetID, role); err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}

	slog.Info("role changed",
		slog.String("actor_id", actorID),
		slog.String("user_id", targetID),
		slog.String("role", string(role)),
	)
	return nil
}

// DeleteAccount はユーザーアカウントを削除する。
// 削除順序: sessions → user（+ CASCADE: identities, profiles, 事業者プロフィール）
func (s *Service) DeleteAccount(ctx context.Context, actorID, targetID string) error {
	if actorID == targetID {
		return ErrSelfDemotion
	}

	user, err := s.userRepo.FindByID(ctx, targetID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("user %s: %w", targetID, model.ErrNotFound)
	}

	if err := s.sessionRepo.DeleteByUserID(ctx, targetID); err != nil {
		return fmt.Errorf("failed to delete sessions: %w", err)
	}
	if err := s.userRepo.DeleteByID(ctx, targetID); err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	slog.Info("account deleted",
		slog.String("actor_id", actorID),
		slog.String("user_id", targetID),
	)
	return nil
}
