// Package cleanup は期限切れデータの日次削除ジョブを提供する。
// 期限切れセッションと、保持期間を過ぎたマガジン記事キャッシュを削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sqlx.DB を受け付ける。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// SessionPurger は期限切れセッションを削除する。
type SessionPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// CleanupJob は期限切れデータの削除ジョブ。冪等で、削除対象がなくてもエラーにならない。
type CleanupJob struct {
	db       Executor
	sessions SessionPurger
	logger   *slog.Logger
	// ArticleRetentionDays はマガジン記事キャッシュの保持日数（0以下で削除しない）。
	ArticleRetentionDays int
}

// NewCleanupJob は新しいCleanupJobを生成する。記事の保持日数のデフォルトは365日。
func NewCleanupJob(db Executor, sessions SessionPurger, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:                   db,
		sessions:             sessions,
		logger:               logger,
		ArticleRetentionDays: 365,
	}
}

// Run は期限切れセッションと古い記事キャッシュを削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	sessions, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("session cleanup failed", slog.String("error", err.Error()))
		return fmt.Errorf("session cleanup failed: %w", err)
	}

	var articles int64
	if j.ArticleRetentionDays > 0 {
		interval := fmt.Sprintf("%d days", j.ArticleRetentionDays)
		result, err := j.db.ExecContext(ctx,
			`DELETE FROM magazine_articles WHERE COALESCE(published_at, fetched_at) < now() - $1::interval`,
			interval,
		)
		if err != nil {
			j.logger.Error("article cleanup failed",
				slog.String("error", err.Error()),
				slog.Int("retention_days", j.ArticleRetentionDays),
			)
			return fmt.Errorf("article cleanup failed: %w", err)
		}
		if articles, err = result.RowsAffected(); err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
	}

	j.logger.Info("cleanup completed",
		slog.Int64("sessions_deleted", sessions),
		slog.Int64("articles_deleted", articles),
		slog.Int("retention_days", j.ArticleRetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
