// Package worker はバックグラウンドジョブ（マガジン同期、クリーンアップ）の定期実行を提供する。
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// maxBackoff は失敗が続いた場合の最大待ち時間。
const maxBackoff = 6 * time.Hour

// Job は定期実行するジョブ。
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler はジョブごとにゴルーチンを起動し、間隔に従って実行する。
// 失敗が続いたジョブは指数バックオフで間隔を延ばし、成功すると元に戻す。
type Scheduler struct {
	jobs   []Job
	logger *slog.Logger
}

// NewScheduler はSchedulerを生成する。間隔が0以下のジョブは登録しない。
func NewScheduler(logger *slog.Logger, jobs ...Job) *Scheduler {
	s := &Scheduler{logger: logger}
	for _, j := range jobs {
		if j.Interval <= 0 || j.Run == nil {
			logger.Warn("job disabled", slog.String("job", j.Name))
			continue
		}
		s.jobs = append(s.jobs, j)
	}
	return s
}

// Start は全ジョブを起動し、コンテキストがキャンセルされるまでブロックする。
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, j := range s.jobs {
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			s.loop(ctx, j)
		}(j)
	}
	wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	s.logger.Info("job started",
		slog.String("job", j.Name),
		slog.Duration("interval", j.Interval),
	)

	failures := 0
	for {
		// 起動直後に1回実行する
		if s.runOnce(ctx, j) {
			failures = 0
		} else {
			failures++
		}

		timer := time.NewTimer(NextDelay(j.Interval, failures))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// runOnce はジョブを1回実行し、成功したかを返す。パニックはログに記録して失敗扱いにする。
func (s *Scheduler) runOnce(ctx context.Context, j Job) (ok bool) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("job panicked",
				slog.String("job", j.Name),
				slog.Any("panic", rec),
			)
			ok = false
		}
	}()

	if err := j.Run(ctx); err != nil {
		s.logger.Error("job failed",
			slog.String("job", j.Name),
			slog.String("error", err.Error()),
			slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
		)
		return false
	}
	return true
}

// NextDelay は連続失敗回数に応じた次回実行までの待ち時間を返す。
// 成功時は間隔そのまま、失敗ごとに2倍、最大maxBackoff（間隔がそれより長い場合は間隔）。
func NextDelay(interval time.Duration, failures int) time.Duration {
	limit := maxBackoff
	if interval > limit {
		limit = interval
	}
	delay := interval
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay >= limit {
			return limit
		}
	}
	return delay
}
