package directory

import (
	"sync"
	"time"
)

// DefaultDebounce は絞り込み入力の待ち時間。
const DefaultDebounce = 300 * time.Millisecond

// Navigator はページ遷移せずにURLを置き換える（ブラウザのhistory.replaceStateに相当）。
type Navigator interface {
	Replace(url string)
}

// FilterSync は絞り込み入力をデバウンスしてURLと再取得に反映する。
// 待ち時間内の連続した入力は最後の値にまとめられ、置き換えと再取得はそれぞれ1回だけ行われる。
type FilterSync struct {
	basePath string
	delay    time.Duration
	nav      Navigator
	refetch  func(f Filter)

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	pending Filter
	stopped bool
}

// NewFilterSync はFilterSyncを生成する。refetchは置き換え後に新しい条件で呼ばれる。
func NewFilterSync(basePath string, delay time.Duration, nav Navigator, refetch func(f Filter)) *FilterSync {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &FilterSync{
		basePath: basePath,
		delay:    delay,
		nav:      nav,
		refetch:  refetch,
	}
}

// Set は入力値を受け取り、待ち時間をリセットする。
func (s *FilterSync) Set(location string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	s.pending = ParseFilter(map[string][]string{"location": {location}})
	s.gen++
	gen := s.gen
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, func() { s.fire(gen) })
}

// Stop は保留中の反映を破棄し、以降の入力を無視する。
func (s *FilterSync) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
}

// Flush は待ち時間を待たずに保留中の入力を反映する。保留がなければ何もしない。
func (s *FilterSync) Flush() {
	s.mu.Lock()
	if s.stopped || s.timer == nil || !s.timer.Stop() {
		s.mu.Unlock()
		return
	}
	gen := s.gen
	s.mu.Unlock()

	s.fire(gen)
}

// fire は待ち時間経過後に呼ばれる。より新しい入力があった場合は何もしない。
func (s *FilterSync) fire(gen uint64) {
	s.mu.Lock()
	if s.stopped || gen != s.gen {
		s.mu.Unlock()
		return
	}
	f := s.pending
	s.mu.Unlock()

	s.nav.Replace(FilterURL(s.basePath, f))
	if s.refetch != nil {
		s.refetch(f)
	}
}
