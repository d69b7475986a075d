package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/wrapmag/internal/directory"
	"github.com/hitoshi/wrapmag/internal/model"
)

// DirectoryLister はsearchサブコマンドが使うディレクトリ取得のインターフェース。
type DirectoryLister interface {
	List(ctx context.Context, role model.Role, f directory.Filter) []model.DirectoryCard
}

// writerNavigator は置き換え後のURLを出力する。
type writerNavigator struct {
	mu *sync.Mutex
	w  io.Writer
}

func (n writerNavigator) Replace(url string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintf(n.w, "> %s\n", url)
}

// runSearch は入力の各行を所在地の絞り込みとして扱い、デバウンス後に結果を出力する。
// 入力が終わると保留中の絞り込みを即時に反映して終了する。
func runSearch(ctx context.Context, in io.Reader, out io.Writer, role model.Role, lister DirectoryLister, delay time.Duration) error {
	if !role.IsBusiness() {
		return fmt.Errorf("unknown directory role %q", role)
	}

	var mu sync.Mutex
	nav := writerNavigator{mu: &mu, w: out}
	filter := directory.NewFilterSync("/"+string(role), delay, nav, func(f directory.Filter) {
		cards := lister.List(ctx, role, f)
		mu.Lock()
		defer mu.Unlock()
		writeCards(out, cards)
	})
	defer filter.Stop()

	// 初期表示は絞り込みなし
	mu.Lock()
	writeCards(out, lister.List(ctx, role, directory.Filter{}))
	mu.Unlock()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		filter.Set(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	filter.Flush()
	return nil
}

func writeCards(w io.Writer, cards []model.DirectoryCard) {
	if len(cards) == 0 {
		fmt.Fprintln(w, "Keine Einträge gefunden.")
		return
	}
	for _, c := range cards {
		location := strings.TrimSpace(c.PostalCode + " " + c.City)
		if location == "" {
			location = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.CompanyName, location, strings.Join(c.Services, ", "))
	}
}
