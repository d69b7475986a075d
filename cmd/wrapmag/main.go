// Command wrapmag はFahrzeugfolierung向け事業者ディレクトリとマガジンのWebサーバー。
//
// サブコマンド: serve（デフォルト）, worker, migrate, healthcheck, search
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/wrapmag/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "wrapmag: %v\n", err)
		os.Exit(1)
	}
}
