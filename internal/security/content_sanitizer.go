// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizer はWordPressから取得した記事HTMLを表示前にサニタイズする。
// SSRFGuard はCMSへのHTTPリクエストを設定済みのホストに限定する。
package security

import (
	"net/url"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService は記事HTMLのサニタイズ機能のインターフェース。
type ContentSanitizerService interface {
	// Sanitize は許可リストにないタグ・属性を除去した安全なHTMLを返す。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

// ContentSanitizer はbluemondayのポリシーを保持する。並行利用可能。
type ContentSanitizer struct {
	policy *bluemonday.Policy
}

// 画像の幅・高さ（WordPressが付与する数値属性）
var dimension = regexp.MustCompile(`^[0-9]{1,4}$`)

// NewContentSanitizer はマガジン記事用のポリシーでContentSanitizerを生成する。
//   - 本文: p, br, h2〜h4, ul, ol, li, blockquote, pre, code, strong, em, figure, figcaption, hr
//   - a: hrefのみ、外部リンクにはtarget="_blank"とrel="noopener noreferrer"
//   - img: src（httpsのみ）, alt, width, height
//   - script, iframe, style, on*属性は許可リストにないため除去される
func NewContentSanitizer() *ContentSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "hr",
		"h2", "h3", "h4",
		"ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
		"figure", "figcaption",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowAttrs("width", "height").Matching(dimension).OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(*url.URL) bool { return true })

	return &ContentSanitizer{policy: p}
}

// Sanitize はHTMLをサニタイズする。
func (s *ContentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
