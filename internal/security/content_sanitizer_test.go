package security

import (
	"strings"
	"testing"
)

// TestSanitize_AllowedElements は記事本文で使うタグが通過することを検証する。
func TestSanitize_AllowedElements(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name         string
		input        string
		wantContains []string
	}{
		{"段落", "<p>Folierung in Berlin</p>", []string{"<p>Folierung in Berlin</p>"}},
		{"見出し", "<h2>Teilfolierung</h2><h3>Kosten</h3>", []string{"<h2>Teilfolierung</h2>", "<h3>Kosten</h3>"}},
		{"リスト", "<ul><li>Matt</li><li>Glanz</li></ul>", []string{"<ul>", "<li>Matt</li>", "</ul>"}},
		{"引用", "<blockquote>Zitat</blockquote>", []string{"<blockquote>Zitat</blockquote>"}},
		{"強調", "<strong>wichtig</strong> <em>leicht</em>", []string{"<strong>wichtig</strong>", "<em>leicht</em>"}},
		{"図", `<figure><img src="https://cdn.example.de/a.jpg" alt="Auto"><figcaption>Bild</figcaption></figure>`,
			[]string{"<figure>", `src="https://cdn.example.de/a.jpg"`, `alt="Auto"`, "<figcaption>Bild</figcaption>"}},
		{"画像サイズ", `<img src="https://cdn.example.de/a.jpg" width="800" height="600">`,
			[]string{`width="800"`, `height="600"`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, want := range tt.wantContains {
				if !strings.Contains(got, want) {
					t.Errorf("Sanitize(%q) = %q, want to contain %q", tt.input, got, want)
				}
			}
		})
	}
}

// TestSanitize_RemovesDangerousContent は危険なタグ・属性が除去されることを検証する。
func TestSanitize_RemovesDangerousContent(t *testing.T) {
	sanitizer := NewContentSanitizer()

	tests := []struct {
		name       string
		input      string
		notContain []string
	}{
		{"script", `<p>ok</p><script>alert(1)</script>`, []string{"<script", "alert(1)"}},
		{"iframe", `<iframe src="https://evil.example"></iframe>`, []string{"<iframe"}},
		{"style", `<style>body{display:none}</style><p>x</p>`, []string{"<style", "display:none"}},
		{"onerror", `<img src="https://cdn.example.de/a.jpg" onerror="alert(1)">`, []string{"onerror"}},
		{"onclick", `<p onclick="steal()">x</p>`, []string{"onclick"}},
		{"javascript href", `<a href="javascript:alert(1)">x</a>`, []string{"javascript:"}},
		{"http画像", `<img src="http://cdn.example.de/a.jpg">`, []string{"http://cdn.example.de"}},
		{"data画像", `<img src="data:image/png;base64,AAAA">`, []string{"data:"}},
		{"不正な幅", `<img src="https://cdn.example.de/a.jpg" width="100%">`, []string{"width"}},
		{"class属性", `<p class="wp-block-paragraph">x</p>`, []string{"class="}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizer.Sanitize(tt.input)
			for _, bad := range tt.notContain {
				if strings.Contains(got, bad) {
					t.Errorf("Sanitize(%q) = %q, must not contain %q", tt.input, got, bad)
				}
			}
		})
	}
}

// TestSanitize_ExternalLinks は外部リンクにtargetとrelが付与されることを検証する。
func TestSanitize_ExternalLinks(t *testing.T) {
	sanitizer := NewContentSanitizer()

	got := sanitizer.Sanitize(`<a href="https://www.example.de/folien">Folien</a>`)

	for _, want := range []string{`target="_blank"`, "noopener", "noreferrer"} {
		if !strings.Contains(got, want) {
			t.Errorf("Sanitize() = %q, want to contain %q", got, want)
		}
	}
}

// TestSanitize_Idempotent は同一入力に対して同一出力を返し、再サニタイズしても変わらないことを検証する。
func TestSanitize_Idempotent(t *testing.T) {
	sanitizer := NewContentSanitizer()
	input := `<h2>Titel</h2><p>Text <a href="https://example.de">Link</a></p><script>x()</script>`

	first := sanitizer.Sanitize(input)
	second := sanitizer.Sanitize(input)
	if first != second {
		t.Errorf("outputs differ: %q vs %q", first, second)
	}
	if again := sanitizer.Sanitize(first); again != first {
		t.Errorf("re-sanitize changed output: %q -> %q", first, again)
	}
}

func TestSanitize_Empty(t *testing.T) {
	if got := NewContentSanitizer().Sanitize(""); got != "" {
		t.Errorf("Sanitize(\"\") = %q, want empty", got)
	}
}

func TestContentSanitizerInterface(t *testing.T) {
	var _ ContentSanitizerService = NewContentSanitizer()
}
