package magazine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/wrapmag/internal/metrics"
)

const postsJSON = `[{
	"id": 42,
	"guid": {"rendered": "https://magazin.example.de/?p=42"},
	"slug": "teilfolierung-kosten",
	"link": "https://magazin.example.de/2024/05/teilfolierung-kosten/",
	"date_gmt": "2024-05-02T08:30:00",
	"title": {"rendered": "Teilfolierung &#8211; Kosten"},
	"excerpt": {"rendered": "<p>Was kostet eine Teilfolierung?</p>"},
	"content": {"rendered": "<p>Inhalt</p><script>x()</script>"},
	"_embedded": {
		"author": [{"name": "Redaktion"}],
		"wp:featuredmedia": [{"source_url": "https://magazin.example.de/img/a.jpg"}]
	}
}]`

// statusMetrics はCMSのステータスコードを記録する。
type statusMetrics struct {
	metrics.Nop
	statuses []int
}

func (m *statusMetrics) RecordCMSStatus(code int) {
	m.statuses = append(m.statuses, code)
}

func TestClient_PostBySlug(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wp-json/wp/v2/posts" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("slug"); got != "teilfolierung-kosten" {
			t.Errorf("slug = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(postsJSON))
	}))
	defer server.Close()

	m := &statusMetrics{}
	c := NewClient(server.URL+"/", server.Client(), m)

	a, err := c.PostBySlug(context.Background(), "teilfolierung-kosten")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Title != "Teilfolierung – Kosten" {
		t.Errorf("Title = %q", a.Title)
	}
	if a.Excerpt != "Was kostet eine Teilfolierung?" {
		t.Errorf("Excerpt = %q", a.Excerpt)
	}
	if a.Author != "Redaktion" || a.ImageURL != "https://magazin.example.de/img/a.jpg" {
		t.Errorf("Author/ImageURL = %q %q", a.Author, a.ImageURL)
	}
	if a.PublishedAt == nil || !a.PublishedAt.Equal(time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC)) {
		t.Errorf("PublishedAt = %v", a.PublishedAt)
	}
	if a.GUID != "https://magazin.example.de/?p=42" {
		t.Errorf("GUID = %q", a.GUID)
	}
	if len(m.statuses) != 1 || m.statuses[0] != http.StatusOK {
		t.Errorf("statuses = %v, want [200]", m.statuses)
	}
}

func TestClient_PostBySlug_EmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := NewClient(server.URL, server.Client(), nil)

	_, err := c.PostBySlug(context.Background(), "gibt-es-nicht")
	if !errors.Is(err, ErrPostNotFound) {
		t.Errorf("err = %v, want ErrPostNotFound", err)
	}
}

func TestClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	m := &statusMetrics{}
	c := NewClient(server.URL, server.Client(), m)

	_, err := c.ListPosts(context.Background(), 1, 10)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadGateway {
		t.Errorf("err = %v, want StatusError 502", err)
	}
	if len(m.statuses) != 1 || m.statuses[0] != http.StatusBadGateway {
		t.Errorf("statuses = %v", m.statuses)
	}
}

func TestClient_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>Wartungsmodus</html>`))
	}))
	defer server.Close()

	c := NewClient(server.URL, server.Client(), nil)

	if _, err := c.ListPosts(context.Background(), 1, 10); err == nil {
		t.Fatal("expected error for invalid JSON, got nil")
	}
}

func TestClient_ListPosts_ClampsPaging(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("page") != "1" || q.Get("per_page") != "10" {
			t.Errorf("page=%s per_page=%s, want 1/10", q.Get("page"), q.Get("per_page"))
		}
		w.Write([]byte(postsJSON))
	}))
	defer server.Close()

	c := NewClient(server.URL, server.Client(), nil)

	posts, err := c.ListPosts(context.Background(), 0, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(posts) != 1 {
		t.Errorf("len(posts) = %d, want 1", len(posts))
	}
}
