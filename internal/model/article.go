package model

import "time"

// Article はWordPressマガジンの記事を表す。
// Contentはサニタイズ済みHTML、Excerptはプレーンテキスト。
type Article struct {
	ID          string
	GUID        string
	Slug        string
	Title       string
	Link        string
	Excerpt     string
	Content     string
	Author      string
	ImageURL    string
	PublishedAt *time.Time
	FetchedAt   time.Time
}

// MagazineSyncState はRSS同期の条件付きGETに使うヘッダ値を保持する。
type MagazineSyncState struct {
	FeedURL      string
	ETag         string
	LastModified string
	SyncedAt     time.Time
}
