package model

import "testing"

func TestSlugify(t *testing.T) {
	tests := []struct {
		name   string
		userID string
		want   string
	}{
		{"Folien Köln GmbH", "1234abcd-0000", "folien-koeln-gmbh-1234abcd"},
		{"  Straße & Söhne!  ", "ab-cd", "strasse-soehne-abcd"},
		{"***", "1234abcd", ""},
		{"", "1234abcd", ""},
	}
	for _, tt := range tests {
		if got := Slugify(tt.name, tt.userID); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
