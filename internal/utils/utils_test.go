package utils

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a longer job title", 10, "a longe..."},
		{"не варто брати", 8, "не ва..."},
		{"abcdef", 2, "ab"},
		{"anything", 0, "anything"},
	}
	for _, tc := range tests {
		if got := Truncate(tc.in, tc.max); got != tc.want {
			t.Fatalf("Truncate(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
}

func TestFirstLine(t *testing.T) {
	if got := FirstLine("\n  \n  WORTH  \nreasons"); got != "WORTH" {
		t.Fatalf("unexpected first line %q", got)
	}
	if got := FirstLine(" \n "); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestDBLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobscope.sqlite")
	l, err := NewDBLock(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Lock(); err != nil {
		t.Fatal(err)
	}
	if err := l.Unlock(); err != nil {
		t.Fatal(err)
	}

	def, err := GetAbsDBPath("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(def, filepath.Join(".config", "jobscope", "jobscope.sqlite")) {
		t.Fatalf("unexpected default path %s", def)
	}
}
