package utils

import "testing"

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTail(t *testing.T) {
	if got := Tail("abcdef", 3); got != "def" {
		t.Errorf("Tail = %q, want def", got)
	}
	if got := Tail("ab", 3); got != "ab" {
		t.Errorf("Tail = %q, want ab", got)
	}
	if got := Tail("ab", 0); got != "ab" {
		t.Errorf("Tail with no limit = %q, want ab", got)
	}
}
