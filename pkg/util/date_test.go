package util

import (
	"testing"
	"time"
)

func TestParseTime(t *testing.T) {
	want := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC)
	for _, s := range []string{"2024-10-10T10:10:10Z", "2024-10-10T15:40:10+05:30", "2024-10-10 10:10:10", "1728555010"} {
		got, ok := ParseTime(s)
		if !ok || !got.Equal(want) {
			t.Fatalf("%q: got %v, %v", s, got, ok)
		}
	}
	day, ok := ParseTime("2024-03-15")
	if !ok || !day.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("bare date: got %v, %v", day, ok)
	}
}

func TestParseTimeRejects(t *testing.T) {
	for _, s := range []string{"", "15/03/2024", "yesterday", "0", "-5"} {
		if _, ok := ParseTime(s); ok {
			t.Fatalf("%q should not parse", s)
		}
	}
}
