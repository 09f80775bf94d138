package domain

import (
	"testing"
	"time"
)

func TestStringListRoundTripsThroughDriverValue(t *testing.T) {
	v, err := StringList{"Go", "React"}.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	var got StringList
	if err := got.Scan(v); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 2 || got[0] != "Go" || got[1] != "React" {
		t.Fatalf("unexpected list: %v", got)
	}
}

func TestStringListScanAcceptsLegacyShapes(t *testing.T) {
	cases := []struct {
		name string
		src  any
		want []string
	}{
		{name: "nil", src: nil, want: []string{}},
		{name: "empty", src: "  ", want: []string{}},
		{name: "json bytes", src: []byte(`["Node","Mongo"]`), want: []string{"Node", "Mongo"}},
		{name: "comma separated", src: "Go, Postgres ,,Redis", want: []string{"Go", "Postgres", "Redis"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got StringList
			if err := got.Scan(tc.src); err != nil {
				t.Fatalf("scan: %v", err)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("expected %v, got %v", tc.want, got)
				}
			}
		})
	}
}

func TestStringListScanRejectsUnknownType(t *testing.T) {
	var got StringList
	if err := got.Scan(42); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}

func TestOneTimeCodeExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	code := OneTimeCode{CreatedAt: now.Add(-6 * time.Minute)}
	if !code.ExpiredAt(now, 5*time.Minute) {
		t.Fatal("expected code older than ttl to be expired")
	}
	if code.ExpiredAt(now, 10*time.Minute) {
		t.Fatal("expected code within ttl to be live")
	}
	if code.ExpiredAt(now, 0) {
		t.Fatal("expected zero ttl to disable expiry")
	}
}
