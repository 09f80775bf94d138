package security

import (
	"regexp"
	"testing"
)

var sixDigits = regexp.MustCompile(`^[0-9]{6}$`)

func TestNewOneTimeCodeShape(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		code, err := NewOneTimeCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if !sixDigits.MatchString(code) {
			t.Fatalf("expected six digits, got %q", code)
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 150 {
		t.Fatalf("expected mostly distinct codes, got %d unique of 200", len(seen))
	}
}

func TestFixedCode(t *testing.T) {
	code, err := FixedCode("482913")()
	if err != nil || code != "482913" {
		t.Fatalf("unexpected fixed code %q err=%v", code, err)
	}
}

func TestCodesEqual(t *testing.T) {
	cases := []struct {
		stored, submitted string
		want              bool
	}{
		{"482913", "482913", true},
		{"482913", " 482913\n", true},
		{"482913", "482914", false},
		{"482913", "48291", false},
		{"482913", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		if got := CodesEqual(tc.stored, tc.submitted); got != tc.want {
			t.Fatalf("CodesEqual(%q,%q)=%v want=%v", tc.stored, tc.submitted, got, tc.want)
		}
	}
}
