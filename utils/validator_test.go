package utils

import (
	"strings"
	"testing"
)

func TestValidatePassword(t *testing.T) {
	cases := []struct {
		name     string
		password string
		ok       bool
	}{
		{"too short", "short", false},
		{"minimum length", "12345678", true},
		{"typical", "correct-horse-battery", true},
		{"over bcrypt limit", strings.Repeat("x", 73), false},
		{"at bcrypt limit", strings.Repeat("x", 72), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, reason := ValidatePassword(tc.password)
			if ok != tc.ok {
				t.Fatalf("ValidatePassword(%q) = %v (%s), want %v", tc.password, ok, reason, tc.ok)
			}
			if !ok && reason == "" {
				t.Fatal("rejection must carry a reason")
			}
		})
	}
}
