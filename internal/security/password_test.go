package security

import (
	"strings"
	"testing"
)

func TestGeneratePassword(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		p, err := GeneratePassword(DefaultGeneratedPasswordLen)
		if err != nil {
			t.Fatalf("GeneratePassword: %v", err)
		}
		if len(p) != DefaultGeneratedPasswordLen {
			t.Fatalf("len = %d, want %d", len(p), DefaultGeneratedPasswordLen)
		}
		for _, class := range []string{lowerChars, upperChars, digitChars, specialChars} {
			if !strings.ContainsAny(p, class) {
				t.Errorf("password %q missing a character from %q", p, class)
			}
		}
		if seen[p] {
			t.Errorf("duplicate password %q", p)
		}
		seen[p] = true
	}
}

func TestGeneratePassword_TooShort(t *testing.T) {
	if _, err := GeneratePassword(3); err == nil {
		t.Error("expected error for length 3")
	}
}
