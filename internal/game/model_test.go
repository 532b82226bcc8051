package game

import (
	"errors"
	"strings"
	"testing"
)

func TestValidateActorID(t *testing.T) {
	valid := []string{"a", "player_1", "alice.smith", "b-2"}
	for _, s := range valid {
		if err := ValidateActorID(s); err != nil {
			t.Fatalf("expected actor %q to be valid: %v", s, err)
		}
	}

	invalid := []string{"", "has space", "semi;colon", strings.Repeat("x", 65)}
	for _, s := range invalid {
		if err := ValidateActorID(s); !errors.Is(err, ErrInvalidActor) {
			t.Fatalf("expected actor %q to fail, got %v", s, err)
		}
	}
}

func TestValidateEntityName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"Corner Bakery", true},
		{"  ", false},
		{strings.Repeat("b", 65), false},
		{"Admin Shop", false},
	}
	for _, tc := range tests {
		err := ValidateEntityName(tc.name)
		if tc.ok && err != nil {
			t.Fatalf("%q: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidName) {
			t.Fatalf("%q: expected ErrInvalidName, got %v", tc.name, err)
		}
	}
}

func TestBusinessDisplayName(t *testing.T) {
	tests := []struct {
		name, typ, want string
	}{
		{"", "bakery", "bakery"},
		{"", "", "Player Business"},
		{" Mill ", "bakery", "Mill"},
		{strings.Repeat("m", 60), "", strings.Repeat("m", 48)},
	}
	for _, tc := range tests {
		if got := businessDisplayName(tc.name, tc.typ); got != tc.want {
			t.Fatalf("name=%q type=%q got=%q want=%q", tc.name, tc.typ, got, tc.want)
		}
	}
}
