package game

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

const (
	StarterCash = int64(25_000)

	DefaultConcurrency     = 8
	DefaultReportCacheSize = 256
)

var (
	ErrInvalidActor  = errors.New("actor id must be 1-64 characters of letters, digits, '_', '-' or '.'")
	ErrInvalidName   = errors.New("invalid name")
	ErrServiceClosed = errors.New("game service closed")
)

var actorRE = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,64}$`)

var blockedNameFragments = []string{
	"admin",
	"support",
	"shit",
	"fuck",
	"bitch",
	"nazi",
}

func ValidateActorID(id string) error {
	if !actorRE.MatchString(id) {
		return ErrInvalidActor
	}
	return nil
}

func ValidateEntityName(name string) error {
	clean := strings.TrimSpace(name)
	if clean == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if len(clean) > 64 {
		return fmt.Errorf("%w: too long (max 64 chars)", ErrInvalidName)
	}
	lower := strings.ToLower(clean)
	for _, fragment := range blockedNameFragments {
		if strings.Contains(lower, fragment) {
			return fmt.Errorf("%w: contains blocked content", ErrInvalidName)
		}
	}
	return nil
}

func businessDisplayName(name, businessType string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.TrimSpace(businessType)
	}
	if name == "" {
		return "Player Business"
	}
	if len(name) > 48 {
		return name[:48]
	}
	return name
}
