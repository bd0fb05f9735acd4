package directory

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"git.skobk.in/skobkin/telegram-group-mention-bot/storage"
)

const (
	MaxGroupsPerChat    = 10
	MaxGroupNameLength  = 10
	MaxMemberNameLength = 100
	MaxAliasesPerGroup  = 3
	MaxMembersPerGroup  = 20
)

// GroupNamePattern matches a group name or alias: Latin and Cyrillic
// letters, digits, hyphen and underscore.
var GroupNamePattern = regexp.MustCompile(`^[a-zA-Z0-9а-яА-ЯёЁ_-]+$`)

// ValidateGroupName checks the alias text invariants.
func ValidateGroupName(name string) error {
	if !GroupNamePattern.MatchString(name) {
		return fmt.Errorf("%q: %w", name, ErrInvalidGroupName)
	}
	if utf8.RuneCountInString(name) > MaxGroupNameLength {
		return fmt.Errorf("%q is longer than %d characters: %w", name, MaxGroupNameLength, ErrInvalidGroupName)
	}
	return nil
}

// ValidateMembers checks a batch of members before it reaches the store.
func ValidateMembers(members []storage.Member) error {
	if len(members) == 0 {
		return ErrNoMembers
	}
	for _, m := range members {
		if err := validateMemberName(m.Name); err != nil {
			return err
		}
	}
	return nil
}

func validateMemberName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("empty name: %w", ErrInvalidMemberName)
	}
	if utf8.RuneCountInString(name) > MaxMemberNameLength {
		return fmt.Errorf("%q is longer than %d characters: %w", name, MaxMemberNameLength, ErrInvalidMemberName)
	}
	return nil
}
