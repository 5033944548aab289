package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxIdentifierLen = 128
	maxTextLen       = 10000
)

var (
	identifierRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:@\-]*$`)
	controlRegex    = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
)

// ReservedActorIDs cannot be claimed by API callers
var ReservedActorIDs = []string{"system"}

// ValidateIdentifier validates a user, project, document or template ID
func ValidateIdentifier(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s is required", kind)
	}
	if len(id) > maxIdentifierLen {
		return fmt.Errorf("%s exceeds %d characters", kind, maxIdentifierLen)
	}
	if !identifierRegex.MatchString(id) {
		return fmt.Errorf("invalid %s format: %s", kind, id)
	}
	return nil
}

// ValidateActorID validates a caller identity and rejects reserved IDs
func ValidateActorID(id string) error {
	if err := ValidateIdentifier("actor ID", id); err != nil {
		return err
	}
	for _, reserved := range ReservedActorIDs {
		if strings.EqualFold(id, reserved) {
			return fmt.Errorf("actor ID %q is reserved", id)
		}
	}
	return nil
}

// ValidateText validates free text such as comments and titles
func ValidateText(kind, s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%s is not valid UTF-8", kind)
	}
	if len(s) > maxTextLen {
		return fmt.Errorf("%s exceeds %d bytes", kind, maxTextLen)
	}
	return nil
}

// SanitizeString removes control characters other than tab and newlines
func SanitizeString(s string) string {
	return controlRegex.ReplaceAllString(s, "")
}

// SplitList splits a comma separated header value, dropping empty entries
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
