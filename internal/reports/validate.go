package reports

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/tonimelisma/synophoto/internal/apperr"
)

// Input limits.
const (
	MaxItemIDLength   = 128
	MaxFilenameLength = 255
)

var (
	itemIDPattern     = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	filenameStrip     = regexp.MustCompile(`[\x00-\x1F\x7F<>]`)
	filenameCollapse  = regexp.MustCompile(`\s+`)
	errItemIDRequired = apperr.BadRequest("itemId is required")
)

// ValidateItemID checks a reported item id.
func ValidateItemID(raw string) (string, error) {
	if raw == "" {
		return "", errItemIDRequired
	}

	if len(raw) > MaxItemIDLength {
		return "", apperr.BadRequest(fmt.Sprintf("itemId exceeds maximum length of %d characters", MaxItemIDLength))
	}

	if !itemIDPattern.MatchString(raw) {
		return "", apperr.BadRequest("itemId must be alphanumeric and may include - or _")
	}

	return raw, nil
}

// SanitizeFilename strips control characters and angle brackets, collapses
// whitespace, and enforces the length limit. An empty result means no
// filename.
func SanitizeFilename(raw string) (string, error) {
	cleaned := filenameStrip.ReplaceAllString(raw, "")
	cleaned = strings.TrimSpace(filenameCollapse.ReplaceAllString(cleaned, " "))

	if utf8.RuneCountInString(cleaned) > MaxFilenameLength {
		return "", apperr.BadRequest(fmt.Sprintf("filename exceeds maximum length of %d characters", MaxFilenameLength))
	}

	return cleaned, nil
}

// ValidateReportID checks the id of a stored report.
func ValidateReportID(raw string) error {
	if _, err := uuid.Parse(raw); err != nil || len(raw) != 36 {
		return apperr.BadRequest("Invalid report ID format")
	}

	return nil
}
