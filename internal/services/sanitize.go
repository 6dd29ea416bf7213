package services

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"ephemeral-chat/internal/apperr"
)

const (
	maxContentRunes   = 4000
	maxNoteRunes      = 280
	maxGroupNameRunes = 64
	maxGroupMembers   = 50
	maxDisappearAfter = 7 * 24 * 60 * 60
)

var htmlPolicy = bluemonday.StrictPolicy()

// sanitizeText strips markup and control bytes from user supplied text. The
// policy entity-encodes the text it keeps, so the result is decoded again:
// stored content is plain text, not HTML.
func sanitizeText(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	return strings.TrimSpace(html.UnescapeString(htmlPolicy.Sanitize(input)))
}

// cleanBounded sanitizes input and rejects it when longer than limit runes.
func cleanBounded(field, input string, limit int) (string, error) {
	out := sanitizeText(input)
	if utf8.RuneCountInString(out) > limit {
		return "", apperr.Invalid(field + " is too long")
	}
	return out, nil
}
