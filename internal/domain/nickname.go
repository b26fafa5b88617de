package domain

import (
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const MaxNicknameLength = 20

var nicknamePolicy = bluemonday.StrictPolicy()

// NormalizeNickname strips markup, collapses whitespace and enforces the
// nickname length.
func NormalizeNickname(raw string) (string, error) {
	const op = "domain.nickname"
	cleaned := html.UnescapeString(nicknamePolicy.Sanitize(raw))
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned == "" {
		return "", Validation(op, "nickname is required")
	}
	if utf8.RuneCountInString(cleaned) > MaxNicknameLength {
		return "", Validation(op, "nickname must be %d characters or fewer", MaxNicknameLength)
	}
	for _, r := range cleaned {
		if !unicode.IsPrint(r) {
			return "", Validation(op, "nickname contains unsupported characters")
		}
	}
	return cleaned, nil
}

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const CodeLength = 6

// NormalizeCode upper-cases and trims a typed room code.
func NormalizeCode(raw string) (string, error) {
	const op = "domain.code"
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != CodeLength {
		return "", Validation(op, "room code must be %d characters", CodeLength)
	}
	for _, r := range code {
		if !strings.ContainsRune(codeAlphabet, r) {
			return "", Validation(op, "room code contains unsupported characters")
		}
	}
	return code, nil
}

// CodeAlphabet lists the characters room codes are drawn from.
func CodeAlphabet() string {
	return codeAlphabet
}
