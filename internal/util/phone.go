package util

import (
	"strings"
)

const (
	UserJIDSuffix = "@s.whatsapp.net"

	minPhoneDigits = 10
	maxPhoneDigits = 15
)

// FormatPhoneNumber turns a phone number into a user JID. Values that are
// already JIDs pass through unchanged.
func FormatPhoneNumber(number string) string {
	if strings.HasSuffix(number, UserJIDSuffix) {
		return number
	}
	return digitsOnly(number) + UserJIDSuffix
}

func ValidatePhoneNumber(number string) bool {
	n := len(digitsOnly(number))
	return n >= minPhoneDigits && n <= maxPhoneDigits
}

// DecodeMessageText expands literal `\n` escapes sent by form clients.
func DecodeMessageText(text string) string {
	return strings.ReplaceAll(text, `\n`, "\n")
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
