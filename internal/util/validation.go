package util

import (
	"regexp"
	"strings"
)

const maxSessionIDLength = 128

// Session ids double as credential directory names.
var sessionIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

func IsValidSessionID(id string) bool {
	if id == "" || len(id) > maxSessionIDLength {
		return false
	}
	if strings.Contains(id, "..") {
		return false
	}
	return sessionIDRegex.MatchString(id)
}
