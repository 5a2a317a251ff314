package util

import (
	"crypto/subtle"
)

func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// MaskCode keeps the first characters of a pairing code for log correlation.
func MaskCode(code string) string {
	if len(code) <= 8 {
		return "****"
	}
	return code[:8] + "-****"
}
