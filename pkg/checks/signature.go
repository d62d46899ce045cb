package checks

import (
	"net/http"
	"strings"
)

// Signature is one provider's fixed table of authorization-denial markers.
// Classifiers extract the code, HTTP status and message from a raw SDK error
// and ask the signature whether they spell a permission problem.
type Signature struct {
	// Codes are exact provider error codes that mean access was denied.
	Codes []string

	// Phrases are case-sensitive substrings of denial messages, checked
	// only when neither code nor status matched.
	Phrases []string
}

// Denial applies the classification rule in fixed order, first match wins:
// a known denial code, then HTTP 403, then a denial phrase in the message.
func (s Signature) Denial(code string, status int, message string) bool {
	if code != "" {
		for _, c := range s.Codes {
			if code == c {
				return true
			}
		}
	}
	if status == http.StatusForbidden {
		return true
	}
	if message != "" {
		for _, p := range s.Phrases {
			if p != "" && strings.Contains(message, p) {
				return true
			}
		}
	}
	return false
}
