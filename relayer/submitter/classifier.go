package submitter

import "strings"

// terminalReasons are revert-reason fragments signaling permanent
// contract-layer rejection. A submission failing with any of them can never
// succeed on retry.
var terminalReasons = []string{
	"transfer settled",
	"nonce already used",
	"invalid destination domain",
	"invalid destination caller",
	"invalid mint recipient",
	"invalid fee",
}

// Terminal reports whether a submission error message signals a failure
// that no retry can fix. Matching is a case-insensitive substring check
// against a closed set of contract rejection reasons.
func Terminal(errMsg string) bool {
	lowered := strings.ToLower(errMsg)
	for _, reason := range terminalReasons {
		if strings.Contains(lowered, reason) {
			return true
		}
	}
	return false
}
