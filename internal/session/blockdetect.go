// Package session owns the HTTP identity used against one upstream exchange:
// cookie jar, browser-profile headers, warm-up, throttling, and block-aware
// retries.
package session

import (
	"net/http"
	"strings"

	"github.com/halal-lens/filings-cli/internal/resilience"
)

// BlockType describes the kind of anti-bot rejection detected.
type BlockType string

const (
	BlockNone BlockType = ""
	// BlockStatus is an outright rejection status (403/429/503).
	BlockStatus BlockType = "status"
	// BlockChallenge is a challenge or captcha page served where data was expected.
	BlockChallenge BlockType = "challenge"
	// BlockJSShell is a JavaScript-only shell page in place of a payload.
	BlockJSShell BlockType = "js_shell"
)

// DetectBlock checks an HTTP response for signs of anti-bot protection. The
// exchanges either reject outright with 403/429/503 or serve a challenge page
// with a success status instead of the expected payload.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	if resilience.IsBlockedHTTPStatus(resp.StatusCode) {
		return true, BlockStatus
	}

	lower := strings.ToLower(string(body))

	// Edge-protection challenge markers (Akamai fronts the exchanges).
	if strings.Contains(lower, "access denied") ||
		strings.Contains(lower, "request unsuccessful") ||
		strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "reference #") && strings.Contains(lower, "errors.edgesuite") {
		return true, BlockChallenge
	}

	// Captcha markers.
	if strings.Contains(lower, "captcha") ||
		strings.Contains(lower, "recaptcha") ||
		strings.Contains(lower, "hcaptcha") {
		return true, BlockChallenge
	}

	// JS-only shell: very small body with noscript or meta refresh.
	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "javascript") {
			return true, BlockJSShell
		}
		if strings.Contains(lower, "meta http-equiv=\"refresh\"") {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}
