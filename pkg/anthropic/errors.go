package anthropic

import (
	"errors"

	sdk "github.com/anthropics/anthropic-sdk-go"
)

// IsRetryable reports whether an API error is worth retrying: rate limits,
// server errors, and request timeouts. Validation and auth errors are not.
func IsRetryable(err error) bool {
	var apierr *sdk.Error
	if !errors.As(err, &apierr) {
		return false
	}
	switch apierr.StatusCode {
	case 408, 429, 500, 502, 503, 504, 529:
		return true
	}
	return false
}
