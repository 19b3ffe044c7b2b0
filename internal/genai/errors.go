package genai

import (
	"errors"
	"strings"
)

// criticalMarkers are failure signatures that indicate retrying or
// continuing a fan-out is pointless (exhausted quota, dead credentials).
var criticalMarkers = []string{
	"quota",
	"rate limit",
	"authentication",
	"unauthorized",
	"invalid api key",
}

// IsCritical reports whether the error matches a critical-failure
// signature. Callers abort the enclosing multi-item operation on these
// instead of moving on to the next item.
func IsCritical(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range criticalMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether the failure may succeed on a later
// attempt. API rejections other than throttling are permanent.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}
