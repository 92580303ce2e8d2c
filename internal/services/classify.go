package services

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/songmix/internal/shared"
)

// Classify converts the outcome of a call into a typed failure, or nil for a 2xx response.
//
// resp is nil when no response was received, in which case err is the transport cause.
func Classify(resp *http.Response, body []byte, err error) error {
	if resp == nil {
		if err == nil {
			return nil
		}
		return &shared.TransportError{Err: err}
	}

	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return &shared.AuthError{Reason: "invalid or expired token"}
	case code == http.StatusTooManyRequests:
		return &shared.RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	default:
		return &shared.RemoteError{
			Status:  code,
			Message: errorMessage(code, body),
			Body:    body,
		}
	}
}

// parseRetryAfter reads a delay in whole seconds. Anything else yields zero (no hint).
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// apiErrorBody covers both the Web API shape {"error": {"status", "message"}} and the accounts shape
// {"error": "...", "error_description": "..."}.
type apiErrorBody struct {
	Error            json.RawMessage `json:"error"`
	ErrorDescription string          `json:"error_description"`
	Message          string          `json:"message"`
}

func errorMessage(code int, body []byte) string {
	var parsed apiErrorBody
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil {
		var nested struct {
			Message string `json:"message"`
		}
		if len(parsed.Error) > 0 && json.Unmarshal(parsed.Error, &nested) == nil && nested.Message != "" {
			return nested.Message
		}
		if parsed.ErrorDescription != "" {
			return parsed.ErrorDescription
		}
		var errCode string
		if len(parsed.Error) > 0 && json.Unmarshal(parsed.Error, &errCode) == nil && errCode != "" {
			return errCode
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}

	if text := http.StatusText(code); text != "" {
		return strings.ToLower(text)
	}
	return "unexpected response"
}
