package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
)

// ErrorKind is the closed set of normalized upstream failure kinds. Raw
// provider errors never propagate past this package.
type ErrorKind string

const (
	KindConnectionError ErrorKind = "connection_error"
	KindTimeoutError    ErrorKind = "timeout_error"
	KindRateLimit       ErrorKind = "rate_limit"
	KindParsingError    ErrorKind = "parsing_error"
	KindGeneralError    ErrorKind = "general_error"
)

// Classify maps a transport error to its kind.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindGeneralError
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeoutError
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return KindRateLimit
		case apiErr.StatusCode == http.StatusRequestTimeout:
			return KindTimeoutError
		case apiErr.StatusCode >= 500:
			return KindConnectionError
		default:
			return KindGeneralError
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeoutError
		}
		return KindConnectionError
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "connection reset"):
		return KindConnectionError
	case strings.Contains(msg, "unexpected end of json"),
		strings.Contains(msg, "invalid character"),
		strings.Contains(msg, "cannot unmarshal"):
		return KindParsingError
	}
	return KindGeneralError
}

// UserMessage returns the short user-facing message and suggested action
// for a kind.
func UserMessage(kind ErrorKind) (message, suggestion string) {
	switch kind {
	case KindConnectionError:
		return "Could not reach the model provider.", "Check connectivity and retry."
	case KindTimeoutError:
		return "The model provider took too long to respond.", "Retry; consider a shorter request."
	case KindRateLimit:
		return "The model provider is rate limiting requests.", "Wait a moment and retry."
	case KindParsingError:
		return "The model provider sent a response that could not be parsed.", "Retry; report if it persists."
	default:
		return "The request to the model provider failed.", "Retry; report if it persists."
	}
}
