package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeNetError struct {
	timeout bool
}

func (e fakeNetError) Error() string   { return "dial tcp: network trouble" }
func (e fakeNetError) Timeout() bool   { return e.timeout }
func (e fakeNetError) Temporary() bool { return false }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindGeneralError},
		{"deadline exceeded", context.DeadlineExceeded, KindTimeoutError},
		{"wrapped deadline", fmt.Errorf("stream: %w", context.DeadlineExceeded), KindTimeoutError},
		{"net timeout", fakeNetError{timeout: true}, KindTimeoutError},
		{"net failure", fakeNetError{}, KindConnectionError},
		{"connection refused text", errors.New("dial tcp 127.0.0.1:443: connect: connection refused"), KindConnectionError},
		{"dns failure text", errors.New("lookup api.example.com: no such host"), KindConnectionError},
		{"truncated json", errors.New("unexpected end of JSON input"), KindParsingError},
		{"bad json token", errors.New("invalid character 'x' looking for beginning of value"), KindParsingError},
		{"unmarshal mismatch", errors.New("json: cannot unmarshal string into Go value"), KindParsingError},
		{"anything else", errors.New("boom"), KindGeneralError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestUserMessage_EveryKindHasMessageAndSuggestion(t *testing.T) {
	kinds := []ErrorKind{
		KindConnectionError, KindTimeoutError, KindRateLimit,
		KindParsingError, KindGeneralError,
	}
	for _, kind := range kinds {
		msg, suggestion := UserMessage(kind)
		assert.NotEmpty(t, msg, "kind %s", kind)
		assert.NotEmpty(t, suggestion, "kind %s", kind)
	}
}
