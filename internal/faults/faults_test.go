package faults

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyStatusCodes(t *testing.T) {
	require.Equal(t, KindOverloaded, Classify("", 429))
	require.Equal(t, KindOverloaded, Classify("", 503))
	require.Equal(t, KindOverloaded, Classify("", 529))
	require.Equal(t, KindRetryable, Classify("", 500))
	require.Equal(t, KindRetryable, Classify("", 502))
	require.Equal(t, KindRetryable, Classify("", 408))
	require.Equal(t, KindUnknown, Classify("", 400))
	require.Equal(t, KindUnknown, Classify("", 0))
}

func TestClassifyText(t *testing.T) {
	cases := []struct {
		text string
		want ErrorKind
	}{
		{"model is Overloaded, try later", KindOverloaded},
		{"429 rate limit reached", KindOverloaded},
		{"RESOURCE_EXHAUSTED", KindOverloaded},
		{"request timed out", KindRetryable},
		{"context deadline exceeded", KindRetryable},
		{"connection reset by peer", KindRetryable},
		{"invalid api key", KindUnknown},
	}

	for _, tc := range cases {
		require.Equal(t, tc.want, Classify(tc.text, 0), "text %q", tc.text)
	}
}

func TestClassifyErrorStructured(t *testing.T) {
	require.Equal(t, KindQuotaExceeded, ClassifyError(fmt.Errorf("place hold: %w", ErrQuotaExceeded)))
	require.Equal(t, KindAborted, ClassifyError(fmt.Errorf("stage check: %w", ErrAborted)))
	require.Equal(t, KindCompile, ClassifyError(&CompileError{Errors: []string{"Undefined control sequence"}}))
	require.Equal(t, KindFatalParse, ClassifyError(&ParseError{Err: errors.New("unexpected token")}))
	require.Equal(t, KindOverloaded, ClassifyError(&StatusError{Code: 503}))

	exhausted := &ExhaustedError{Attempts: 4, LastKind: KindRetryable, Err: errors.New("timeout")}
	require.Equal(t, KindExhausted, ClassifyError(exhausted))

	overloadedExhausted := &ExhaustedError{Attempts: 4, LastKind: KindOverloaded, Err: errors.New("overloaded")}
	require.Equal(t, KindOverloaded, ClassifyError(overloadedExhausted))
}

func TestClassifyErrorContextErrors(t *testing.T) {
	// net/http wraps the context error the way a real aborted POST does.
	require.Equal(t, KindAborted, ClassifyError(fmt.Errorf("Post %q: %w", "http://127.0.0.1:8080/v1/chat/completions", context.Canceled)))
	require.Equal(t, KindAborted, ClassifyError(fmt.Errorf("provider request failed: %w", context.DeadlineExceeded)))
}

func TestUserMessageNeverLeaksDetail(t *testing.T) {
	for _, kind := range []ErrorKind{KindQuotaExceeded, KindAborted, KindOverloaded, KindExhausted, KindUnknown, KindCompile} {
		msg := UserMessage(kind)
		require.NotEmpty(t, msg)
		require.NotContains(t, msg, "attempts")
		require.NotContains(t, msg, "status")
	}
}
