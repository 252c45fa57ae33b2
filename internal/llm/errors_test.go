package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{
			name: "plain model error",
			err:  newModelError(KindRateLimited, fmt.Errorf("429")),
			want: KindRateLimited,
		},
		{
			name: "wrapped model error",
			err:  fmt.Errorf("stage failed: %w", newModelError(KindTimeout, context.DeadlineExceeded)),
			want: KindTimeout,
		},
		{
			name: "not a model error",
			err:  errors.New("something else"),
			want: "",
		},
		{
			name: "nil error",
			err:  nil,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorKindOf(tt.err))
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "timeout", err: newModelError(KindTimeout, context.DeadlineExceeded), want: true},
		{name: "rate limited", err: newModelError(KindRateLimited, fmt.Errorf("429")), want: true},
		{name: "unreachable", err: newModelError(KindUnreachable, fmt.Errorf("refused")), want: false},
		{name: "malformed response", err: newModelError(KindMalformedResponse, fmt.Errorf("bad json")), want: false},
		{name: "untyped error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestClassifyTransportError(t *testing.T) {
	t.Run("deadline exceeded is a timeout", func(t *testing.T) {
		modelErr := classifyTransportError(fmt.Errorf("request: %w", context.DeadlineExceeded))
		assert.Equal(t, KindTimeout, modelErr.Kind)
	})

	t.Run("other transport errors are unreachable", func(t *testing.T) {
		modelErr := classifyTransportError(errors.New("connection refused"))
		assert.Equal(t, KindUnreachable, modelErr.Kind)
	})
}

func TestModelErrorUnwrap(t *testing.T) {
	inner := errors.New("connection reset")
	modelErr := newModelError(KindUnreachable, inner)

	assert.ErrorIs(t, modelErr, inner)
	assert.Contains(t, modelErr.Error(), "unreachable")
}
