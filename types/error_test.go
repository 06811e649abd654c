package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrTransientProvider, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("openai")

	assert.Equal(t, ErrTransientProvider, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.True(t, errors.Is(err, root))
	assert.Contains(t, err.Error(), "openai/TRANSIENT_PROVIDER")
}

func TestError_WrappedClassification(t *testing.T) {
	t.Parallel()

	inner := NewPermanentError("deepgram", "bad key", nil)
	wrapped := fmt.Errorf("transcribe: %w", inner)

	assert.False(t, IsRetryable(wrapped))
	assert.Equal(t, ErrPermanentProvider, GetErrorCode(wrapped))
	assert.True(t, IsCode(wrapped, ErrPermanentProvider))
	assert.True(t, errors.Is(wrapped, &Error{Code: ErrPermanentProvider}))
	assert.False(t, errors.Is(wrapped, &Error{Code: ErrConnectionLost}))
}

func TestClassifyHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   ErrorCode
	}{
		{http.StatusTooManyRequests, ErrTransientProvider},
		{http.StatusRequestTimeout, ErrTransientProvider},
		{http.StatusInternalServerError, ErrTransientProvider},
		{http.StatusBadGateway, ErrTransientProvider},
		{http.StatusBadRequest, ErrPermanentProvider},
		{http.StatusUnauthorized, ErrPermanentProvider},
		{http.StatusForbidden, ErrPermanentProvider},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyHTTPStatus(tt.status))
		})
	}
}

func TestProviderHTTPError(t *testing.T) {
	t.Parallel()

	transient := ProviderHTTPError("openai", 503, "overloaded")
	require.NotNil(t, transient)
	assert.True(t, transient.Retryable)
	assert.Equal(t, 503, transient.HTTPStatus)

	permanent := ProviderHTTPError("openai", 401, "bad key")
	assert.False(t, permanent.Retryable)
	assert.Equal(t, ErrPermanentProvider, permanent.Code)
}

func TestGetErrorCode_PlainError(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ErrorCode(""), GetErrorCode(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}
