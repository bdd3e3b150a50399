package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportErrorMessage(t *testing.T) {
	err := NewTransportError("smtp", "submit_failed", "relay refused")
	assert.Equal(t, "transport smtp error [submit_failed]: relay refused", err.Error())

	apiErr := &TransportError{Transport: "sendgrid", Code: "api_error", Message: "quota", StatusCode: 429}
	assert.Equal(t, "transport sendgrid error [api_error] (status: 429): quota", apiErr.Error())
}

func TestTransportErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewTemporaryTransportError("smtp", "connect_failed", "dial failed", cause)

	assert.True(t, errors.Is(err, cause))
	assert.True(t, err.Temporary)
}

func TestDeliveryFailedUnwrapsBothSides(t *testing.T) {
	primary := NewTemporaryTransportError("smtp", "connect_failed", "down", errors.New("dial tcp"))
	fallback := NewTransportError("sendgrid", "api_error", "401")
	err := &DeliveryFailedError{Primary: primary, Fallback: fallback}

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.True(t, errors.Is(err, primary))
	assert.True(t, errors.Is(err, fallback))
	assert.Contains(t, err.Error(), "primary:")
	assert.Contains(t, err.Error(), "fallback:")
}

func TestErrorPredicates(t *testing.T) {
	te := NewTemporaryTransportError("smtp", "timeout", "deadline", nil)
	wrapped := fmt.Errorf("handler: %w", te)

	assert.True(t, IsTransportError(wrapped))
	assert.True(t, IsTemporary(wrapped))
	assert.False(t, IsTemporary(NewTransportError("smtp", "auth", "bad credentials")))
	assert.False(t, IsTransportError(errors.New("plain")))

	dfe := &DeliveryFailedError{Primary: te, Fallback: te}
	assert.True(t, IsDeliveryFailed(dfe))
	assert.False(t, IsDeliveryFailed(te))
}

func TestValidationErrorIs(t *testing.T) {
	err := fmt.Errorf("reject: %w", &ValidationError{Field: "to", Message: "missing"})
	assert.True(t, errors.Is(err, &ValidationError{}))
}
