package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassString(t *testing.T) {
	assert.Equal(t, "transient", ErrorTransient.String())
	assert.Equal(t, "invalid", ErrorInvalid.String())
	assert.Equal(t, "fatal", ErrorFatal.String())
	assert.Equal(t, "unknown", ErrorClass(42).String())
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "C", "M", "a"))
	assert.NoError(t, WrapTransient(nil, "C", "M", "a"))
	assert.NoError(t, WrapInvalid(nil, "C", "M", "a"))
	assert.NoError(t, WrapFatal(nil, "C", "M", "a"))
}

func TestWrapFormatsContext(t *testing.T) {
	base := errors.New("boom")
	err := Wrap(base, "Output", "Start", "socket bind")
	require.Error(t, err)
	assert.Equal(t, "Output.Start: socket bind failed: boom", err.Error())
	assert.ErrorIs(t, err, base)
}

func TestClassifiedWrappersPreserveChain(t *testing.T) {
	base := ErrMissingHost
	err := WrapInvalid(base, "Config", "Validate", "address parsing")

	var ce *ClassifiedError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrorInvalid, ce.Class)
	assert.Equal(t, "Config", ce.Component)
	assert.ErrorIs(t, err, ErrMissingHost)
}

func TestClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"wrapped transient", WrapTransient(errors.New("x"), "C", "M", "a"), ErrorTransient},
		{"wrapped invalid", WrapInvalid(errors.New("x"), "C", "M", "a"), ErrorInvalid},
		{"wrapped fatal", WrapFatal(errors.New("x"), "C", "M", "a"), ErrorFatal},
		{"missing host sentinel", fmt.Errorf("parse: %w", ErrMissingHost), ErrorInvalid},
		{"missing port sentinel", fmt.Errorf("parse: %w", ErrMissingPort), ErrorInvalid},
		{"send failed sentinel", fmt.Errorf("udp: %w", ErrSendFailed), ErrorFatal},
		{"context deadline", context.DeadlineExceeded, ErrorTransient},
		{"unknown defaults to transient", errors.New("mystery"), ErrorTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestIsTransientPatternFallback(t *testing.T) {
	assert.True(t, IsTransient(errors.New("i/o timeout")))
	assert.True(t, IsTransient(errors.New("service unavailable")))
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("no such host at all")))
}

func TestClassifiedErrorMessage(t *testing.T) {
	ce := &ClassifiedError{Class: ErrorFatal, Err: errors.New("inner")}
	assert.Equal(t, "inner", ce.Error())

	ce.Message = "outer context"
	assert.Equal(t, "outer context", ce.Error())
	assert.Equal(t, "inner", ce.Unwrap().Error())
}
