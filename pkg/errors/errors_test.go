package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorClassification(t *testing.T) {
	cause := stderrors.New("disk I/O error")

	tests := []struct {
		name       string
		err        error
		transient  bool
		schema     bool
		validation bool
		notFound   bool
	}{
		{name: "transient query", err: NewTransientQueryError("get_all_thoughts", cause), transient: true},
		{name: "unavailable counts as transient", err: NewUnavailableError("sqlite", cause), transient: true},
		{name: "schema mismatch", err: NewSchemaMismatchError("get_version", nil), schema: true},
		{name: "validation", err: NewValidationError("bad"), validation: true},
		{name: "not found", err: NewNotFoundError("thought t1"), notFound: true},
		{name: "wrapped with fmt", err: fmt.Errorf("reload: %w", NewTransientQueryError("x", cause)), transient: true},
		{name: "plain error", err: cause},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransient(tt.err))
			assert.Equal(t, tt.schema, IsSchemaMismatch(tt.err))
			assert.Equal(t, tt.validation, IsValidation(tt.err))
			assert.Equal(t, tt.notFound, IsNotFound(tt.err))
		})
	}
}

func TestWrapKeepsTypeAndOriginal(t *testing.T) {
	original := NewSchemaMismatchError("get_thoughts_near", nil)

	wrapped := Wrap(original, "windowed load")

	assert.True(t, IsSchemaMismatch(wrapped))
	assert.Contains(t, wrapped.Error(), "windowed load: backing store does not support")
	assert.Equal(t, "backing store does not support 'get_thoughts_near'", original.Message)
	assert.Nil(t, Wrap(nil, "noop"))
}

func TestWrapPlainErrorBecomesInternal(t *testing.T) {
	cause := stderrors.New("boom")

	wrapped := Wrap(cause, "building snapshot")

	assert.True(t, IsType(wrapped, ErrorTypeInternal))
	assert.ErrorIs(t, wrapped, cause)
}

func TestErrorHandlerStatus(t *testing.T) {
	h := NewErrorHandler(nil, false)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/thoughts/x", nil)
	h.Handle(rec, req, NewNotFoundError("thought x"))

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"type":"NOT_FOUND"`)

	rec = httptest.NewRecorder()
	h.Handle(rec, req, stderrors.New("secret detail"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret detail")
}
