package apperr

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{"validation", Validation("x"), http.StatusBadRequest},
		{"auth", Auth("x"), http.StatusUnauthorized},
		{"forbidden", Forbidden("x"), http.StatusForbidden},
		{"not found", NotFound("x"), http.StatusNotFound},
		{"conflict", Conflict("x"), http.StatusConflict},
		{"internal", Internal("x", nil), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Status())
		})
	}
}

func TestAsUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("update item: %w", Forbidden("nope"))

	e, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindForbidden, e.Kind)
	assert.True(t, Is(wrapped, KindForbidden))
	assert.False(t, Is(wrapped, KindNotFound))
}

func TestCollectorReportsEveryViolation(t *testing.T) {
	var c Collector
	c.Check(false, "a")
	c.Check(true, "b")
	c.Check(false, "c")

	e, ok := As(c.Err())
	require.True(t, ok)
	assert.Equal(t, []string{"a", "c"}, e.Errors)

	var empty Collector
	assert.NoError(t, empty.Err())
}
