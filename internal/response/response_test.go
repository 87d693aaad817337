package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swapmeet/marketplace/backend/internal/apperr"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestErrorMapsTaxonomy(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/items", nil)

	Writer{}.Error(rec, req, apperr.Validation("a", "b"))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec)
	assert.False(t, env.Success)
	assert.Equal(t, []string{"a", "b"}, env.Errors)
}

func TestErrorHidesInternalDetail(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rec := httptest.NewRecorder()
	Writer{}.Error(rec, req, errors.New("pq: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", decode(t, rec).Message)

	rec = httptest.NewRecorder()
	Writer{Debug: true}.Error(rec, req, errors.New("pq: connection refused"))
	assert.Equal(t, "pq: connection refused", decode(t, rec).Message)
}

func TestDecodeRejectsMalformedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	var v map[string]any
	err := Decode(req, &v)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestOKOmitsErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, "fine", map[string]int{"n": 1})
	assert.JSONEq(t, `{"success":true,"message":"fine","data":{"n":1}}`, rec.Body.String())
}
