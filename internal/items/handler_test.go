package items

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swapmeet/marketplace/backend/internal/auth"
	"github.com/swapmeet/marketplace/backend/internal/response"
)

func (f *fixture) router() http.Handler {
	h := NewHandler(f.svc, response.Writer{Log: quietLog()})
	r := chi.NewRouter()
	r.Get("/api/items/{id}", h.Get)
	r.Get("/api/items/{id}/image", h.Image)
	r.Post("/api/items/{id}/image", h.UploadImage)
	return r
}

func asUser(req *http.Request, id int64) *http.Request {
	return req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{ID: id}))
}

func multipartImage(t *testing.T, contentType string, body []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="image"; filename="photo.jpg"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHandler_ImageRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.create(t, f.alice)
	router := f.router()
	jpeg := []byte("\xff\xd8\xff fake jpeg")

	body, ct := multipartImage(t, "image/jpeg", jpeg)
	req := httptest.NewRequest(http.MethodPost, "/api/items/1/image", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asUser(req, f.alice.ID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var env struct {
		Data struct {
			ImageURL string `json:"imageUrl"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "http://api.test/api/items/1/image", env.Data.ImageURL)
	assert.NotContains(t, rec.Body.String(), "imageKey")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items/1/image", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, jpeg, rec.Body.Bytes())
}

func TestHandler_UploadRejectsNonOwner(t *testing.T) {
	f := newFixture(t)
	f.create(t, f.alice)

	body, ct := multipartImage(t, "image/png", []byte("png"))
	req := httptest.NewRequest(http.MethodPost, "/api/items/1/image", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	f.router().ServeHTTP(rec, asUser(req, f.bob.ID))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, f.images.objects)
}

func TestHandler_GetBadAndMissingIDs(t *testing.T) {
	f := newFixture(t)
	router := f.router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items/77", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/items/77/image", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
