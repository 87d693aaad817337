package items

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/swapmeet/marketplace/backend/internal/auth"
	"github.com/swapmeet/marketplace/backend/internal/models"
	"github.com/swapmeet/marketplace/backend/internal/response"
)

// Handler holds item HTTP handlers.
type Handler struct {
	svc  *Service
	errs response.Writer
}

func NewHandler(svc *Service, errs response.Writer) *Handler {
	return &Handler{svc: svc, errs: errs}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrImagesDisabled) {
		response.Fail(w, http.StatusServiceUnavailable, "Image storage not configured")
		return
	}
	h.errs.Error(w, r, err)
}

// List returns all items, newest first. Supports ?q= and ?available=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	f := models.ItemFilter{Query: r.URL.Query().Get("q")}
	if v := r.URL.Query().Get("available"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			response.Fail(w, http.StatusBadRequest, "available must be true or false")
			return
		}
		f.Available = &b
	}
	items, err := h.svc.List(r.Context(), f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, "Items retrieved successfully", items)
}

// Mine returns the caller's own items.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context(), models.ItemFilter{OwnerID: auth.UserID(r.Context())})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, "Items retrieved successfully", items)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		response.Fail(w, http.StatusBadRequest, "Invalid item id")
		return
	}
	it, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if it == nil {
		response.Fail(w, http.StatusNotFound, "Item not found")
		return
	}
	response.OK(w, "Item retrieved successfully", it)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in models.ItemInput
	if err := response.Decode(r, &in); err != nil {
		h.fail(w, r, err)
		return
	}
	it, err := h.svc.Create(r.Context(), in, auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Created(w, "Item created successfully", it)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		response.Fail(w, http.StatusBadRequest, "Invalid item id")
		return
	}
	var p models.ItemPatch
	if err := response.Decode(r, &p); err != nil {
		h.fail(w, r, err)
		return
	}
	it, err := h.svc.Update(r.Context(), id, p, auth.UserID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, "Item updated successfully", it)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		response.Fail(w, http.StatusBadRequest, "Invalid item id")
		return
	}
	if err := h.svc.Delete(r.Context(), id, auth.UserID(r.Context())); err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, "Item deleted successfully", nil)
}

// UploadImage accepts a multipart "image" field.
func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		response.Fail(w, http.StatusBadRequest, "Invalid item id")
		return
	}
	if !h.svc.ImagesEnabled() {
		h.fail(w, r, ErrImagesDisabled)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxImageSize+1<<20)
	file, header, err := r.FormFile("image")
	if err != nil {
		response.Fail(w, http.StatusBadRequest, "An image file is required", err.Error())
		return
	}
	defer file.Close()

	it, err := h.svc.SetImage(r.Context(), id, auth.UserID(r.Context()), file, header.Size,
		header.Header.Get("Content-Type"), header.Filename)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.OK(w, "Image uploaded successfully", it)
}

// Image streams the stored image.
func (h *Handler) Image(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		response.Fail(w, http.StatusBadRequest, "Invalid item id")
		return
	}
	rc, ct, size, err := h.svc.OpenImage(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	io.Copy(w, rc)
}
