// Package items implements the listing store: CRUD over items with
// ownership checks and optional image storage.
package items

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/swapmeet/marketplace/backend/internal/apperr"
	"github.com/swapmeet/marketplace/backend/internal/models"
)

const (
	minTitleLen       = 3
	minDescriptionLen = 10

	// MaxImageSize bounds uploaded item images.
	MaxImageSize = 5 << 20

	msgTitle       = "Title must be at least 3 characters long"
	msgDescription = "Description must be at least 10 characters long"
	msgPrice       = "Price must be a non-negative number"
	msgImageURL    = "Image URL must be a valid http(s) URL"
)

// ErrImagesDisabled is returned when no object store is configured.
var ErrImagesDisabled = errors.New("image storage not configured")

// Store defines the interface for item persistence. GetItem and UpdateItem
// return (nil, nil) for unknown ids.
type Store interface {
	CreateItem(ctx context.Context, it *models.Item) (*models.Item, error)
	ListItems(ctx context.Context, f models.ItemFilter) ([]models.Item, error)
	GetItem(ctx context.Context, id int64) (*models.Item, error)
	UpdateItem(ctx context.Context, it *models.Item) (*models.Item, error)
	DeleteItem(ctx context.Context, id int64) error
}

// ImageStore defines the interface for image object storage.
type ImageStore interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, string, int64, error)
	Remove(ctx context.Context, key string) error
}

type Service struct {
	store     Store
	images    ImageStore
	publicURL string
	log       logrus.FieldLogger
}

// NewService builds the listing service. images may be nil.
func NewService(store Store, images ImageStore, publicURL string, log logrus.FieldLogger) *Service {
	return &Service{store: store, images: images, publicURL: strings.TrimRight(publicURL, "/"), log: log}
}

// ImagesEnabled reports whether an object store is configured.
func (s *Service) ImagesEnabled() bool { return s.images != nil }

func validTitle(s string) bool       { return len([]rune(strings.TrimSpace(s))) >= minTitleLen }
func validDescription(s string) bool { return len([]rune(strings.TrimSpace(s))) >= minDescriptionLen }

func validPrice(p *float64) bool {
	return p != nil && *p >= 0 && !math.IsNaN(*p) && !math.IsInf(*p, 0)
}

func validImageURL(s string) bool {
	if s == "" {
		return true
	}
	u, err := url.ParseRequestURI(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Create validates every field and stores a new item owned by ownerID.
func (s *Service) Create(ctx context.Context, in models.ItemInput, ownerID int64) (*models.Item, error) {
	var c apperr.Collector
	c.Check(validTitle(in.Title), msgTitle)
	c.Check(validDescription(in.Description), msgDescription)
	c.Check(validPrice(in.Price), msgPrice)
	c.Check(validImageURL(strings.TrimSpace(in.ImageURL)), msgImageURL)
	if err := c.Err(); err != nil {
		return nil, err
	}

	available := true
	if in.Available != nil {
		available = *in.Available
	}
	it, err := s.store.CreateItem(ctx, &models.Item{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Price:       *in.Price,
		Available:   available,
		ImageURL:    strings.TrimSpace(in.ImageURL),
		OwnerID:     ownerID,
	})
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	return it, nil
}

// List returns items newest first.
func (s *Service) List(ctx context.Context, f models.ItemFilter) ([]models.Item, error) {
	items, err := s.store.ListItems(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

// Get returns the item or nil when it does not exist.
func (s *Service) Get(ctx context.Context, id int64) (*models.Item, error) {
	it, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return it, nil
}

// owned loads an item and checks existence before ownership.
func (s *Service) owned(ctx context.Context, id, requesterID int64, action string) (*models.Item, error) {
	it, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, apperr.NotFound("Item not found")
	}
	if it.OwnerID != requesterID {
		return nil, apperr.Forbidden("You can only " + action + " your own items")
	}
	return it, nil
}

// Update applies a partial patch. Concurrent updates are last-write-wins.
func (s *Service) Update(ctx context.Context, id int64, p models.ItemPatch, requesterID int64) (*models.Item, error) {
	var c apperr.Collector
	if p.Title != nil {
		c.Check(validTitle(*p.Title), msgTitle)
	}
	if p.Description != nil {
		c.Check(validDescription(*p.Description), msgDescription)
	}
	if p.Price != nil {
		c.Check(validPrice(p.Price), msgPrice)
	}
	if p.ImageURL != nil {
		c.Check(validImageURL(strings.TrimSpace(*p.ImageURL)), msgImageURL)
	}

	it, err := s.owned(ctx, id, requesterID, "update")
	if err != nil {
		return nil, err
	}
	if err := c.Err(); err != nil {
		return nil, err
	}

	if p.Title != nil {
		it.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		it.Description = strings.TrimSpace(*p.Description)
	}
	if p.Price != nil {
		it.Price = *p.Price
	}
	if p.Available != nil {
		it.Available = *p.Available
	}
	if p.ImageURL != nil {
		it.ImageURL = strings.TrimSpace(*p.ImageURL)
	}

	updated, err := s.store.UpdateItem(ctx, it)
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	if updated == nil {
		return nil, apperr.NotFound("Item not found")
	}
	return updated, nil
}

// Delete removes an owned item along with its stored image.
func (s *Service) Delete(ctx context.Context, id, requesterID int64) error {
	it, err := s.owned(ctx, id, requesterID, "delete")
	if err != nil {
		return err
	}
	if err := s.store.DeleteItem(ctx, id); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	s.removeImage(ctx, it.ImageKey)
	return nil
}

func (s *Service) removeImage(ctx context.Context, key string) {
	if key == "" || s.images == nil {
		return
	}
	if err := s.images.Remove(ctx, key); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("image cleanup failed")
	}
}

// SetImage uploads an image for an owned item and points imageUrl at it.
func (s *Service) SetImage(ctx context.Context, id, requesterID int64, r io.Reader, size int64, contentType, filename string) (*models.Item, error) {
	if s.images == nil {
		return nil, ErrImagesDisabled
	}
	it, err := s.owned(ctx, id, requesterID, "update")
	if err != nil {
		return nil, err
	}

	var c apperr.Collector
	c.Check(strings.HasPrefix(contentType, "image/"), "File must be an image")
	c.Check(size > 0 && size <= MaxImageSize, "Image must be between 1 byte and 5 MB")
	if err := c.Err(); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("items/%d/%s%s", id, uuid.NewString(), strings.ToLower(path.Ext(filename)))
	if err := s.images.Upload(ctx, key, r, size, contentType); err != nil {
		return nil, apperr.Internal("upload image", err)
	}

	oldKey := it.ImageKey
	it.ImageKey = key
	it.ImageURL = s.publicURL + "/api/items/" + strconv.FormatInt(id, 10) + "/image"
	updated, err := s.store.UpdateItem(ctx, it)
	if err != nil {
		s.removeImage(ctx, key)
		return nil, fmt.Errorf("set image: %w", err)
	}
	if updated == nil {
		s.removeImage(ctx, key)
		return nil, apperr.NotFound("Item not found")
	}
	s.removeImage(ctx, oldKey)
	return updated, nil
}

// OpenImage returns a reader over an item's stored image.
func (s *Service) OpenImage(ctx context.Context, id int64) (io.ReadCloser, string, int64, error) {
	if s.images == nil {
		return nil, "", 0, ErrImagesDisabled
	}
	it, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", 0, err
	}
	if it == nil || it.ImageKey == "" {
		return nil, "", 0, apperr.NotFound("Image not found")
	}
	rc, ct, size, err := s.images.Open(ctx, it.ImageKey)
	if err != nil {
		if _, ok := apperr.As(err); ok {
			return nil, "", 0, err
		}
		return nil, "", 0, apperr.Internal("open image", err)
	}
	return rc, ct, size, nil
}
