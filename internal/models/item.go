package models

import "time"

// Item is a listing posted by a user. OwnerID never changes after creation.
type Item struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Price       float64      `json:"price"`
	Available   bool         `json:"available"`
	ImageURL    string       `json:"imageUrl,omitempty"`
	ImageKey    string       `json:"-"`
	OwnerID     int64        `json:"ownerId"`
	Owner       *UserSummary `json:"owner,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// ItemSummary is the item projection attached to messages.
type ItemSummary struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	OwnerID int64  `json:"ownerId"`
}

// ItemInput is the JSON body for POST /api/items.
type ItemInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Price       *float64 `json:"price"`
	Available   *bool    `json:"available"`
	ImageURL    string   `json:"imageUrl"`
}

// ItemPatch is the JSON body for PUT /api/items/{id}. Nil fields are left untouched.
type ItemPatch struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	Available   *bool    `json:"available"`
	ImageURL    *string  `json:"imageUrl"`
}

// ItemFilter narrows item listings.
type ItemFilter struct {
	Query     string
	Available *bool
	OwnerID   int64
}
