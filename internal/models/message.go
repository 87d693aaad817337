package models

import "time"

// Message is a chat line scoped to an item. Timestamp is assigned by the
// store and is the only ordering key.
type Message struct {
	ID        int64        `json:"id"`
	Text      string       `json:"text"`
	UserID    int64        `json:"userId"`
	ItemID    int64        `json:"itemId"`
	Timestamp time.Time    `json:"timestamp"`
	User      *UserSummary `json:"user,omitempty"`
	Item      *ItemSummary `json:"item,omitempty"`
}

// ChatSummary is one entry of a user's chat list.
type ChatSummary struct {
	Item         Item     `json:"item"`
	IsOwner      bool     `json:"isOwner"`
	LastMessage  *Message `json:"lastMessage"`
	MessageCount int      `json:"messageCount"`
}

// SendRequest is the JSON body for POST /api/messages.
type SendRequest struct {
	ItemID  int64  `json:"itemId"`
	Message string `json:"message"`
	Text    string `json:"text"`
}

// Notification is the payload of a notify:<ownerId> event.
type Notification struct {
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	ItemID    int64     `json:"itemId"`
	ItemTitle string    `json:"itemTitle"`
	UserID    int64     `json:"userId"`
	UserName  string    `json:"userName"`
	Timestamp time.Time `json:"timestamp"`
}

// JournalEntry records a relay event for later diagnosis.
type JournalEntry struct {
	Kind    string    `json:"kind"    bson:"kind"`
	ItemID  int64     `json:"itemId"  bson:"item_id"`
	UserID  int64     `json:"userId"  bson:"user_id"`
	OwnerID int64     `json:"ownerId" bson:"owner_id,omitempty"`
	Text    string    `json:"text"    bson:"text"`
	Error   string    `json:"error,omitempty" bson:"error,omitempty"`
	At      time.Time `json:"at"      bson:"at"`
}
