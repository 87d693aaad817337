package chat

import (
	"context"
	"fmt"

	"github.com/swapmeet/marketplace/backend/internal/models"
)

// GetMessages returns an item's messages oldest first. An unknown item
// yields an empty list.
func (r *Relay) GetMessages(ctx context.Context, itemID int64) ([]models.Message, error) {
	msgs, err := r.store.ListMessages(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// GetUserChats returns every item the user owns or has written about,
// newest item first.
func (r *Relay) GetUserChats(ctx context.Context, userID int64) ([]models.ChatSummary, error) {
	chats, err := r.store.ListUserChats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	return chats, nil
}
