package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/swapmeet/marketplace/backend/internal/apperr"
	"github.com/swapmeet/marketplace/backend/internal/models"
)

// MemoryStore keeps users, items and messages in process memory. It enforces
// the same unique, foreign key and cascade rules as the Postgres schema.
type MemoryStore struct {
	mu       sync.RWMutex
	users    map[int64]models.User
	items    map[int64]models.Item
	messages []models.Message
	seq      struct{ user, item, message int64 }
	last     time.Time
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[int64]models.User),
		items: make(map[int64]models.Item),
		now:   time.Now,
	}
}

// stamp returns a strictly increasing timestamp. Callers hold mu.
func (s *MemoryStore) stamp() time.Time {
	t := s.now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

// ── Users ────────────────────────────────────────────────────

func (s *MemoryStore) emailTaken(email string, except int64) bool {
	for id, u := range s.users {
		if id != except && u.Email == email {
			return true
		}
	}
	return false
}

func (s *MemoryStore) CreateUser(_ context.Context, name, email, hashedPassword, role string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.emailTaken(email, 0) {
		return nil, apperr.Conflict("Email is already registered")
	}
	s.seq.user++
	u := models.User{
		ID:        s.seq.user,
		Name:      name,
		Email:     email,
		Password:  hashedPassword,
		Role:      role,
		CreatedAt: s.stamp(),
	}
	s.users[u.ID] = u
	return &u, nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (s *MemoryStore) UpdateUserProfile(_ context.Context, id int64, name, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	if s.emailTaken(email, id) {
		return nil, apperr.Conflict("Email is already registered")
	}
	u.Name, u.Email = name, email
	s.users[id] = u
	return &u, nil
}

func (s *MemoryStore) UpdateUserPassword(_ context.Context, id int64, hashedPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return apperr.NotFound("User not found")
	}
	u.Password = hashedPassword
	s.users[id] = u
	return nil
}

// DeleteUser removes the user with their items and every message on or by them.
func (s *MemoryStore) DeleteUser(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return false, nil
	}
	delete(s.users, id)

	owned := make(map[int64]bool)
	for itemID, it := range s.items {
		if it.OwnerID == id {
			owned[itemID] = true
			delete(s.items, itemID)
		}
	}
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.UserID == id || owned[m.ItemID] {
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept
	return true, nil
}

// ── Items ────────────────────────────────────────────────────

func (s *MemoryStore) withOwner(it models.Item) models.Item {
	if u, ok := s.users[it.OwnerID]; ok {
		it.Owner = &models.UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
	}
	return it
}

func (s *MemoryStore) CreateItem(_ context.Context, in *models.Item) (*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[in.OwnerID]; !ok {
		return nil, apperr.NotFound("User not found")
	}
	s.seq.item++
	it := *in
	it.ID = s.seq.item
	it.Owner = nil
	it.CreatedAt = s.stamp()
	s.items[it.ID] = it

	out := s.withOwner(it)
	return &out, nil
}

func (s *MemoryStore) ListItems(_ context.Context, f models.ItemFilter) ([]models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(f.Query))
	items := []models.Item{}
	for _, it := range s.items {
		if q != "" && !strings.Contains(strings.ToLower(it.Title), q) &&
			!strings.Contains(strings.ToLower(it.Description), q) {
			continue
		}
		if f.Available != nil && it.Available != *f.Available {
			continue
		}
		if f.OwnerID != 0 && it.OwnerID != f.OwnerID {
			continue
		}
		items = append(items, s.withOwner(it))
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}

func (s *MemoryStore) GetItem(_ context.Context, id int64) (*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	out := s.withOwner(it)
	return &out, nil
}

func (s *MemoryStore) UpdateItem(_ context.Context, in *models.Item) (*models.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[in.ID]
	if !ok {
		return nil, nil
	}
	it.Title = in.Title
	it.Description = in.Description
	it.Price = in.Price
	it.Available = in.Available
	it.ImageURL = in.ImageURL
	it.ImageKey = in.ImageKey
	s.items[it.ID] = it

	out := s.withOwner(it)
	return &out, nil
}

func (s *MemoryStore) DeleteItem(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, id)
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.ItemID != id {
			kept = append(kept, m)
		}
	}
	s.messages = kept
	return nil
}

// ── Messages ─────────────────────────────────────────────────

func (s *MemoryStore) enrich(m models.Message) models.Message {
	if u, ok := s.users[m.UserID]; ok {
		m.User = &models.UserSummary{ID: u.ID, Name: u.Name, Email: u.Email}
	}
	return m
}

func (s *MemoryStore) CreateMessage(_ context.Context, userID, itemID int64, text string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[itemID]
	if !ok {
		return nil, apperr.NotFound("Item not found")
	}
	if _, ok := s.users[userID]; !ok {
		return nil, apperr.NotFound("User not found")
	}
	s.seq.message++
	m := models.Message{
		ID:        s.seq.message,
		Text:      text,
		UserID:    userID,
		ItemID:    itemID,
		Timestamp: s.stamp(),
	}
	s.messages = append(s.messages, m)

	out := s.enrich(m)
	out.Item = &models.ItemSummary{ID: it.ID, Title: it.Title, OwnerID: it.OwnerID}
	return &out, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, itemID int64) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := []models.Message{}
	for _, m := range s.messages {
		if m.ItemID == itemID {
			msgs = append(msgs, s.enrich(m))
		}
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	return msgs, nil
}

func (s *MemoryStore) ListUserChats(_ context.Context, userID int64) ([]models.ChatSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type agg struct {
		count int
		last  *models.Message
		wrote bool
	}
	per := make(map[int64]*agg)
	for i := range s.messages {
		m := s.messages[i]
		a := per[m.ItemID]
		if a == nil {
			a = &agg{}
			per[m.ItemID] = a
		}
		a.count++
		if a.last == nil || !m.Timestamp.Before(a.last.Timestamp) {
			e := s.enrich(m)
			a.last = &e
		}
		if m.UserID == userID {
			a.wrote = true
		}
	}

	chats := []models.ChatSummary{}
	for id, it := range s.items {
		a := per[id]
		if it.OwnerID != userID && (a == nil || !a.wrote) {
			continue
		}
		cs := models.ChatSummary{Item: it, IsOwner: it.OwnerID == userID}
		cs.Item.ImageKey = ""
		if a != nil {
			cs.MessageCount = a.count
			cs.LastMessage = a.last
		}
		chats = append(chats, cs)
	}
	sort.Slice(chats, func(i, j int) bool {
		if chats[i].Item.CreatedAt.Equal(chats[j].Item.CreatedAt) {
			return chats[i].Item.ID > chats[j].Item.ID
		}
		return chats[i].Item.CreatedAt.After(chats[j].Item.CreatedAt)
	})
	return chats, nil
}
