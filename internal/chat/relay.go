// Package chat implements the realtime relay and the message read path.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/swapmeet/marketplace/backend/internal/apperr"
	"github.com/swapmeet/marketplace/backend/internal/models"
)

// Event names on the wire.
const (
	EventJoinRoom          = "joinRoom"
	EventLeaveRoom         = "leaveRoom"
	EventSendMessage       = "sendMessage"
	EventReceiveMessage    = "receiveMessage"
	EventUserTyping        = "userTyping"
	EventUserStoppedTyping = "userStoppedTyping"
	EventError             = "error"
	notifyPrefix           = "notify:"

	// Outcomes recorded by Metrics.MessageSent.
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"

	// Journal entry kinds.
	KindSendFailed   = "send_failed"
	KindNotification = "notification"

	defaultBuffer  = 64
	journalTimeout = 2 * time.Second
)

// NotifyEvent returns the event name of a user's notification channel.
func NotifyEvent(userID int64) string {
	return notifyPrefix + strconv.FormatInt(userID, 10)
}

// Frame is the JSON envelope of every realtime message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// TypingPayload is relayed verbatim with the sender's connection id.
type TypingPayload struct {
	SocketID string          `json:"socketId"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// ErrorPayload is the data of an error event.
type ErrorPayload struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

// MessageStore defines the persistence the relay and read path need.
type MessageStore interface {
	CreateMessage(ctx context.Context, userID, itemID int64, text string) (*models.Message, error)
	ListMessages(ctx context.Context, itemID int64) ([]models.Message, error)
	ListUserChats(ctx context.Context, userID int64) ([]models.ChatSummary, error)
}

// Journal records send failures and notifications.
type Journal interface {
	Record(ctx context.Context, e models.JournalEntry) error
}

// Metrics receives relay counters.
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed()
	MessageSent(outcome string)
	NotificationSent()
	FrameDropped()
}

type nopMetrics struct{}

func (nopMetrics) ConnectionOpened()  {}
func (nopMetrics) ConnectionClosed()  {}
func (nopMetrics) MessageSent(string) {}
func (nopMetrics) NotificationSent()  {}
func (nopMetrics) FrameDropped()      {}

// Option configures a Relay.
type Option func(*Relay)

func WithFanout(f Fanout) Option   { return func(r *Relay) { r.fanout = f } }
func WithJournal(j Journal) Option { return func(r *Relay) { r.journal = j } }
func WithMetrics(m Metrics) Option { return func(r *Relay) { r.metrics = m } }

func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Relay) { r.log = l }
}

// WithBuffer sets the per-connection outbound queue size.
func WithBuffer(n int) Option { return func(r *Relay) { r.buffer = n } }

// Relay groups connections into item rooms, persists sent messages and
// fans them out. Delivery is best-effort: frames for a full queue are
// dropped and nothing is acknowledged.
type Relay struct {
	store   MessageStore
	rooms   *Rooms
	fanout  Fanout
	journal Journal
	metrics Metrics
	log     logrus.FieldLogger
	buffer  int
}

func NewRelay(store MessageStore, opts ...Option) (*Relay, error) {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	r := &Relay{
		store:   store,
		rooms:   NewRooms(),
		metrics: nopMetrics{},
		log:     discard,
		buffer:  defaultBuffer,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.fanout == nil {
		r.fanout = NewLocalFanout()
	}
	if err := r.fanout.Start(r.deliver); err != nil {
		return nil, fmt.Errorf("start fanout: %w", err)
	}
	return r, nil
}

// Rooms exposes the membership registry.
func (r *Relay) Rooms() *Rooms { return r.rooms }

// Attach registers a new connection. userID is 0 for anonymous clients.
func (r *Relay) Attach(userID int64) *Conn {
	c := newConn(userID, r.buffer)
	r.rooms.Add(c)
	r.metrics.ConnectionOpened()
	r.log.WithFields(logrus.Fields{"conn": c.ID, "user_id": userID}).Debug("relay: connected")
	return c
}

// Detach drops every membership of c and closes its queue.
func (r *Relay) Detach(c *Conn) {
	if !r.rooms.Remove(c) {
		return
	}
	c.close()
	r.metrics.ConnectionClosed()
	r.log.WithField("conn", c.ID).Debug("relay: disconnected")
}

// Join and Leave are idempotent and never fail.
func (r *Relay) Join(c *Conn, room string)  { r.rooms.Join(room, c) }
func (r *Relay) Leave(c *Conn, room string) { r.rooms.Leave(room, c) }

// Close detaches every connection and stops the fan-out.
func (r *Relay) Close() error {
	for _, c := range r.rooms.All() {
		r.Detach(c)
	}
	return r.fanout.Close()
}

func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

// deliver runs on every instance for every published delivery.
func (r *Relay) deliver(d Delivery) {
	var targets []*Conn
	switch {
	case d.Room != "":
		targets = r.rooms.Members(d.Room)
	case d.Owner != 0:
		for _, c := range r.rooms.All() {
			if c.UserID == d.Owner || c.UserID == 0 {
				targets = append(targets, c)
			}
		}
	case d.All:
		targets = r.rooms.All()
	}

	for _, c := range targets {
		if c.ID == d.Except {
			continue
		}
		if !c.enqueue(d.Frame) {
			r.metrics.FrameDropped()
			r.log.WithField("conn", c.ID).Warn("relay: outbound queue full, frame dropped")
		}
	}
}

func (r *Relay) publish(ctx context.Context, d Delivery) {
	if err := r.fanout.Publish(ctx, d); err != nil {
		r.log.WithError(err).Error("relay: publish failed")
	}
}

// SendError queues an error event for c only.
func (r *Relay) SendError(c *Conn, err error) {
	if c == nil {
		return
	}
	p := ErrorPayload{Message: "Failed to send message"}
	if e, ok := apperr.As(err); ok && e.Kind != apperr.KindInternal {
		p.Message = e.Message
		p.Errors = e.Errors
	}
	frame, mErr := encode(EventError, p)
	if mErr != nil {
		return
	}
	if !c.enqueue(frame) {
		r.metrics.FrameDropped()
	}
}

func (r *Relay) record(e models.JournalEntry) {
	if r.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalTimeout)
	defer cancel()
	if err := r.journal.Record(ctx, e); err != nil {
		r.log.WithError(err).WithField("kind", e.Kind).Warn("relay: journal write failed")
	}
}

// Send persists a message authored by authorID, then broadcasts it to the
// item's room and notifies the owner when the author is someone else.
// When from is non-nil any failure is also reported to it as one error
// event; nothing is broadcast and the write is not retried.
func (r *Relay) Send(ctx context.Context, from *Conn, authorID int64, req models.SendRequest) (*models.Message, error) {
	text := req.Message
	if strings.TrimSpace(text) == "" {
		text = req.Text
	}
	text = strings.TrimSpace(text)

	var c apperr.Collector
	c.Check(authorID > 0, "userId is required")
	c.Check(req.ItemID > 0, "itemId is required")
	c.Check(text != "", "Message text is required")
	if err := c.Err(); err != nil {
		r.metrics.MessageSent(OutcomeFailed)
		r.SendError(from, err)
		return nil, err
	}

	msg, err := r.store.CreateMessage(ctx, authorID, req.ItemID, text)
	if err != nil {
		fields := logrus.Fields{"user_id": authorID, "item_id": req.ItemID}
		if from != nil {
			fields["conn"] = from.ID
		}
		r.log.WithError(err).WithFields(fields).Error("relay: failed to persist message")
		r.metrics.MessageSent(OutcomeFailed)
		r.SendError(from, err)
		r.record(models.JournalEntry{
			Kind:   KindSendFailed,
			ItemID: req.ItemID,
			UserID: authorID,
			Text:   text,
			Error:  err.Error(),
			At:     time.Now().UTC(),
		})
		return nil, fmt.Errorf("send message: %w", err)
	}

	frame, err := encode(EventReceiveMessage, msg)
	if err != nil {
		return nil, apperr.Internal("encode message", err)
	}
	r.publish(ctx, Delivery{Room: RoomName(msg.ItemID), Frame: frame})
	r.metrics.MessageSent(OutcomeDelivered)

	if msg.Item != nil && msg.Item.OwnerID != msg.UserID {
		r.notify(ctx, msg)
	}
	return msg, nil
}

func (r *Relay) notify(ctx context.Context, msg *models.Message) {
	n := models.Notification{
		Title:     "New message",
		ItemID:    msg.ItemID,
		ItemTitle: msg.Item.Title,
		UserID:    msg.UserID,
		Timestamp: msg.Timestamp,
	}
	if msg.User != nil {
		n.UserName = msg.User.Name
	}
	n.Body = fmt.Sprintf("%s sent a message about %q", displayName(n.UserName), msg.Item.Title)

	frame, err := encode(NotifyEvent(msg.Item.OwnerID), n)
	if err != nil {
		r.log.WithError(err).Error("relay: encode notification")
		return
	}
	r.publish(ctx, Delivery{Owner: msg.Item.OwnerID, Frame: frame})
	r.metrics.NotificationSent()
	r.record(models.JournalEntry{
		Kind:    KindNotification,
		ItemID:  msg.ItemID,
		UserID:  msg.UserID,
		OwnerID: msg.Item.OwnerID,
		Text:    msg.Text,
		At:      time.Now().UTC(),
	})
}

func displayName(name string) string {
	if name == "" {
		return "Someone"
	}
	return name
}

// Typing relays a typing event to every connection except from.
func (r *Relay) Typing(ctx context.Context, from *Conn, event string, data json.RawMessage) error {
	if event != EventUserTyping && event != EventUserStoppedTyping {
		return errors.New("not a typing event")
	}
	frame, err := encode(event, TypingPayload{SocketID: from.ID, Data: data})
	if err != nil {
		return err
	}
	r.publish(ctx, Delivery{All: true, Except: from.ID, Frame: frame})
	return nil
}
