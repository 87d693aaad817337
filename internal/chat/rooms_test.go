package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRooms(t *testing.T) {
	r := NewRooms()
	a, b := newConn(1, 1), newConn(2, 1)
	r.Add(a)
	r.Add(b)

	r.Join("item-1", a)
	r.Join("item-1", b)
	r.Join("item-2", a)
	r.Leave("item-9", a)

	assert.ElementsMatch(t, []*Conn{a, b}, r.Members("item-1"))
	assert.ElementsMatch(t, []string{"item-1", "item-2"}, r.Joined(a))

	r.Leave("item-1", a)
	r.Leave("item-1", a)
	assert.Equal(t, []*Conn{b}, r.Members("item-1"))

	assert.True(t, r.Remove(a))
	assert.False(t, r.Remove(a))
	assert.Empty(t, r.Members("item-2"))
	assert.Equal(t, 1, r.Len())

	stranger := newConn(3, 1)
	r.Join("item-1", stranger)
	assert.Len(t, r.Members("item-1"), 1, "unregistered connections cannot join")
}

func TestRoomName(t *testing.T) {
	assert.Equal(t, "item-42", RoomName(42))
	assert.Equal(t, "notify:7", NotifyEvent(7))
}
