// Package notify holds the dismissible notices a widget raises outside its
// result area.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/extractdesk/backend/internal/models"
)

// DefaultCapacity bounds how many undismissed notices a widget keeps.
const DefaultCapacity = 20

var messages = map[models.NotificationKind]string{
	models.NotifyNoFileSelected: "Please select a file first",
	models.NotifyUploadFailed:   "Error uploading file",
}

// Message returns the user-facing text for a notification kind.
func Message(kind models.NotificationKind) string {
	return messages[kind]
}

// Center is a bounded, ordered list of notifications. Oldest entries are
// dropped once capacity is reached.
type Center struct {
	mu       sync.Mutex
	items    []models.Notification
	capacity int
}

// NewCenter creates a notification center. A non-positive capacity uses
// DefaultCapacity.
func NewCenter(capacity int) *Center {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Center{capacity: capacity}
}

// Push records a notification of the given kind and returns it.
func (c *Center) Push(kind models.NotificationKind) models.Notification {
	n := models.Notification{
		ID:        uuid.New().String(),
		Kind:      kind,
		Message:   Message(kind),
		CreatedAt: time.Now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = append(c.items, n)
	if over := len(c.items) - c.capacity; over > 0 {
		c.items = append([]models.Notification(nil), c.items[over:]...)
	}
	return n
}

// Dismiss removes a notification. It reports whether the ID was present.
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, n := range c.items {
		if n.ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

// List returns a copy of the pending notifications, oldest first.
func (c *Center) List() []models.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.Notification, len(c.items))
	copy(out, c.items)
	return out
}

// Count returns how many notifications of kind are pending.
func (c *Center) Count(kind models.NotificationKind) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, item := range c.items {
		if item.Kind == kind {
			n++
		}
	}
	return n
}
