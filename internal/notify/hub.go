package notify

import (
	"context"
	"strconv"

	"github.com/dukerupert/daybook/internal/model"
)

// Publisher is the part of the change feed hub the notifier needs.
type Publisher interface {
	Publish(entity, action, id string, extra map[string]any)
}

// Hub pushes fired reminders onto the change feed as "reminder_fired".
type Hub struct {
	pub Publisher
}

func NewHub(pub Publisher) *Hub {
	return &Hub{pub: pub}
}

func (h *Hub) Notify(_ context.Context, a model.Alarm) error {
	p := PayloadFor(a)
	h.pub.Publish("reminder", "fired", strconv.FormatInt(int64(a.Key), 10), map[string]any{
		"kind":       string(a.Kind),
		"entity_id":  a.EntityID,
		"title":      p.Title,
		"body":       p.Body,
		"url":        p.URL,
		"trigger_at": a.TriggerAt,
	})
	return nil
}
