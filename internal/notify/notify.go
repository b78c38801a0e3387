// Package notify delivers fired reminders to the places a user can see them.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukerupert/daybook/internal/model"
)

// Notifier delivers a fired reminder.
type Notifier interface {
	Notify(ctx context.Context, a model.Alarm) error
}

// PermissionChecker reports whether a notifier can currently deliver.
type PermissionChecker interface {
	CheckPermission(ctx context.Context) error
}

// Payload is the user-facing form of a fired alarm shared by all sinks.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// PayloadFor builds the payload for an alarm. The tag collapses repeated
// deliveries of the same key on clients that support it.
func PayloadFor(a model.Alarm) Payload {
	return Payload{
		Title: a.Title,
		Body:  a.Body,
		URL:   fmt.Sprintf("/%ss/%s", a.Kind, a.EntityID),
		Tag:   fmt.Sprintf("%s-%d", a.Kind, a.Key),
	}
}

// Multi fans an alarm out to every notifier.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, a model.Alarm) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CheckPermission fails if any member that can check reports a problem.
func (m Multi) CheckPermission(ctx context.Context) error {
	var errs []error
	for _, n := range m {
		if pc, ok := n.(PermissionChecker); ok {
			if err := pc.CheckPermission(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
