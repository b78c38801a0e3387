package notify

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukerupert/daybook/internal/model"
	"github.com/dukerupert/daybook/internal/store"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// ErrExpired is returned when a push subscription is no longer valid (410 Gone).
var ErrExpired = errors.New("push subscription expired")

// ErrNoVAPIDKeys is reported by CheckPermission when web push is unconfigured.
var ErrNoVAPIDKeys = errors.New("web push VAPID keys not configured")

// WebPush sends reminders to every registered browser subscription.
type WebPush struct {
	subs       *store.PushStore
	publicKey  string
	privateKey string
	subscriber string
	client     *http.Client
	logger     *slog.Logger
}

func NewWebPush(subs *store.PushStore, publicKey, privateKey, subscriber string, logger *slog.Logger) *WebPush {
	if subscriber == "" {
		subscriber = "mailto:noreply@daybook.local"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebPush{
		subs:       subs,
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
		logger:     logger.With("component", "webpush"),
	}
}

// VAPIDPublicKey returns the VAPID public key for client-side subscription.
func (w *WebPush) VAPIDPublicKey() string {
	return w.publicKey
}

func (w *WebPush) CheckPermission(context.Context) error {
	if w.publicKey == "" || w.privateKey == "" {
		return ErrNoVAPIDKeys
	}
	return nil
}

// Notify sends to all subscriptions. Expired subscriptions are removed.
func (w *WebPush) Notify(ctx context.Context, a model.Alarm) error {
	if err := w.CheckPermission(ctx); err != nil {
		return err
	}
	subs, err := w.subs.List()
	if err != nil {
		return err
	}

	var errs []error
	for _, sub := range subs {
		err := w.Send(ctx, &sub, PayloadFor(a))
		switch {
		case errors.Is(err, ErrExpired):
			w.logger.Info("removing expired push subscription", "id", sub.ID, "device", sub.DeviceName)
			if err := w.subs.DeleteSubscription(sub.ID); err != nil {
				errs = append(errs, err)
			}
		case err != nil:
			errs = append(errs, fmt.Errorf("subscription %d: %w", sub.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Send sends a push notification to a subscription.
func (w *WebPush) Send(ctx context.Context, sub *model.PushSubscription, payload Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := webpush.SendNotificationWithContext(ctx, data, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dhKey,
			Auth:   sub.AuthKey,
		},
	}, &webpush.Options{
		HTTPClient:      w.client,
		VAPIDPublicKey:  w.publicKey,
		VAPIDPrivateKey: w.privateKey,
		Subscriber:      w.subscriber,
		TTL:             86400,
		Urgency:         webpush.UrgencyHigh,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		return ErrExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}

	return nil
}

// GenerateVAPIDKeys generates a new ECDSA P-256 key pair for VAPID.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ECDSA key: %w", err)
	}

	pub, err := key.PublicKey.ECDH()
	if err != nil {
		return "", "", fmt.Errorf("convert public key: %w", err)
	}
	publicKey = base64.RawURLEncoding.EncodeToString(pub.Bytes())
	privateKey = base64.RawURLEncoding.EncodeToString(key.D.FillBytes(make([]byte, 32)))

	return publicKey, privateKey, nil
}
