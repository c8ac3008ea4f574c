package push

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tariel-x/lookbook/internal/config"

	"github.com/SherClockHolmes/webpush-go"
)

// Target is what a transport needs to reach one browser.
type Target struct {
	Endpoint string
	P256DH   string
	Auth     string
}

// Transport delivers one encrypted payload and reports the push service
// status. A non-nil error means no status was obtained.
type Transport interface {
	Deliver(ctx context.Context, target Target, payload []byte) (int, error)
}

// WebPushTransport signs every request with the VAPID key pair. webpush-go
// adds the mailto: scheme itself, so the subject is passed without it.
type WebPushTransport struct {
	keys    config.VAPIDKeys
	ttl     int
	urgency webpush.Urgency
	client  *http.Client
}

func NewWebPushTransport(keys *config.VAPIDKeys, cfg config.PushConfig) *WebPushTransport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	urgency := webpush.Urgency(cfg.Urgency)
	switch urgency {
	case webpush.UrgencyVeryLow, webpush.UrgencyLow, webpush.UrgencyNormal, webpush.UrgencyHigh:
	default:
		urgency = webpush.UrgencyNormal
	}
	return &WebPushTransport{
		keys:    *keys,
		ttl:     cfg.TTL,
		urgency: urgency,
		client:  &http.Client{Timeout: timeout},
	}
}

func (t *WebPushTransport) Deliver(ctx context.Context, target Target, payload []byte) (int, error) {
	sub := &webpush.Subscription{
		Endpoint: target.Endpoint,
		Keys: webpush.Keys{
			P256dh: target.P256DH,
			Auth:   target.Auth,
		},
	}
	resp, err := webpush.SendNotificationWithContext(ctx, payload, sub, &webpush.Options{
		HTTPClient:      t.client,
		Subscriber:      strings.TrimPrefix(t.keys.Subject, "mailto:"),
		VAPIDPublicKey:  t.keys.PublicKey,
		VAPIDPrivateKey: t.keys.PrivateKey,
		TTL:             t.ttl,
		Urgency:         t.urgency,
	})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	return resp.StatusCode, nil
}
