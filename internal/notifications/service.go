package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"shelfmind/internal/config"
)

const userAgent = "shelfmind/1.0"

// Event names a notification type.
type Event string

const (
	EventBecameReady Event = "became_ready"
	EventError       Event = "error"
	EventTest        Event = "test"
)

// Payload carries event fields by name.
type Payload map[string]any

// Service publishes events to the reader.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:    topic,
		client:      &http.Client{Timeout: timeout},
		becameReady: cfg.Notifications.BecameReady,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	client      *http.Client
	becameReady bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventBecameReady:
		if !n.becameReady {
			return message{}, false
		}
		title := payloadString(payload, "title")
		body := fmt.Sprintf("📚 Ready to read: %s", title)
		if author := payloadString(payload, "author"); author != "" {
			body = fmt.Sprintf("📚 Ready to read: %s by %s", title, author)
		}
		if score := payloadString(payload, "score"); score != "" {
			body += fmt.Sprintf("\nReadiness %s/100", score)
		}
		if note := payloadString(payload, "note"); note != "" {
			body += "\n" + note
		}
		return message{
			title: "Shelfmind - Ready",
			body:  body,
			tags:  []string{"shelfmind", "ready", "books"},
		}, true
	case EventError:
		ctxLabel := payloadString(payload, "context")
		if ctxLabel == "" {
			ctxLabel = "shelfmind"
		}
		return message{
			title:    "Shelfmind - Error",
			body:     fmt.Sprintf("❌ Error with %s: %s", ctxLabel, payloadString(payload, "error")),
			tags:     []string{"shelfmind", "error", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Shelfmind - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"shelfmind", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func payloadString(p Payload, key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

// IsNoop reports whether svc discards every event.
func IsNoop(svc Service) bool {
	_, ok := svc.(noopService)
	return svc == nil || ok
}
