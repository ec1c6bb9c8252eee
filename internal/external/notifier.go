package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// EventType enumerates the engine lifecycle events emitted for external
// consumers (email/SMS layer, proctor monitor).
type EventType string

const (
	EventAttemptAssigned  EventType = "attempt_assigned"
	EventAttemptStarted   EventType = "attempt_started"
	EventAttemptAutosaved EventType = "attempt_autosaved"
	EventAttemptCompleted EventType = "attempt_completed"
)

// Event is one fire-and-forget notification. Score is only set on
// completion events.
type Event struct {
	StudentID int       `json:"student_id"`
	TestID    uuid.UUID `json:"test_id"`
	Type      EventType `json:"type"`
	Score     *float64  `json:"score,omitempty"`
	At        time.Time `json:"at"`
}

// Notifier emits engine events. Implementations must never fail the
// caller: delivery problems are logged and dropped, they do not roll back
// grading or allocation.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// RedisNotifier queues events for the notify worker and mirrors them on
// the per-test monitor pub/sub channel.
type RedisNotifier struct {
	rdb        *redis.Client
	queueKey   string
	channelFor func(testID string) string
	log        zerolog.Logger
}

// NewRedisNotifier creates a RedisNotifier. channelFor maps a test id to
// its monitor channel name.
func NewRedisNotifier(rdb *redis.Client, queueKey string, channelFor func(testID string) string, log zerolog.Logger) *RedisNotifier {
	return &RedisNotifier{
		rdb:        rdb,
		queueKey:   queueKey,
		channelFor: channelFor,
		log:        log.With().Str("component", "notifier").Logger(),
	}
}

// Notify enqueues the event and publishes it to the monitor channel.
// Errors are logged only.
func (n *RedisNotifier) Notify(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		n.log.Error().Err(err).Msg("marshal event")
		return
	}
	if err := n.rdb.RPush(ctx, n.queueKey, raw).Err(); err != nil {
		n.log.Warn().Err(err).Str("type", string(ev.Type)).Msg("enqueue event failed")
	}
	if err := n.rdb.Publish(ctx, n.channelFor(ev.TestID.String()), raw).Err(); err != nil {
		n.log.Debug().Err(err).Msg("monitor publish failed")
	}
}

// Dispatcher delivers queued events to the downstream notification
// service (the out-of-scope email/SMS layer).
type Dispatcher interface {
	Dispatch(ctx context.Context, events []Event) error
}

// WebhookDispatcher POSTs event batches to a configured webhook.
type WebhookDispatcher struct {
	url    string
	client *http.Client
}

// NewWebhookDispatcher creates a dispatcher with a bounded timeout.
func NewWebhookDispatcher(url string, timeout time.Duration) *WebhookDispatcher {
	return &WebhookDispatcher{url: url, client: &http.Client{Timeout: timeout}}
}

// Dispatch posts the batch as a JSON array.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, events []Event) error {
	body, err := json.Marshal(events)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification webhook returned %d", resp.StatusCode)
	}
	return nil
}

// LogDispatcher is used when no webhook is configured; events are logged
// and considered delivered.
type LogDispatcher struct {
	log zerolog.Logger
}

// NewLogDispatcher creates a LogDispatcher.
func NewLogDispatcher(log zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{log: log.With().Str("component", "log_dispatcher").Logger()}
}

// Dispatch logs each event at info level.
func (d *LogDispatcher) Dispatch(_ context.Context, events []Event) error {
	for _, ev := range events {
		d.log.Info().
			Str("type", string(ev.Type)).
			Str("test_id", ev.TestID.String()).
			Int("student_id", ev.StudentID).
			Msg("event")
	}
	return nil
}
