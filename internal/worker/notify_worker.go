package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/aptiva/aptiva-backend/internal/config"
	"github.com/aptiva/aptiva-backend/internal/external"
)

const (
	NotifyBatchSize    = 50
	NotifyBatchTimeout = 2 * time.Second
	NotifyPollTimeout  = 1 * time.Second
)

// NotifyWorker drains notify_events_queue and delivers events to the
// downstream notification service in batches.
type NotifyWorker struct {
	rdb        *redis.Client
	dispatcher external.Dispatcher
	log        zerolog.Logger
}

func NewNotifyWorker(rdb *redis.Client, dispatcher external.Dispatcher, log zerolog.Logger) *NotifyWorker {
	return &NotifyWorker{
		rdb:        rdb,
		dispatcher: dispatcher,
		log:        log.With().Str("component", "notify_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *NotifyWorker) Start(ctx context.Context) {
	w.log.Info().Msg("NotifyWorker started")

	batch := make([]external.Event, 0, NotifyBatchSize)
	lastFlush := time.Now()

	for {
		// Should flush?
		if len(batch) > 0 &&
			(len(batch) >= NotifyBatchSize || time.Since(lastFlush) >= NotifyBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, NotifyPollTimeout, config.WorkerKey.NotifyEventsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var ev external.Event
			if err := json.Unmarshal([]byte(item[1]), &ev); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, ev)
		}
	}
}

// ----------------------------------------------------------------
// Batch dispatch with per-event fallback
// ----------------------------------------------------------------

func (w *NotifyWorker) flushSafe(ctx context.Context, batch []external.Event) {
	if len(batch) == 0 {
		return
	}

	if err := w.dispatcher.Dispatch(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("batch dispatch failed, using fallback")

		for _, ev := range batch {
			if err := w.dispatcher.Dispatch(ctx, []external.Event{ev}); err != nil {
				w.log.Error().Err(err).Str("type", string(ev.Type)).Msg("single dispatch failed — requeueing")
				raw, _ := json.Marshal(ev)
				w.rdb.RPush(ctx, config.WorkerKey.NotifyEventsQueue, raw)
			}
		}
	}
}
