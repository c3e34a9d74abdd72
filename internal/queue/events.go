package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"chatrelay-backend/internal/models"
)

const eventsKey = "queue:ai-events"

// EventQueue is the durable delivery queue. Workers publish "a reply is
// ready" events here; the gateway process drains them and pushes to live
// connections. Decoupled from the compute queue so the process computing a
// reply never needs to hold the client's socket.
type EventQueue struct {
	rdb *redis.Client
}

func NewEventQueue(rdb *redis.Client) *EventQueue {
	return &EventQueue{rdb: rdb}
}

// PublishDelivery enqueues a delivery event.
func (q *EventQueue) PublishDelivery(ctx context.Context, event *models.DeliveryEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery event: %w", err)
	}
	if err := q.rdb.LPush(ctx, eventsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to publish delivery event: %w", err)
	}
	log.Printf("queue: delivery event published for conversation %s (job %s)", event.ConversationID, event.JobID)
	return nil
}

// Drain consumes delivery events until ctx is canceled, invoking handler
// for each. Events are consumed once; malformed payloads are logged and
// skipped.
func (q *EventQueue) Drain(ctx context.Context, handler func(context.Context, *models.DeliveryEvent)) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		res, err := q.rdb.BRPop(ctx, 5*time.Second, eventsKey).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("queue: delivery drain failed: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if len(res) < 2 {
			continue
		}

		var event models.DeliveryEvent
		if err := json.Unmarshal([]byte(res[1]), &event); err != nil {
			log.Printf("queue: failed to parse delivery event: %v", err)
			continue
		}
		handler(ctx, &event)
	}
}
