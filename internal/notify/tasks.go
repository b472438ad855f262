package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/eximia-labs/backend-quotes/internal/events"
	"github.com/eximia-labs/backend-quotes/internal/obs"
)

// TaskWebhookDelivery is the asynq task type for one endpoint delivery.
const TaskWebhookDelivery = "notify:webhook_delivery"

// deliveryPayload is the task body: which endpoint gets which event.
type deliveryPayload struct {
	DeliveryID string       `json:"deliveryId"`
	Endpoint   string       `json:"endpoint"`
	Event      events.Event `json:"event"`
}

// Scheduler fans an emitted event out to one asynq task per subscribed
// endpoint. It implements events.DeliveryScheduler.
type Scheduler struct {
	Client      *asynq.Client
	Endpoints   []Endpoint
	MaxAttempts int
	Timeout     time.Duration
}

// Schedule enqueues a delivery task for every endpoint subscribed to the
// event's topic.
func (s *Scheduler) Schedule(ctx context.Context, event events.Event) error {
	if s == nil || s.Client == nil {
		return nil
	}
	maxAttempts := s.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 6
	}
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var joined error
	for _, ep := range s.Endpoints {
		if !ep.Subscribed(event.Topic) {
			continue
		}
		deliveryID := uuid.NewString()
		payload, err := json.Marshal(deliveryPayload{
			DeliveryID: deliveryID,
			Endpoint:   ep.Name,
			Event:      event,
		})
		if err != nil {
			joined = errors.Join(joined, err)
			continue
		}
		task := asynq.NewTask(TaskWebhookDelivery, payload)
		_, err = s.Client.EnqueueContext(ctx, task,
			asynq.MaxRetry(maxAttempts-1),
			asynq.Timeout(timeout),
			asynq.TaskID(deliveryID),
			asynq.Queue("webhooks"),
		)
		if err != nil {
			joined = errors.Join(joined, fmt.Errorf("enqueue delivery for %s: %w", ep.Name, err))
			continue
		}
		if obs.WebhookDispatchAttempts != nil {
			obs.WebhookDispatchAttempts.Inc()
		}
	}
	return joined
}

// Worker executes delivery tasks. Non-2xx responses and transport errors are
// returned so asynq retries with backoff; exhausted tasks land in the asynq
// dead archive.
type Worker struct {
	Relay     Relay
	Endpoints []Endpoint
}

// Handle processes one webhook delivery task.
func (w Worker) Handle(ctx context.Context, task *asynq.Task) error {
	var payload deliveryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode delivery payload: %w: %w", err, asynq.SkipRetry)
	}
	ep, ok := w.endpoint(payload.Endpoint)
	if !ok {
		// Endpoint removed from config since enqueue; drop the task.
		return fmt.Errorf("unknown endpoint %q: %w", payload.Endpoint, asynq.SkipRetry)
	}
	status, _, err := w.Relay.Deliver(ctx, ep, payload.Event, payload.DeliveryID)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("endpoint %s responded with status %d", ep.Name, status)
	}
	return nil
}

func (w Worker) endpoint(name string) (Endpoint, bool) {
	for _, ep := range w.Endpoints {
		if ep.Name == name {
			return ep, true
		}
	}
	return Endpoint{}, false
}
