package notification

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	jsoniter "github.com/json-iterator/go"
	"github.com/splitfair/splitfair/internal/config"
	"github.com/splitfair/splitfair/internal/domain/subscription"
	"github.com/splitfair/splitfair/internal/logger"
	"github.com/splitfair/splitfair/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TransitionEvent is the payload published for every subscription
// transition. Consumers fan it out to email, push, and in-app surfaces.
type TransitionEvent struct {
	ID             string                   `json:"id"`
	OwnerID        string                   `json:"owner_id"`
	SubscriptionID string                   `json:"subscription_id"`
	EventType      types.HistoryEventType   `json:"event_type"`
	PlanType       types.PlanType           `json:"plan_type"`
	Status         types.SubscriptionStatus `json:"status"`
	PeriodEnd      *time.Time               `json:"period_end,omitempty"`
	OccurredAt     time.Time                `json:"occurred_at"`
}

// Dispatcher delivers transition notifications. Delivery is fire and
// forget: a failed dispatch is logged and swallowed, it never fails the
// transition that triggered it.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventType types.HistoryEventType, sub *subscription.Subscription)
	Close() error
}

type dispatcher struct {
	pubSub *gochannel.GoChannel
	topic  string
	log    *logger.Logger
}

// NewDispatcher builds a watermill-backed dispatcher. When notifications
// are disabled it returns a no-op implementation.
func NewDispatcher(cfg *config.Configuration, log *logger.Logger) Dispatcher {
	if !cfg.Notification.Enabled {
		return &noopDispatcher{}
	}

	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: 128,
		},
		watermill.NopLogger{},
	)

	d := &dispatcher{
		pubSub: pubSub,
		topic:  cfg.Notification.Topic,
		log:    log,
	}
	d.startConsumer()
	return d
}

func (d *dispatcher) Dispatch(ctx context.Context, eventType types.HistoryEventType, sub *subscription.Subscription) {
	event := TransitionEvent{
		ID:             types.GenerateUUIDWithPrefix(types.UUID_PREFIX_NOTIFICATION),
		OwnerID:        sub.OwnerID,
		SubscriptionID: sub.ID,
		EventType:      eventType,
		PlanType:       sub.PlanType,
		Status:         sub.SubscriptionStatus,
		PeriodEnd:      sub.CurrentPeriodEnd,
		OccurredAt:     time.Now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		d.log.Errorw("failed to marshal transition event",
			"subscription_id", sub.ID,
			"event_type", eventType,
			"error", err,
		)
		return
	}

	msg := message.NewMessage(event.ID, payload)
	if err := d.pubSub.Publish(d.topic, msg); err != nil {
		d.log.Errorw("failed to publish transition event",
			"subscription_id", sub.ID,
			"event_type", eventType,
			"error", err,
		)
	}
}

// startConsumer drains the topic and hands each event to the delivery
// sink. The in-process sink only logs; production deployments swap in a
// real channel behind the same subscriber loop.
func (d *dispatcher) startConsumer() {
	messages, err := d.pubSub.Subscribe(context.Background(), d.topic)
	if err != nil {
		d.log.Errorw("failed to subscribe to notification topic",
			"topic", d.topic,
			"error", err,
		)
		return
	}

	go func() {
		for msg := range messages {
			var event TransitionEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				d.log.Errorw("dropping malformed transition event",
					"message_id", msg.UUID,
					"error", err,
				)
				msg.Ack()
				continue
			}

			d.log.Infow("delivering subscription notification",
				"notification_id", event.ID,
				"owner_id", event.OwnerID,
				"subscription_id", event.SubscriptionID,
				"event_type", event.EventType,
				"status", event.Status,
			)
			msg.Ack()
		}
	}()
}

func (d *dispatcher) Close() error {
	return d.pubSub.Close()
}

type noopDispatcher struct{}

func (noopDispatcher) Dispatch(context.Context, types.HistoryEventType, *subscription.Subscription) {
}

func (noopDispatcher) Close() error { return nil }
