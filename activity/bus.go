package activity

import (
	"context"
	"encoding/json"
	"notes-collab/core"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/sirupsen/logrus"
)

const topic = "document.activity"

// Sink records activity somewhere durable or external.
type Sink interface {
	Record(ctx context.Context, activity core.Activity) error
}

// Bus decouples activity reporting from the collaboration hot path. A
// consumer goroutine started by Start hands every activity to each sink.
// Notify returns once the sinks have seen the activity, so callers run it
// off the hot path.
type Bus struct {
	pubSub *gochannel.GoChannel
	sinks  []Sink
}

func NewBus(sinks ...Sink) *Bus {
	return &Bus{
		pubSub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 256,
				// Publish waits for the consumer, so sinks see activity in
				// the order it was published.
				BlockPublishUntilSubscriberAck: true,
			},
			newLogrusAdapter(logrus.WithField("component", "activity_bus")),
		),
		sinks: sinks,
	}
}

// Start subscribes the sink consumer. Activity published before Start is
// dropped.
func (b *Bus) Start(ctx context.Context) error {
	messages, err := b.pubSub.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			b.process(ctx, msg)
		}
	}()
	return nil
}

func (b *Bus) process(ctx context.Context, msg *message.Message) {
	// Activity is best effort, so nothing is redelivered.
	defer msg.Ack()

	var activity core.Activity
	if err := json.Unmarshal(msg.Payload, &activity); err != nil {
		logrus.WithField("message_id", msg.UUID).WithError(err).Error("Failed to decode activity")
		return
	}

	for _, sink := range b.sinks {
		if err := sink.Record(ctx, activity); err != nil {
			logrus.WithFields(logrus.Fields{
				"document_id": activity.DocumentID,
				"action":      activity.Action,
			}).WithError(err).Warn("Failed to record activity")
		}
	}
}

// Notify implements core.ActivityNotifier.
func (b *Bus) Notify(ctx context.Context, activity core.Activity) {
	payload, err := json.Marshal(activity)
	if err != nil {
		logrus.WithError(err).Error("Failed to encode activity")
		return
	}

	if err := b.pubSub.Publish(topic, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		logrus.WithField("document_id", activity.DocumentID).WithError(err).Warn("Failed to publish activity")
	}
}

func (b *Bus) Close() error {
	return b.pubSub.Close()
}

// LogSink writes activity to the application log.
type LogSink struct{}

func (LogSink) Record(ctx context.Context, activity core.Activity) error {
	logrus.WithFields(logrus.Fields{
		"user_id":     activity.UserID,
		"document_id": activity.DocumentID,
		"action":      activity.Action,
		"occurred_at": activity.OccurredAt,
	}).Info("Document activity")
	return nil
}
