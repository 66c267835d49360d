package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/model"
)

// Metadata keys set on every published message.
const (
	MetadataEventType = "event_type"
	MetadataAttemptID = "attempt_id"
)

// Publisher publishes attempt lifecycle events to a watermill topic.
type Publisher struct {
	pub   message.Publisher
	topic string
	log   zerolog.Logger
}

// NewPublisher connects to Kafka when brokers are configured and falls back
// to an in-process channel bus otherwise.
func NewPublisher(cfg *config.Config, log zerolog.Logger) (*Publisher, error) {
	wlog := logger.NewWatermillAdapter(log)

	if len(cfg.KafkaBrokers) == 0 {
		bus := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, wlog)
		log.Info().Str("topic", cfg.EventsTopic).Msg("Event bus: in-process")
		return NewPublisherWith(bus, cfg.EventsTopic, log), nil
	}

	pub, err := kafka.NewPublisher(kafka.PublisherConfig{
		Brokers:   cfg.KafkaBrokers,
		Marshaler: kafka.DefaultMarshaler{},
	}, wlog)
	if err != nil {
		return nil, fmt.Errorf("create kafka publisher: %w", err)
	}
	log.Info().
		Strs("brokers", cfg.KafkaBrokers).
		Str("topic", cfg.EventsTopic).
		Msg("Event bus: kafka")
	return NewPublisherWith(pub, cfg.EventsTopic, log), nil
}

// NewPublisherWith wraps an existing watermill publisher.
func NewPublisherWith(pub message.Publisher, topic string, log zerolog.Logger) *Publisher {
	return &Publisher{
		pub:   pub,
		topic: topic,
		log:   log.With().Str("component", "event_publisher").Logger(),
	}
}

// PublishAttemptEvent sends ev as a JSON message.
func (p *Publisher) PublishAttemptEvent(ctx context.Context, ev model.AttemptEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(MetadataEventType, string(ev.Type))
	msg.Metadata.Set(MetadataAttemptID, ev.AttemptID.String())

	if err := p.pub.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}

	p.log.Debug().
		Str("event", string(ev.Type)).
		Str("attempt_id", ev.AttemptID.String()).
		Msg("Attempt event published")
	return nil
}

func (p *Publisher) Close() error {
	return p.pub.Close()
}
