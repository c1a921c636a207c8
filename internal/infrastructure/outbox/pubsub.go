package outbox

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	"motoledger/pkg/logger"
)

// PubSubConfig configures the Pub/Sub delivery.
type PubSubConfig struct {
	ProjectID       string
	Topic           string
	CredentialsJSON string
	// CreateTopic creates the topic at startup when it does not exist.
	CreateTopic bool
}

// PubSubHandler publishes outbox messages to a Pub/Sub topic.
// Messages of one product share an ordering key.
type PubSubHandler struct {
	client *pubsub.Client
	topic  *pubsub.Topic
}

// NewPubSubHandler connects to Pub/Sub and resolves the topic.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("pubsub project id is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("pubsub topic is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	topic := client.Topic(cfg.Topic)
	ok, err := topic.Exists(ctx)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("check topic %q: %w", cfg.Topic, err)
	}
	if !ok {
		if !cfg.CreateTopic {
			_ = client.Close()
			return nil, fmt.Errorf("topic %q does not exist", cfg.Topic)
		}
		if topic, err = client.CreateTopic(ctx, cfg.Topic); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("create topic %q: %w", cfg.Topic, err)
		}
	}
	topic.EnableMessageOrdering = true

	return &PubSubHandler{client: client, topic: topic}, nil
}

// Handle publishes and waits for the server ack.
func (h *PubSubHandler) Handle(ctx context.Context, msg *Message) error {
	result := h.topic.Publish(ctx, &pubsub.Message{
		Data:        msg.Payload,
		OrderingKey: msg.AggregateID.String(),
		Attributes: map[string]string{
			"event_type":     msg.EventType,
			"aggregate_type": msg.AggregateType,
			"aggregate_id":   msg.AggregateID.String(),
			"message_id":     msg.ID.String(),
		},
	})
	serverID, err := result.Get(ctx)
	if err != nil {
		// a failed publish pauses the ordering key until resumed
		h.topic.ResumePublish(msg.AggregateID.String())
		return fmt.Errorf("publish %s: %w", msg.EventType, err)
	}
	logger.Debug(ctx, "event published", "event_type", msg.EventType, "pubsub_id", serverID)
	return nil
}

// Close flushes pending publishes and closes the client.
func (h *PubSubHandler) Close() error {
	h.topic.Stop()
	return h.client.Close()
}

// LogHandler only logs messages. Used when no broker is configured.
type LogHandler struct{}

// Handle implements Handler.
func (LogHandler) Handle(ctx context.Context, msg *Message) error {
	logger.Info(ctx, "outbox event",
		"event_type", msg.EventType,
		"aggregate_id", msg.AggregateID,
		"payload", string(msg.Payload),
	)
	return nil
}
