package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"github.com/layer-3/sigauth/core"
	"github.com/layer-3/sigauth/ports"
)

const (
	// TopicAuthenticated receives UserAuthenticated events
	TopicAuthenticated = "sigauth.authenticated"
	// TopicRevoked receives AuthenticationRevoked events
	TopicRevoked = "sigauth.revoked"
)

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{
		publisher: publisher,
	}
}

// TopicFor returns the topic an event kind is published to
func TopicFor(kind core.EventKind) (string, error) {
	switch kind {
	case core.EventUserAuthenticated:
		return TopicAuthenticated, nil
	case core.EventAuthenticationRevoked:
		return TopicRevoked, nil
	default:
		return "", fmt.Errorf("unknown event kind %q", kind)
	}
}

// Publish publishes a ledger event
func (p *WatermillPublisher) Publish(ctx context.Context, event core.Event) error {
	topic, err := TopicFor(event.Kind)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("kind", string(event.Kind))
	msg.Metadata.Set("account", event.Account.Hex())
	msg.Metadata.Set("seq", strconv.FormatUint(event.Seq, 10))

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
