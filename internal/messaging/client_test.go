package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/gdg-garage/garage-rsvp-api/internal/config"
)

func TestClient_PublishSubscribe(t *testing.T) {
	client, err := NewClient(&config.Config{ServiceName: "test", MessagingBackend: config.BackendGoChannel})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	got := make(chan RSVPLeftEvent, 1)
	client.Subscribe(TopicRSVPLeft, "capture", func(msg *message.Message) error {
		var e RSVPLeftEvent
		if err := json.Unmarshal(msg.Payload, &e); err != nil {
			return err
		}
		got <- e
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)
	<-client.Running()

	sent := RSVPLeftEvent{EventID: "e1", UserID: "u1", Attendees: 0, Capacity: 2}
	if err := client.Publish(ctx, TopicRSVPLeft, sent); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case e := <-got:
		if e.EventID != sent.EventID || e.UserID != sent.UserID {
			t.Errorf("received %+v, want %+v", e, sent)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}
}

func TestClient_CloseSharedPubSub(t *testing.T) {
	client, err := NewClient(&config.Config{ServiceName: "test", MessagingBackend: config.BackendGoChannel})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	if !client.shared {
		t.Fatal("expected gochannel backend to share one pubsub")
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
}

func TestNewClient_UnknownBackend(t *testing.T) {
	if _, err := NewClient(&config.Config{MessagingBackend: "kafka"}); err == nil {
		t.Fatal("expected error for unsupported backend")
	}
}

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(context.Context, string, any) error {
	p.calls++
	return errors.New("broker down")
}

func TestPublishAfterCommit(t *testing.T) {
	// Must not panic on a nil publisher.
	PublishAfterCommit(context.Background(), nil, TopicEventCreated, EventCreatedEvent{})

	p := &failingPublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	PublishAfterCommit(ctx, p, TopicEventCreated, EventCreatedEvent{})
	if p.calls != 1 {
		t.Errorf("expected one publish attempt, got %d", p.calls)
	}
}
