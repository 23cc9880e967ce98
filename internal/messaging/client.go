package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	wmMiddleware "github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gdg-garage/garage-rsvp-api/internal/config"
	"github.com/redis/go-redis/v9"
)

// Publisher is what the domain services need: fire a JSON payload at a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Client bundles a watermill publisher, subscriber and router over one backend.
type Client struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	Router     *message.Router

	redisClient *redis.Client
	// shared is set when one gochannel pubsub backs both sides.
	shared bool
}

var _ Publisher = (*Client)(nil)

func NewClient(cfg *config.Config) (*Client, error) {
	logger := newWatermillLogger(cfg.ServiceName)

	c := &Client{}

	switch cfg.MessagingBackend {
	case config.BackendRedis:
		c.redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := c.redisClient.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}

		publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: c.redisClient}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create publisher: %w", err)
		}
		subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
			Client:        c.redisClient,
			ConsumerGroup: cfg.ServiceName,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create subscriber: %w", err)
		}
		c.Publisher = publisher
		c.Subscriber = subscriber
	case config.BackendGoChannel, "":
		pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
		c.Publisher = pubSub
		c.Subscriber = pubSub
		c.shared = true
	default:
		return nil, fmt.Errorf("unsupported messaging backend %q", cfg.MessagingBackend)
	}

	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create router: %w", err)
	}
	router.AddMiddleware(
		wmMiddleware.Recoverer,
		wmMiddleware.Retry{
			MaxRetries:      3,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     time.Second,
			Multiplier:      2,
			Logger:          logger,
		}.Middleware,
	)
	c.Router = router

	return c, nil
}

// Publish marshals payload to JSON and publishes it on topic.
func (c *Client) Publish(ctx context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.Metadata.Set("topic", topic)
	msg.SetContext(ctx)
	return c.Publisher.Publish(topic, msg)
}

// Subscribe registers handler on the router; Run must be called to start consuming.
func (c *Client) Subscribe(topic, handlerName string, handler message.NoPublishHandlerFunc) {
	c.Router.AddNoPublisherHandler(handlerName, topic, c.Subscriber, handler)
}

// Run blocks until ctx is cancelled or the router stops.
func (c *Client) Run(ctx context.Context) error {
	return c.Router.Run(ctx)
}

func (c *Client) Running() chan struct{} {
	return c.Router.Running()
}

func (c *Client) Close() error {
	if err := c.Router.Close(); err != nil {
		return fmt.Errorf("failed to close router: %w", err)
	}
	if err := c.Publisher.Close(); err != nil {
		return fmt.Errorf("failed to close publisher: %w", err)
	}
	if !c.shared {
		if err := c.Subscriber.Close(); err != nil {
			return fmt.Errorf("failed to close subscriber: %w", err)
		}
	}
	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			return fmt.Errorf("failed to close redis client: %w", err)
		}
	}
	return nil
}
