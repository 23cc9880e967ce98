package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bwmarrin/discordgo"
	"github.com/gdg-garage/garage-rsvp-api/internal/messaging"
	"github.com/gdg-garage/garage-rsvp-api/internal/models"
	"github.com/zeromicro/go-zero/core/logx"
	"gorm.io/gorm"
)

type Notifier interface {
	NotifyEventCreated(ctx context.Context, e messaging.EventCreatedEvent) error
	NotifyEventDeleted(ctx context.Context, e messaging.EventDeletedEvent) error
	NotifyJoined(ctx context.Context, e messaging.RSVPJoinedEvent) error
	NotifyLeft(ctx context.Context, e messaging.RSVPLeftEvent) error
}

// MessageSender is the part of *discordgo.Session the notifier uses.
type MessageSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type DiscordNotifier struct {
	sender    MessageSender
	channelID string
	db        *gorm.DB
}

var _ Notifier = (*DiscordNotifier)(nil)

func NewDiscordNotifier(sender MessageSender, channelID string, db *gorm.DB) *DiscordNotifier {
	return &DiscordNotifier{
		sender:    sender,
		channelID: channelID,
		db:        db,
	}
}

func (n *DiscordNotifier) NotifyEventCreated(ctx context.Context, e messaging.EventCreatedEvent) error {
	return n.send(ctx, fmt.Sprintf("📅 **New event**\n**%s** by %s\n**When:** %s\n**Seats:** %d",
		e.Title,
		n.mention(ctx, e.CreatorID),
		e.Date.Format("2006-01-02 15:04"),
		e.Capacity,
	))
}

func (n *DiscordNotifier) NotifyEventDeleted(ctx context.Context, e messaging.EventDeletedEvent) error {
	msg := fmt.Sprintf("🗑️ **Event cancelled**\n**%s** was deleted by %s", e.Title, n.mention(ctx, e.DeletedBy))
	if len(e.Attendees) > 0 {
		msg += fmt.Sprintf("\n%d RSVP(s) were removed", len(e.Attendees))
	}
	return n.send(ctx, msg)
}

func (n *DiscordNotifier) NotifyJoined(ctx context.Context, e messaging.RSVPJoinedEvent) error {
	status := fmt.Sprintf("%d/%d", e.Attendees, e.Capacity)
	if e.Attendees >= e.Capacity {
		status += " (full)"
	}
	return n.send(ctx, fmt.Sprintf("🎉 **RSVP**\n%s joined **%s**\n**Attendees:** %s",
		n.mention(ctx, e.UserID), e.EventTitle, status))
}

func (n *DiscordNotifier) NotifyLeft(ctx context.Context, e messaging.RSVPLeftEvent) error {
	return n.send(ctx, fmt.Sprintf("👋 **RSVP withdrawn**\n%s left **%s**\n**Attendees:** %d/%d",
		n.mention(ctx, e.UserID), e.EventTitle, e.Attendees, e.Capacity))
}

func (n *DiscordNotifier) send(ctx context.Context, content string) error {
	if n.sender == nil {
		return fmt.Errorf("discord session is nil")
	}
	if n.channelID == "" {
		return fmt.Errorf("discord channel ID is empty")
	}

	_, err := n.sender.ChannelMessageSend(n.channelID, content)
	if err != nil {
		logx.WithContext(ctx).Errorw("failed to send discord message", logx.Field("error", err.Error()))
		return err
	}
	return nil
}

// mention renders a user as a Discord mention when they logged in through
// Discord, otherwise by username.
func (n *DiscordNotifier) mention(ctx context.Context, userID string) string {
	if n.db == nil {
		return userID
	}
	var user models.User
	if err := n.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		return userID
	}
	if user.DiscordID != nil && *user.DiscordID != "" {
		return fmt.Sprintf("%s (<@%s>)", user.Username, *user.DiscordID)
	}
	return user.Username
}

// Subscribe feeds every domain event topic into n.
func Subscribe(client *messaging.Client, n Notifier) {
	client.Subscribe(messaging.TopicEventCreated, "notify_event_created", handle(n.NotifyEventCreated))
	client.Subscribe(messaging.TopicEventDeleted, "notify_event_deleted", handle(n.NotifyEventDeleted))
	client.Subscribe(messaging.TopicRSVPJoined, "notify_rsvp_joined", handle(n.NotifyJoined))
	client.Subscribe(messaging.TopicRSVPLeft, "notify_rsvp_left", handle(n.NotifyLeft))
}

func handle[T any](fn func(context.Context, T) error) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		var payload T
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			// A malformed payload will never decode; drop it instead of retrying.
			logx.Errorw("dropping undecodable message",
				logx.Field("uuid", msg.UUID),
				logx.Field("error", err.Error()),
			)
			return nil
		}
		return fn(msg.Context(), payload)
	}
}
