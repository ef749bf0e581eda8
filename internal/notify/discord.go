package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
)

const banEmbedColor = 0xC0392B

// Discord sends messages as direct messages to Discord users
type Discord struct {
	session *discordgo.Session

	mu       sync.Mutex
	channels map[string]string // user ID -> DM channel ID
}

// NewDiscord creates a Discord sender on an open session
func NewDiscord(session *discordgo.Session) *Discord {
	return &Discord{
		session:  session,
		channels: make(map[string]string),
	}
}

// Send delivers msg to the user's DM channel. Decorated messages are sent
// as an embed with the avatar as thumbnail.
func (d *Discord) Send(ctx context.Context, recipient string, msg Message) error {
	channelID, err := d.dmChannel(ctx, recipient)
	if err != nil {
		return err
	}

	send := &discordgo.MessageSend{Content: msg.Content}
	if msg.Title != "" || msg.ImageURL != "" {
		embed := &discordgo.MessageEmbed{
			Title: msg.Title,
			URL:   msg.URL,
			Color: banEmbedColor,
		}
		if msg.ImageURL != "" {
			embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: msg.ImageURL}
		}
		send.Embeds = []*discordgo.MessageEmbed{embed}
	}

	if _, err := d.session.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", recipient, err)
	}
	return nil
}

// SendComponents delivers text with interactive buttons to a user
func (d *Discord) SendComponents(ctx context.Context, recipient, content string, components []discordgo.MessageComponent) error {
	channelID, err := d.dmChannel(ctx, recipient)
	if err != nil {
		return err
	}
	_, err = d.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    content,
		Components: components,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to send message to %s: %w", recipient, err)
	}
	return nil
}

func (d *Discord) dmChannel(ctx context.Context, userID string) (string, error) {
	d.mu.Lock()
	id, ok := d.channels[userID]
	d.mu.Unlock()
	if ok {
		return id, nil
	}

	ch, err := d.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to open DM channel with %s: %w", userID, err)
	}

	d.mu.Lock()
	d.channels[userID] = ch.ID
	d.mu.Unlock()
	return ch.ID, nil
}
