package discord

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/stepbattle/stepbattle/internal/domain/shared"
)

// ChannelPoster sends messages to guild channels.
type ChannelPoster struct {
	client *Client
}

// NewChannelPoster creates a poster.
func NewChannelPoster(client *Client) *ChannelPoster {
	return &ChannelPoster{client: client}
}

// Send posts msg to channelID.
func (p *ChannelPoster) Send(ctx context.Context, channelID string, msg *discordgo.MessageSend) error {
	if strings.TrimSpace(channelID) == "" {
		return shared.ErrChannelNotConfigured
	}
	return p.client.do(ctx, "ChannelMessageSend", func(ctx context.Context) error {
		_, err := p.client.api.ChannelMessageSendComplex(channelID, msg, discordgo.WithContext(ctx))
		return err
	})
}
