package gateway

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

type discordSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type DiscordGateway struct {
	Session   discordSender
	ChannelID string
}

// NewDiscordGateway creates a bot session. Messages are sent over REST, so
// no websocket connection is opened.
func NewDiscordGateway(token, channelID string) (*DiscordGateway, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	return &DiscordGateway{Session: s, ChannelID: channelID}, nil
}

func (d *DiscordGateway) Name() string { return "discord" }

func (d *DiscordGateway) Notify(ctx context.Context, n Notification) error {
	_, err := d.Session.ChannelMessageSend(d.ChannelID, FormatNotification(n), discordgo.WithContext(ctx))
	return err
}
