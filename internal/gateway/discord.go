package gateway

import (
	"github.com/bwmarrin/discordgo"
)

// DiscordGateway pushes one-way notifications to a Discord channel.
type DiscordGateway struct {
	Session *discordgo.Session
}

func NewDiscordGateway(token string) (*DiscordGateway, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	return &DiscordGateway{Session: s}, nil
}

func (dg *DiscordGateway) Send(chatID string, text string) error {
	_, err := dg.Session.ChannelMessageSend(chatID, text)
	return err
}

func (dg *DiscordGateway) Stop() error {
	return dg.Session.Close()
}
