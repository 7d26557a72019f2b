package gateway

import (
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramGateway pushes one-way notifications to a Telegram chat. It
// never reads updates; approval itself happens in the CLI.
type TelegramGateway struct {
	Bot *tgbotapi.BotAPI
}

func NewTelegramGateway(token string) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{Bot: bot}, nil
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id := int64(0)
	fmt.Sscanf(chatID, "%d", &id)
	if id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	msg := tgbotapi.NewMessage(id, text)
	_, err := tg.Bot.Send(msg)
	return err
}

func (tg *TelegramGateway) Stop() error {
	return nil
}
