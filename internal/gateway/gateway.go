package gateway

// Messenger defines the interface for notification gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

// ChannelNotifier binds a Messenger to one configured chat, giving the
// workflow a single Notify call for approval-gate alerts.
type ChannelNotifier struct {
	Messenger Messenger
	ChatID    string
}

func (n *ChannelNotifier) Notify(text string) error {
	return n.Messenger.Send(n.ChatID, text)
}
