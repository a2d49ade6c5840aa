package domain

// ChatMessage is one persisted channel message.
type ChatMessage struct {
	ID        string    `json:"id"`
	ChannelID ChannelID `json:"channelId"`
	UserID    UserID    `json:"userId"`
	From      string    `json:"from"`
	Text      string    `json:"text"`
	Ts        int64     `json:"ts"`
}
