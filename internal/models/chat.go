package models

import "time"

// ChatMessage is an append-only room record. The sort key carries the
// server-assigned receive time plus a per-room counter, so string order is
// delivery order.
type ChatMessage struct {
	PK string `dynamodbav:"PK" json:"-"`
	SK string `dynamodbav:"SK" json:"-"`

	MessageID string    `dynamodbav:"messageId" json:"id"`
	RoomID    string    `dynamodbav:"roomId" json:"room_id"`
	UserID    string    `dynamodbav:"userId" json:"user_id"`
	Text      string    `dynamodbav:"text" json:"text"`
	Counter   int64     `dynamodbav:"counter" json:"-"`
	SentAt    time.Time `dynamodbav:"sentAt" json:"ts"`
}

func NewChatMessage(roomID, messageID, userID, text string, counter int64, sentAt time.Time) *ChatMessage {
	return &ChatMessage{
		PK:        RoomPK(roomID),
		SK:        MessageSK(sentAt, counter, messageID),
		MessageID: messageID,
		RoomID:    roomID,
		UserID:    userID,
		Text:      text,
		Counter:   counter,
		SentAt:    sentAt,
	}
}
