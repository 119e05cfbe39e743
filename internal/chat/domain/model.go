package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// InboundMessage is one text message received from the messaging
// platform, already unwrapped from its webhook envelope.
type InboundMessage struct {
	MessageID string
	From      string
	Text      string
}

// ChatLog is the per-question audit row. Writes are best effort; a lost
// log line never blocks an answer.
type ChatLog struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Identity    string       `gorm:"type:varchar(20);index" json:"identity"`
	Question    string       `gorm:"type:text" json:"question"`
	Answer      string       `gorm:"type:text" json:"answer"`
	CreditsLeft int          `json:"credits_left"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
}

func (ChatLog) TableName() string { return "chat_logs" }

type Repository interface {
	InsertLog(ctx context.Context, tx *gorm.DB, log *ChatLog) error
}

// Service consumes inbound messages end to end: dedup, entitlement
// check, answer, delivery, credit consumption.
type Service interface {
	// HandleInbound admits the message and, when it is not a duplicate,
	// schedules the answer flow. True means the message was admitted.
	HandleInbound(ctx context.Context, msg InboundMessage) (bool, error)
}

// Answerer produces the reply for one question. Implementations may call
// a model, a knowledge base, or return canned text.
type Answerer interface {
	Answer(ctx context.Context, identity string, question string) (string, error)
}

// StaticAnswerer replies with a fixed text. It stands in wherever no
// real answering backend is wired.
type StaticAnswerer struct {
	Reply string
}

func (a *StaticAnswerer) Answer(ctx context.Context, identity string, question string) (string, error) {
	return a.Reply, nil
}
