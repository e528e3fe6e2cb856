package chat

import "time"

// Message is one entry of a session's log. Text never changes after insert;
// IsRead flips to true at most once.
type Message struct {
	ID         string    `gorm:"primaryKey;type:varchar(26)" json:"id"`
	SessionID  string    `gorm:"type:varchar(257);not null;index:idx_chat_msg_session_created,priority:1;index:idx_chat_msg_unread,priority:1" json:"sessionId"`
	SenderID   string    `gorm:"type:varchar(128);not null" json:"senderId"`
	ReceiverID string    `gorm:"type:varchar(128);not null;index:idx_chat_msg_unread,priority:2" json:"receiverId"`
	Text       string    `gorm:"type:text;not null" json:"text"`
	IsRead     bool      `gorm:"not null;default:false;index:idx_chat_msg_unread,priority:3" json:"isRead"`
	CreatedAt  time.Time `gorm:"index:idx_chat_msg_session_created,priority:2" json:"timestamp"`
}

func (Message) TableName() string { return "chat_messages" }

// RecentChat is the owner's cached view of one conversation. It is derived
// from the message log and may lag it.
type RecentChat struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	OwnerID       string    `gorm:"type:varchar(128);not null;uniqueIndex:uniq_recent_owner_counterpart,priority:1;index:idx_recent_owner_ts,priority:1" json:"ownerId"`
	CounterpartID string    `gorm:"type:varchar(128);not null;uniqueIndex:uniq_recent_owner_counterpart,priority:2" json:"counterpartId"`
	SenderID      string    `gorm:"type:varchar(128);not null" json:"senderId"`
	ReceiverID    string    `gorm:"type:varchar(128);not null" json:"receiverId"`
	Text          string    `gorm:"type:text;not null" json:"text"`
	Timestamp     time.Time `gorm:"index:idx_recent_owner_ts,priority:2" json:"timestamp"`
	LastMessageID string    `gorm:"type:varchar(26);not null" json:"lastMessageId"`
	UnreadCount   int64     `gorm:"not null;default:0" json:"unreadCount"`
	UpdatedAt     time.Time `json:"-"`
}

func (RecentChat) TableName() string { return "recent_chats" }
