package chat

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// InsertMessage appends m to its session log. The store clock stamps
// CreatedAt. Re-inserting an id that already exists is a no-op, so callers
// may retry after an ambiguous failure.
func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	m.CreatedAt = r.now()
	m.IsRead = false
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(m).Error
}

func (r *Repo) GetMessage(ctx context.Context, id string) (*Message, error) {
	var m Message
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

// ListMessages returns messages newest first. beforeID pages backwards: the
// cursor is the (created_at, id) position of that message, which must belong
// to the session.
func (r *Repo) ListMessages(ctx context.Context, sessionID string, limit int, beforeID string) ([]Message, error) {
	q := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit)

	if beforeID != "" {
		cur, err := r.GetMessage(ctx, beforeID)
		if err != nil {
			return nil, err
		}
		if cur.SessionID != sessionID {
			return nil, ErrNotFound
		}
		q = q.Where("(created_at < ? OR (created_at = ? AND id < ?))", cur.CreatedAt, cur.CreatedAt, cur.ID)
	}

	var msgs []Message
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// ListSessionAsc returns the whole session log oldest first.
func (r *Repo) ListSessionAsc(ctx context.Context, sessionID string) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// MarkRead flips every unread message addressed to reader in the session.
// The update covers exactly that set in one transaction.
func (r *Repo) MarkRead(ctx context.Context, sessionID, reader string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&Message{}).
			Where("session_id = ? AND receiver_id = ? AND is_read = ?", sessionID, reader, false).
			Update("is_read", true)
		if res.Error != nil {
			return res.Error
		}
		n = res.RowsAffected
		return nil
	})
	return n, err
}

// CountUnread counts messages in the session addressed to reader that are
// still unread.
func (r *Repo) CountUnread(ctx context.Context, sessionID, reader string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&Message{}).
		Where("session_id = ? AND receiver_id = ? AND is_read = ?", sessionID, reader, false).
		Count(&n).Error
	return n, err
}

var summaryColumns = []string{"sender_id", "receiver_id", "text", "timestamp", "last_message_id", "updated_at"}

func summaryConflict() []clause.Column {
	return []clause.Column{{Name: "owner_id"}, {Name: "counterpart_id"}}
}

// UpsertSenderSummary records m as the last message on the sender's row. A
// new row starts with zero unread; an existing count is left alone.
func (r *Repo) UpsertSenderSummary(ctx context.Context, m *Message) (*RecentChat, error) {
	row := summaryRow(m.SenderID, m.ReceiverID, m)
	row.UnreadCount = 0

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   summaryConflict(),
			DoUpdates: clause.AssignmentColumns(summaryColumns),
		}).
		Create(&row).Error
	if err != nil {
		return nil, err
	}
	return r.GetSummary(ctx, m.SenderID, m.ReceiverID)
}

// UpsertReceiverSummary records m on the receiver's row and increments the
// receiver's unread count inside the store. A retry carrying the same
// message id does not increment again.
func (r *Repo) UpsertReceiverSummary(ctx context.Context, m *Message) (*RecentChat, error) {
	row := summaryRow(m.ReceiverID, m.SenderID, m)
	row.UnreadCount = 1

	// unread_count must be assigned before last_message_id: mysql evaluates
	// ON DUPLICATE KEY assignments left to right against the updated row.
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: summaryConflict(),
			DoUpdates: append(
				clause.Set{{Column: clause.Column{Name: "unread_count"}, Value: gorm.Expr(r.incrementUnlessSameMessage())}},
				clause.AssignmentColumns(summaryColumns)...,
			),
		}).
		Create(&row).Error
	if err != nil {
		return nil, err
	}
	return r.GetSummary(ctx, m.ReceiverID, m.SenderID)
}

func (r *Repo) incrementUnlessSameMessage() string {
	if r.db.Dialector.Name() == "mysql" {
		return "CASE WHEN last_message_id = VALUES(last_message_id) THEN unread_count ELSE unread_count + 1 END"
	}
	return "CASE WHEN last_message_id = excluded.last_message_id THEN unread_count ELSE unread_count + 1 END"
}

func summaryRow(owner, counterpart string, m *Message) RecentChat {
	return RecentChat{
		OwnerID:       owner,
		CounterpartID: counterpart,
		SenderID:      m.SenderID,
		ReceiverID:    m.ReceiverID,
		Text:          m.Text,
		Timestamp:     m.CreatedAt,
		LastMessageID: m.ID,
	}
}

// ResetUnread sets owner's unread count for counterpart to the number of
// messages in the session still unread by owner, counted inside the same
// UPDATE. Right after MarkRead that is zero, unless a message arrived in
// between, whose increment must survive. A missing row is left missing.
// Reports whether anything changed.
func (r *Repo) ResetUnread(ctx context.Context, owner, counterpart string) (bool, error) {
	sessionID, err := SessionID(owner, counterpart)
	if err != nil {
		return false, err
	}
	unread := gorm.Expr(
		"(SELECT COUNT(*) FROM chat_messages WHERE session_id = ? AND receiver_id = ? AND is_read = ?)",
		sessionID, owner, false,
	)
	res := r.db.WithContext(ctx).Model(&RecentChat{}).
		Where("owner_id = ? AND counterpart_id = ? AND unread_count <> ?", owner, counterpart, 0).
		Updates(map[string]any{"unread_count": unread, "updated_at": r.now()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SaveSummary overwrites owner's row with rc.
func (r *Repo) SaveSummary(ctx context.Context, rc *RecentChat) error {
	rc.UpdatedAt = r.now()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   summaryConflict(),
			DoUpdates: clause.AssignmentColumns(append([]string{"unread_count"}, summaryColumns...)),
		}).
		Create(rc).Error
}

func (r *Repo) GetSummary(ctx context.Context, owner, counterpart string) (*RecentChat, error) {
	var rc RecentChat
	if err := r.db.WithContext(ctx).
		Where("owner_id = ? AND counterpart_id = ?", owner, counterpart).
		First(&rc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rc, nil
}

// ListRecent returns owner's summaries, most recent conversation first.
func (r *Repo) ListRecent(ctx context.Context, owner string, limit int) ([]RecentChat, error) {
	var rows []RecentChat
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", owner).
		Order("timestamp DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
