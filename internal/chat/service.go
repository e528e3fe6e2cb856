package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/suPer8Hu/staffchat/internal/common"
	"github.com/suPer8Hu/staffchat/internal/realtime"
)

type Service struct {
	repo        *Repo
	users       Directory
	notify      realtime.Publisher
	repairs     RepairQueue
	retryPolicy RetryPolicy
	log         *zap.Logger
}

type Option func(*Service)

func WithNotifier(p realtime.Publisher) Option { return func(s *Service) { s.notify = p } }

func WithRepairQueue(q RepairQueue) Option { return func(s *Service) { s.repairs = q } }

func WithRetryPolicy(p RetryPolicy) Option { return func(s *Service) { s.retryPolicy = p } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = common.OrNop(l) } }

// NewService wires the ledger. users may be nil, in which case receivers are
// not checked against the directory.
func NewService(repo *Repo, users Directory, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		users:       users,
		retryPolicy: DefaultRetryPolicy(),
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const (
	defaultPageSize   = 50
	maxPageSize       = 100
	defaultRecentSize = 100
	maxRecentSize     = 500
)

// Send appends a message from sender to receiver and updates both summary
// rows. The log write decides success; a summary write that still fails
// after retries is handed to the repair queue.
// Sending does not read the conversation: the sender's unread count for
// receiver keeps counting inbound messages the sender has not opened.
func (s *Service) Send(ctx context.Context, sender, receiver, text string) (*Message, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	if sender == receiver {
		return nil, ErrSelfConversation
	}
	sessionID, err := SessionID(sender, receiver)
	if err != nil {
		return nil, err
	}
	if err := s.requireUser(ctx, receiver); err != nil {
		return nil, err
	}

	id, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	msg := &Message{
		ID:         id,
		SessionID:  sessionID,
		SenderID:   sender,
		ReceiverID: receiver,
		Text:       text,
	}

	// 1) message log (source of truth)
	if err := s.retry(ctx, "append message", func() error {
		return s.repo.InsertMessage(ctx, msg)
	}); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	// 2) sender's row, 3) receiver's row: independent best-effort writes
	s.writeSummary(ctx, sender, receiver, "sender summary", func() (*RecentChat, error) {
		return s.repo.UpsertSenderSummary(ctx, msg)
	})
	s.writeSummary(ctx, receiver, sender, "receiver summary", func() (*RecentChat, error) {
		return s.repo.UpsertReceiverSummary(ctx, msg)
	})

	// announced last: a screen that reads on arrival must see the increment
	s.publish(ctx, realtime.ChatTopic(sessionID), realtime.KindMessage, msg)
	return msg, nil
}

func (s *Service) writeSummary(ctx context.Context, owner, counterpart, what string, write func() (*RecentChat, error)) {
	var row *RecentChat
	err := s.retry(ctx, what, func() error {
		var err error
		row, err = write()
		return err
	})
	if err != nil {
		s.log.Error("summary write failed, scheduling repair",
			zap.String("owner", owner),
			zap.String("counterpart", counterpart),
			zap.Error(err),
		)
		s.scheduleRepair(ctx, owner, counterpart)
		return
	}
	s.publish(ctx, realtime.UserTopic(owner), realtime.KindSummary, row)
}

func (s *Service) scheduleRepair(ctx context.Context, owner, counterpart string) {
	if s.repairs == nil {
		return
	}
	// the caller's context may be the reason the write failed
	rctx := context.WithoutCancel(ctx)
	if err := s.repairs.EnqueueRepair(rctx, RepairJob{OwnerID: owner, CounterpartID: counterpart}); err != nil {
		s.log.Error("enqueue summary repair failed",
			zap.String("owner", owner),
			zap.String("counterpart", counterpart),
			zap.Error(err),
		)
	}
}

// ReadReceipt is published on the chat topic when a reader opens a
// conversation with unread messages.
type ReadReceipt struct {
	SessionID string `json:"sessionId"`
	ReaderID  string `json:"readerId"`
	Marked    int64  `json:"marked"`
}

// OpenConversation marks every unread message addressed to reader as read,
// then brings reader's unread count for counterpart back in line with the
// log, which clears it unless a message arrived in between. Both steps are
// idempotent; a second call with no new messages changes nothing.
// The two steps are not one transaction: if the reset fails the summary
// overstates unread until the next open or the repair job.
func (s *Service) OpenConversation(ctx context.Context, reader, counterpart string) (int64, error) {
	if reader == counterpart {
		return 0, ErrSelfConversation
	}
	sessionID, err := SessionID(reader, counterpart)
	if err != nil {
		return 0, err
	}

	var marked int64
	if err := s.retry(ctx, "mark read", func() error {
		n, err := s.repo.MarkRead(ctx, sessionID, reader)
		if err != nil {
			return err
		}
		marked += n
		return nil
	}); err != nil {
		return marked, fmt.Errorf("mark read: %w", err)
	}
	if marked > 0 {
		s.publish(ctx, realtime.ChatTopic(sessionID), realtime.KindRead, ReadReceipt{
			SessionID: sessionID,
			ReaderID:  reader,
			Marked:    marked,
		})
	}

	var changed bool
	if err := s.retry(ctx, "reset unread", func() error {
		var err error
		changed, err = s.repo.ResetUnread(ctx, reader, counterpart)
		return err
	}); err != nil {
		s.scheduleRepair(ctx, reader, counterpart)
		return marked, fmt.Errorf("reset unread: %w", err)
	}
	if changed {
		if row, err := s.repo.GetSummary(ctx, reader, counterpart); err == nil {
			s.publish(ctx, realtime.UserTopic(reader), realtime.KindSummary, row)
		}
	}
	return marked, nil
}

// ListMessages returns a page of the viewer's conversation with counterpart,
// newest first.
func (s *Service) ListMessages(ctx context.Context, viewer, counterpart string, limit int, beforeID string) ([]Message, error) {
	sessionID, err := SessionID(viewer, counterpart)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	return s.repo.ListMessages(ctx, sessionID, limit, beforeID)
}

// RecentChats returns owner's conversation summaries, newest first.
func (s *Service) RecentChats(ctx context.Context, owner string, limit int) ([]RecentChat, error) {
	if owner == "" {
		return nil, ErrEmptyParticipant
	}
	if limit <= 0 || limit > maxRecentSize {
		limit = defaultRecentSize
	}
	return s.repo.ListRecent(ctx, owner, limit)
}

// RebuildSummary recomputes owner's row for counterpart from the message
// log and overwrites the cached row. A conversation with no messages is
// left without a row.
func (s *Service) RebuildSummary(ctx context.Context, owner, counterpart string) (*RecentChat, error) {
	sessionID, err := SessionID(owner, counterpart)
	if err != nil {
		return nil, err
	}
	msgs, err := s.repo.ListSessionAsc(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rc := Replay(owner, counterpart, msgs)
	if rc == nil {
		return nil, nil
	}

	if err := s.retry(ctx, "save summary", func() error {
		return s.repo.SaveSummary(ctx, rc)
	}); err != nil {
		return nil, fmt.Errorf("save summary: %w", err)
	}
	s.publish(ctx, realtime.UserTopic(owner), realtime.KindSummary, rc)
	return rc, nil
}

func (s *Service) requireUser(ctx context.Context, uid string) error {
	if s.users == nil {
		return nil
	}
	ok, err := s.users.Exists(ctx, uid)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (s *Service) publish(ctx context.Context, topic, kind string, payload any) {
	if s.notify == nil {
		return
	}
	ev, err := realtime.NewEvent(topic, kind, payload)
	if err != nil {
		s.log.Warn("encode event", zap.String("topic", topic), zap.Error(err))
		return
	}
	if err := s.notify.Publish(ctx, topic, ev); err != nil {
		s.log.Warn("publish event", zap.String("topic", topic), zap.String("kind", kind), zap.Error(err))
	}
}
