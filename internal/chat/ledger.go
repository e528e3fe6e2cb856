package chat

// The functions in this file are the ledger rules with no I/O. The repo
// implements the same rules as atomic store writes; Replay uses them to
// rebuild a summary from the log.

// ApplySent returns owner's summary after m was sent. The receiver's unread
// count grows by one; the sender's is left as it was, since sending does not
// read anything. Applying the same message twice does not count it twice.
func ApplySent(prev *RecentChat, owner string, m Message) RecentChat {
	counterpart := m.ReceiverID
	if owner == m.ReceiverID {
		counterpart = m.SenderID
	}

	next := RecentChat{
		OwnerID:       owner,
		CounterpartID: counterpart,
		SenderID:      m.SenderID,
		ReceiverID:    m.ReceiverID,
		Text:          m.Text,
		Timestamp:     m.CreatedAt,
		LastMessageID: m.ID,
	}
	if prev != nil {
		next.ID = prev.ID
		next.UnreadCount = prev.UnreadCount
	}

	if owner == m.ReceiverID && (prev == nil || prev.LastMessageID != m.ID) {
		next.UnreadCount++
	}
	return next
}

// ApplyRead returns the summary after its owner opened the conversation.
func ApplyRead(prev RecentChat) RecentChat {
	prev.UnreadCount = 0
	return prev
}

// Replay folds a session log, oldest first, into owner's summary. An inbound
// message that is already read implies the owner opened the conversation
// after it arrived. Returns nil for an empty log.
func Replay(owner, counterpart string, logAsc []Message) *RecentChat {
	var cur *RecentChat
	for _, m := range logAsc {
		involved := (m.SenderID == owner && m.ReceiverID == counterpart) ||
			(m.SenderID == counterpart && m.ReceiverID == owner)
		if !involved {
			continue
		}
		next := ApplySent(cur, owner, m)
		if m.ReceiverID == owner && m.IsRead {
			next = ApplyRead(next)
		}
		cur = &next
	}
	return cur
}
