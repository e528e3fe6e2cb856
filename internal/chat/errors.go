package chat

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrEmptyParticipant   = errors.New("participant id is empty")
	ErrInvalidParticipant = errors.New("participant id contains the session separator")
	ErrSelfConversation   = errors.New("cannot open a conversation with yourself")
	ErrEmptyMessage       = errors.New("message text is empty")
)

// IsPermanent reports whether err comes from input that can never succeed,
// so retrying the same call is pointless.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrEmptyParticipant) ||
		errors.Is(err, ErrInvalidParticipant) ||
		errors.Is(err, ErrSelfConversation) ||
		errors.Is(err, ErrEmptyMessage)
}
