package chat

import "strings"

// SessionSeparator joins the two participant ids of a session id. Participant
// ids may not contain it, which keeps session ids collision free.
const SessionSeparator = "_"

// SessionID derives the conversation id shared by a and b. It is symmetric:
// SessionID(a, b) == SessionID(b, a).
func SessionID(a, b string) (string, error) {
	if err := validParticipant(a); err != nil {
		return "", err
	}
	if err := validParticipant(b); err != nil {
		return "", err
	}
	if b < a {
		a, b = b, a
	}
	return a + SessionSeparator + b, nil
}

// SessionParticipants splits a session id into its two ordered participants.
func SessionParticipants(sessionID string) (string, string, error) {
	a, b, ok := strings.Cut(sessionID, SessionSeparator)
	if !ok {
		return "", "", ErrInvalidParticipant
	}
	if err := validParticipant(a); err != nil {
		return "", "", err
	}
	if err := validParticipant(b); err != nil {
		return "", "", err
	}
	if b < a {
		return "", "", ErrInvalidParticipant
	}
	return a, b, nil
}

func validParticipant(id string) error {
	if id == "" {
		return ErrEmptyParticipant
	}
	if strings.Contains(id, SessionSeparator) {
		return ErrInvalidParticipant
	}
	return nil
}
