package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/suPer8Hu/staffchat/internal/chat"
)

func TestRetryDelay_MalformedJobGoesStraightToDeadLetter(t *testing.T) {
	for _, err := range []error{
		chat.ErrInvalidParticipant,
		fmt.Errorf("rebuild: %w", chat.ErrEmptyParticipant),
	} {
		if _, retry := retryDelay(err, 1); retry {
			t.Fatalf("%v should not be retried", err)
		}
	}
}

func TestRetryDelay_TransientBacksOffUntilMaxAttempts(t *testing.T) {
	transient := errors.New("database is locked")

	d1, ok1 := retryDelay(transient, 1)
	d2, ok2 := retryDelay(transient, 2)
	if !ok1 || !ok2 {
		t.Fatalf("expected early attempts to retry")
	}
	if d1 != baseDelay || d2 != 2*baseDelay {
		t.Fatalf("unexpected delays %v, %v", d1, d2)
	}
	if _, ok := retryDelay(transient, maxAttempts); ok {
		t.Fatalf("attempt %d should dead-letter", maxAttempts)
	}
}
