package rabbitmq

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/suPer8Hu/staffchat/internal/chat"
)

func TestJobCodec(t *testing.T) {
	body, err := EncodeJob(chat.RepairJob{OwnerID: "A", CounterpartID: "B"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(body) != `{"owner_id":"A","counterpart_id":"B"}` {
		t.Fatalf("unexpected wire format %s", body)
	}
	job, err := DecodeJob(body)
	if err != nil || job.OwnerID != "A" || job.CounterpartID != "B" {
		t.Fatalf("decode: %+v err=%v", job, err)
	}
}

func TestDecodeJob_Rejects(t *testing.T) {
	for _, body := range []string{`{`, `{"owner_id":"A"}`, `{}`} {
		if _, err := DecodeJob([]byte(body)); err == nil {
			t.Fatalf("expected error for %s", body)
		}
	}
}

func TestAttempt(t *testing.T) {
	if got := Attempt(nil); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	if got := Attempt(amqp.Table{attemptHeader: int32(3)}); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
	if got := Attempt(amqp.Table{attemptHeader: int64(4)}); got != 4 {
		t.Fatalf("expected 4, got %d", got)
	}
}

func TestQueueNames(t *testing.T) {
	if RetryQueue("summary_repairs") != "summary_repairs.retry" || DeadLetterQueue("summary_repairs") != "summary_repairs.dlq" {
		t.Fatalf("unexpected queue names")
	}
}
