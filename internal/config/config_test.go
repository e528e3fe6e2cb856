package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	if cfg.TypingIdle != 2*time.Second {
		t.Fatalf("expected 2s typing idle, got %s", cfg.TypingIdle)
	}
	if cfg.RabbitQueue != "summary_repairs" {
		t.Fatalf("unexpected queue %q", cfg.RabbitQueue)
	}
	if cfg.RealtimeBackend != "memory" {
		t.Fatalf("unexpected realtime backend %q", cfg.RealtimeBackend)
	}
}

func TestLoad_EnvOverridesAndClamps(t *testing.T) {
	t.Setenv("TYPING_IDLE", "750ms")
	t.Setenv("LEDGER_RETRY_ATTEMPTS", "99")
	t.Setenv("WORKER_CONCURRENCY", "-1")
	t.Setenv("REALTIME_BACKEND", " NATS ")

	cfg := Load()
	if cfg.TypingIdle != 750*time.Millisecond {
		t.Fatalf("typing idle not overridden: %s", cfg.TypingIdle)
	}
	if cfg.LedgerRetryAttempts != 10 {
		t.Fatalf("retry attempts not clamped: %d", cfg.LedgerRetryAttempts)
	}
	if cfg.WorkerConcurrency != 2 {
		t.Fatalf("worker concurrency not defaulted: %d", cfg.WorkerConcurrency)
	}
	if cfg.RealtimeBackend != "nats" {
		t.Fatalf("backend not normalized: %q", cfg.RealtimeBackend)
	}
}
