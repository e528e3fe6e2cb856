package chat

import "context"

// RepairJob asks a worker to rebuild OwnerID's summary for CounterpartID from
// the message log. Rebuilding is idempotent, so duplicates are harmless.
type RepairJob struct {
	OwnerID       string `json:"owner_id"`
	CounterpartID string `json:"counterpart_id"`
}

// RepairQueue accepts summary rebuilds the ledger could not apply inline.
type RepairQueue interface {
	EnqueueRepair(ctx context.Context, job RepairJob) error
}

// Directory answers whether a user exists.
type Directory interface {
	Exists(ctx context.Context, uid string) (bool, error)
}
