package bun

import (
	"time"

	"github.com/uptrace/bun"
)

type taskModel struct {
	bun.BaseModel `bun:"table:warrant_tasks"`

	ID             string     `bun:"id,pk"`
	Queue          string     `bun:"queue,notnull"`
	Payload        []byte     `bun:"payload"`
	Priority       string     `bun:"priority,notnull"`
	PriorityRank   int16      `bun:"priority_rank,notnull"`
	Status         string     `bun:"status,notnull"`
	WorkerID       *string    `bun:"worker_id"`
	ClaimedAt      *time.Time `bun:"claimed_at"`
	LeaseExpiresAt *time.Time `bun:"lease_expires_at"`
	QueuedAt       time.Time  `bun:"queued_at,notnull"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull"`
}

type resultModel struct {
	bun.BaseModel `bun:"table:warrant_results"`

	TaskID    string    `bun:"task_id,pk"`
	Payload   []byte    `bun:"payload"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
}
