package audit

import (
	"context"
	"database/sql"
	"time"
)

// System is the actor recorded for automatic decisions.
const System = "system"

type Entry struct {
	ID        int64     `json:"id"`
	ActorID   uint64    `json:"actorId"`
	ActorRole string    `json:"actorRole"`
	Action    string    `json:"action"`
	Entity    string    `json:"entity"`
	EntityID  string    `json:"entityId"`
	Manual    bool      `json:"manual"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type Log interface {
	Insert(ctx context.Context, tx *sql.Tx, e Entry) error
	List(ctx context.Context, entity, entityID string) ([]Entry, error)
}
