package usecase

import "github.com/google/uuid"

// ActorScope identifies who is driving an operation and which mode's data it
// may touch. Livemode partitioning is enforced here rather than per-query.
type ActorScope struct {
	Admin    bool
	UserID   *uuid.UUID
	Livemode bool
}

// SystemScope is the scope scheduler sweeps run under.
func SystemScope(livemode bool) ActorScope {
	return ActorScope{Admin: true, Livemode: livemode}
}
