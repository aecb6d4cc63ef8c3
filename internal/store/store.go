// Package store is the durability shadow. In-memory room state is
// authoritative for gameplay; everything here is asynchronous, retried, and
// never blocks or rolls back a room.
package store

import (
	"context"
	"time"
)

type RoomRecord struct {
	Code       string
	Name       string
	HostID     string
	MaxPlayers int
	Public     bool
	Difficulty string
	Phase      string
	Members    int
	UpdatedAt  time.Time
}

// SessionRecord carries the shared-state snapshot as an opaque blob plus the
// indexed phase, enough to find the latest non-terminal session on recovery.
type SessionRecord struct {
	RoomCode  string
	Phase     string
	Version   int
	Snapshot  []byte
	UpdatedAt time.Time
}

type AuditRecord struct {
	RoomCode string
	Kind     string
	Actor    string
	Detail   string
	At       time.Time
}

type Store interface {
	// UpsertRoom is idempotent by room code.
	UpsertRoom(ctx context.Context, rec RoomRecord) error
	SaveSession(ctx context.Context, rec SessionRecord) error
	AppendAudit(ctx context.Context, rec AuditRecord) error
	// LatestOpenSession returns the most recent session for the code whose
	// phase is not VICTORY, or nil if none exists.
	LatestOpenSession(ctx context.Context, roomCode string) (*SessionRecord, error)
	Close() error
}

// Nop is used when no database is configured (local play).
type Nop struct{}

func (Nop) UpsertRoom(context.Context, RoomRecord) error   { return nil }
func (Nop) SaveSession(context.Context, SessionRecord) error { return nil }
func (Nop) AppendAudit(context.Context, AuditRecord) error { return nil }
func (Nop) LatestOpenSession(context.Context, string) (*SessionRecord, error) {
	return nil, nil
}
func (Nop) Close() error { return nil }
