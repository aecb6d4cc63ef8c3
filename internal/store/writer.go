package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/veilbound/veilbound-backend/internal/game"
	"github.com/veilbound/veilbound-backend/internal/room"
)

// Writer is the write-behind worker between rooms and the Store. Rooms hand
// it persistence work fire-and-continue; failed writes are retried with
// exponential backoff and dropped (logged) once the retry budget is spent.
type Writer struct {
	store Store
	log   *zap.Logger
	queue chan func(ctx context.Context) error
	ctx   context.Context
	stop  context.CancelFunc
	done  chan struct{}
}

func NewWriter(parent context.Context, s Store, log *zap.Logger) *Writer {
	ctx, cancel := context.WithCancel(parent)
	w := &Writer{
		store: s,
		log:   log,
		queue: make(chan func(ctx context.Context) error, 256),
		ctx:   ctx,
		stop:  cancel,
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Writer) run() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			// Drain what's already queued before exiting.
			for {
				select {
				case op := <-w.queue:
					w.execute(op)
				default:
					return
				}
			}
		case op := <-w.queue:
			w.execute(op)
		}
	}
}

func (w *Writer) execute(op func(ctx context.Context) error) {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	err := backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return op(ctx)
	}, policy)
	if err != nil {
		// In-memory state stays authoritative; a lost write costs durability,
		// not gameplay.
		w.log.Error("persistence write dropped after retries", zap.Error(err))
	}
}

func (w *Writer) enqueue(op func(ctx context.Context) error) {
	select {
	case w.queue <- op:
	default:
		w.log.Warn("persistence queue full, dropping write")
	}
}

// PersistRoom is shaped to plug into room.Deps.Persist.
func (w *Writer) PersistRoom(code string, info room.Info, state game.State) {
	snapshot, err := json.Marshal(state)
	if err != nil {
		w.log.Error("snapshot marshal failed", zap.String("room", code), zap.Error(err))
		return
	}
	now := time.Now()
	roomRec := RoomRecord{
		Code:       info.Code,
		Name:       info.Name,
		HostID:     info.HostID,
		MaxPlayers: info.Settings.MaxPlayers,
		Public:     info.Settings.Public,
		Difficulty: info.Settings.Difficulty,
		Phase:      string(info.Phase),
		Members:    len(info.Members),
		UpdatedAt:  now,
	}
	sessionRec := SessionRecord{
		RoomCode:  info.Code,
		Phase:     string(info.Phase),
		Version:   info.Version,
		Snapshot:  snapshot,
		UpdatedAt: now,
	}
	w.enqueue(func(ctx context.Context) error {
		if err := w.store.UpsertRoom(ctx, roomRec); err != nil {
			return err
		}
		return w.store.SaveSession(ctx, sessionRec)
	})
}

// AppendAudit is shaped to plug into room.Deps.Audit.
func (w *Writer) AppendAudit(code, kind, actor, detail string) {
	rec := AuditRecord{RoomCode: code, Kind: kind, Actor: actor, Detail: detail, At: time.Now()}
	w.enqueue(func(ctx context.Context) error {
		return w.store.AppendAudit(ctx, rec)
	})
}

// Close stops the worker after draining pending writes.
func (w *Writer) Close() {
	w.stop()
	select {
	case <-w.done:
	case <-time.After(10 * time.Second):
		w.log.Warn("persistence writer did not drain in time")
	}
}
