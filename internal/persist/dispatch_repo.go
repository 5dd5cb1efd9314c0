package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/l1jgo/tickhooks/internal/host"
)

// DispatchRow is one dispatch_journal row.
type DispatchRow struct {
	Phase      string
	ClientTick int64
	World      string
	Callbacks  int32
	DurationUS int64
	Error      *string // nil when the dispatch succeeded
}

// ToDispatchRows converts driver records to rows.
func ToDispatchRows(recs []host.DispatchRecord) []DispatchRow {
	rows := make([]DispatchRow, len(recs))
	for i, r := range recs {
		row := DispatchRow{
			Phase:      r.Phase.String(),
			ClientTick: int64(r.ClientTick),
			World:      r.World,
			Callbacks:  int32(r.Callbacks),
			DurationUS: r.Duration.Microseconds(),
		}
		if r.Err != nil {
			msg := r.Err.Error()
			row.Error = &msg
		}
		rows[i] = row
	}
	return rows
}

type DispatchRepo struct {
	db         *DB
	clientName string
}

func NewDispatchRepo(db *DB, clientName string) *DispatchRepo {
	return &DispatchRepo{db: db, clientName: clientName}
}

// WriteBatch inserts a batch of dispatch records in a single transaction.
func (r *DispatchRepo) WriteBatch(ctx context.Context, recs []host.DispatchRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("journal begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, row := range ToDispatchRows(recs) {
		batch.Queue(
			`INSERT INTO dispatch_journal (client_name, phase, client_tick, world, callbacks, duration_us, error)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			r.clientName, row.Phase, row.ClientTick, row.World, row.Callbacks, row.DurationUS, row.Error,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("journal commit: %w", err)
	}
	return nil
}
