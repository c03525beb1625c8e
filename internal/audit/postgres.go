package audit

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/google/uuid"
)

// Postgres persists audit entries in a PostgreSQL table. Wire it behind
// Multi together with LogSink; like every sink, insert failures are logged
// and swallowed.
type Postgres struct {
	db        *sql.DB
	opTimeout time.Duration
	clock     func() time.Time
}

// NewPostgres creates a Postgres audit sink with a per-insert timeout.
func NewPostgres(db *sql.DB, opTimeout time.Duration) *Postgres {
	return &Postgres{db: db, opTimeout: opTimeout, clock: time.Now}
}

func (p *Postgres) Log(ctx context.Context, action, details string, actor Actor) {
	p.insert(ctx, Entry{
		ID:      uuid.New(),
		At:      p.clock().UTC(),
		Action:  action,
		Details: details,
		Actor:   actor,
	})
}

func (p *Postgres) Error(ctx context.Context, err error, context_ string, actor Actor) {
	p.insert(ctx, Entry{
		ID:      uuid.New(),
		At:      p.clock().UTC(),
		Action:  "error",
		Details: context_ + ": " + err.Error(),
		Actor:   actor,
	})
}

func (p *Postgres) insert(ctx context.Context, entry Entry) {
	opCtx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()

	_, err := p.db.ExecContext(opCtx, queryInsertEntry,
		entry.ID,
		entry.At,
		entry.Action,
		entry.Details,
		entry.Actor.ID,
		entry.Actor.Name,
		entry.Actor.Platform,
	)
	if err != nil {
		log.Printf("audit: postgres insert failed: %v", err)
	}
}

// Recent returns the newest entries, most recent first.
func (p *Postgres) Recent(ctx context.Context, limit int) ([]Entry, error) {
	opCtx, cancel := context.WithTimeout(ctx, p.opTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(opCtx, queryRecentEntries, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.At, &e.Action, &e.Details, &e.Actor.ID, &e.Actor.Name, &e.Actor.Platform); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
