package journal

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/davidleathers/auction-ledger/internal/domain/auction"
	"github.com/davidleathers/auction-ledger/internal/infrastructure/telemetry"
)

// Querier is the subset of pgxpool.Pool the store needs
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore keeps the journal in the ledger_journal table
type PostgresStore struct {
	db Querier
}

func NewPostgresStore(db Querier) *PostgresStore {
	return &PostgresStore{db: db}
}

const appendEntrySQL = `
INSERT INTO ledger_journal (seq, event_id, event_type, auction_id, occurred_at, prev_hash, hash, data)
SELECT $1::bigint, $2::uuid, $3::text, $4::bigint, $5::timestamptz, $6::bytea, $7::bytea, $8::bytea
WHERE (SELECT COALESCE(MAX(seq), 0) FROM ledger_journal) = $1::bigint - 1`

// Append inserts e only when it directly follows the stored tail
func (s *PostgresStore) Append(ctx context.Context, e Entry) (err error) {
	ctx, span := telemetry.StartDatabaseSpan(ctx, "insert", "ledger_journal")
	defer func() { telemetry.EndSpan(span, err) }()

	tag, err := s.db.Exec(ctx, appendEntrySQL,
		int64(e.Seq), e.EventID, string(e.Type), int64(e.AuctionID), e.At,
		e.PrevHash[:], e.Hash[:], e.Data,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: seq %d already stored", ErrConflict, e.Seq)
		}
		return fmt.Errorf("insert journal entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: seq %d does not follow the stored tail", ErrConflict, e.Seq)
	}
	return nil
}

const loadEntriesSQL = `
SELECT seq, event_id, event_type, auction_id, occurred_at, prev_hash, hash, data
FROM ledger_journal
ORDER BY seq`

// Load returns every entry in sequence order
func (s *PostgresStore) Load(ctx context.Context) (_ []Entry, err error) {
	ctx, span := telemetry.StartDatabaseSpan(ctx, "select", "ledger_journal")
	defer func() { telemetry.EndSpan(span, err) }()

	rows, err := s.db.Query(ctx, loadEntriesSQL)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e              Entry
			seq, auctionID int64
			eventType      string
			prevHash, hash []byte
		)
		if err := rows.Scan(&seq, &e.EventID, &eventType, &auctionID, &e.At, &prevHash, &hash, &e.Data); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Seq = uint64(seq)
		e.AuctionID = uint64(auctionID)
		e.Type = auction.EventType(eventType)
		e.At = e.At.UTC()
		if e.PrevHash, err = HashFromBytes(prevHash); err != nil {
			return nil, fmt.Errorf("entry %d prev_hash: %w", e.Seq, err)
		}
		if e.Hash, err = HashFromBytes(hash); err != nil {
			return nil, fmt.Errorf("entry %d hash: %w", e.Seq, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
