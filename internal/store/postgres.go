package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend implements Backend on a single records table using pgx/v5.
// Attributes live in a JSONB column so merges happen in one statement.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresBackend creates a new PostgresBackend.
func NewPostgresBackend(pool *pgxpool.Pool) *PostgresBackend {
	return &PostgresBackend{pool: pool}
}

// Ping checks database connectivity.
func (b *PostgresBackend) Ping(ctx context.Context) error {
	return b.pool.Ping(ctx)
}

func (b *PostgresBackend) Put(ctx context.Context, rec Record) error {
	_, err := b.pool.Exec(ctx,
		`INSERT INTO records (data_type, id, attributes, create_at, update_at)
		 VALUES ($1, $2, $3::jsonb, $4, $5)`,
		rec.DataType, rec.ID, string(attributesOrEmpty(rec.Attributes)), rec.Create, rec.Update)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("put %s record: %w", rec.DataType, err)
	}
	return nil
}

func (b *PostgresBackend) Get(ctx context.Context, dataType, id string) (Record, error) {
	rec, err := scanRecord(b.pool.QueryRow(ctx,
		`SELECT data_type, id, attributes, create_at, update_at, seq
		 FROM records WHERE data_type = $1 AND id = $2`, dataType, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("get %s record: %w", dataType, err)
	}
	return rec, nil
}

func (b *PostgresBackend) List(ctx context.Context, dataType string) ([]Record, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT data_type, id, attributes, create_at, update_at, seq
		 FROM records WHERE data_type = $1 ORDER BY create_at DESC, seq DESC`, dataType)
	if err != nil {
		return nil, fmt.Errorf("list %s records: %w", dataType, err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s record: %w", dataType, err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (b *PostgresBackend) Merge(ctx context.Context, dataType, id string, patch json.RawMessage, update int64) (Record, error) {
	rec, err := scanRecord(b.pool.QueryRow(ctx,
		`UPDATE records SET attributes = attributes || $3::jsonb, update_at = GREATEST($4, update_at + 1)
		 WHERE data_type = $1 AND id = $2
		 RETURNING data_type, id, attributes, create_at, update_at, seq`,
		dataType, id, string(attributesOrEmpty(patch)), update))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("merge %s record: %w", dataType, err)
	}
	return rec, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	var attrs []byte
	if err := row.Scan(&rec.DataType, &rec.ID, &attrs, &rec.Create, &rec.Update, &rec.Seq); err != nil {
		return Record{}, err
	}
	rec.Attributes = attrs
	return rec, nil
}

func attributesOrEmpty(b json.RawMessage) json.RawMessage {
	if len(b) == 0 {
		return json.RawMessage(`{}`)
	}
	return b
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

var _ Backend = (*PostgresBackend)(nil)
