package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"cian_scrooper/models"
)

// PgxPool is the subset of *pgxpool.Pool the store uses.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore mirrors resolved phones into a shared database.
type PostgresStore struct {
	pool PgxPool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "parse config")
	}

	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, eris.Wrap(err, "create pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "ping")
	}

	return NewPostgresStoreWithPool(pool), nil
}

func NewPostgresStoreWithPool(pool PgxPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS listing_phones (
			listing_id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			author_type TEXT,
			location TEXT,
			phone TEXT NOT NULL,
			raw_digits TEXT,
			source TEXT NOT NULL,
			method TEXT,
			reason TEXT,
			pass_id UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return eris.Wrap(err, "create listing_phones")
}

// UpsertPhone stores the outcome for a listing. A failed outcome never
// replaces a phone that an earlier pass resolved.
func (s *PostgresStore) UpsertPhone(ctx context.Context, l models.Listing, rec models.PhoneRecord, passID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO listing_phones (
			listing_id, url, author_type, location, phone, raw_digits, source, method, reason, pass_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (listing_id) DO UPDATE SET
			url = EXCLUDED.url,
			phone = EXCLUDED.phone,
			raw_digits = EXCLUDED.raw_digits,
			source = EXCLUDED.source,
			method = EXCLUDED.method,
			reason = EXCLUDED.reason,
			pass_id = EXCLUDED.pass_id,
			updated_at = NOW()
		WHERE EXCLUDED.source <> 'failed' OR listing_phones.source = 'failed'`,
		l.ID, l.URL, l.AuthorType, l.Location, rec.Phone, rec.NotFormattedPhone,
		string(rec.Source), rec.Method, string(rec.Reason), passID)
	if err != nil {
		return eris.Wrapf(err, "upsert phone %s", l.ID)
	}
	return nil
}

// GetPhone returns nil when the listing has no stored record.
func (s *PostgresStore) GetPhone(ctx context.Context, listingID string) (*models.PhoneRecord, error) {
	var rec models.PhoneRecord
	var source string
	var raw, method, reason *string
	err := s.pool.QueryRow(ctx, `
		SELECT phone, raw_digits, source, method, reason
		FROM listing_phones WHERE listing_id = $1`, listingID).
		Scan(&rec.Phone, &raw, &source, &method, &reason)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "get phone %s", listingID)
	}
	rec.Source = models.PhoneSource(source)
	if raw != nil {
		rec.NotFormattedPhone = *raw
	}
	if method != nil {
		rec.Method = *method
	}
	if reason != nil {
		rec.Reason = models.FailReason(*reason)
	}
	return &rec, nil
}
