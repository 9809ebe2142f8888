// Package identity is the Identity Store: durable accounts and auth
// history, with idempotent upserts and a non-racy auth_id allocator (the
// original's query-max-then-insert pattern is not transactional; see the
// design note this package fixes).
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// AuthTypeCode is the persisted SMALLINT encoding of tee.AuthType. Kept
// local to this package (rather than importing internal/tee) so the store
// depends only on plain values, matching the contract-only framing of
// Account/Auth in the design.
type AuthTypeCode int16

const (
	AuthTypeEmail  AuthTypeCode = 1
	AuthTypeGoogle AuthTypeCode = 2
	AuthTypeGitHub AuthTypeCode = 3
)

// Auth mirrors the durable auth table row.
type Auth struct {
	AccHash      string
	AuthID       int64
	AuthType     AuthTypeCode
	AuthDatetime time.Time
	AuthExp      int64
}

// Store is the Identity Store's contract: the three operations §4.3
// names, plus BeginAuthInsert for the Token Issuer's sign-then-persist
// ordering.
type Store interface {
	// InsertAccountIfNew inserts (accHash, accSeal) if accHash is not
	// already present. Idempotent under retry.
	InsertAccountIfNew(ctx context.Context, accHash, accSeal string) error

	// QueryLatestAuthID returns the maximum auth_id recorded for accHash,
	// or 0 if the account has no auth history yet.
	QueryLatestAuthID(ctx context.Context, accHash string) (int64, error)

	// InsertAuth allocates the next auth_id for accHash and inserts the
	// row, returning the allocated id. This subsumes the
	// query-then-insert pattern named in the contract: the allocation and
	// insert happen atomically so concurrent callers for the same account
	// cannot allocate the same id.
	InsertAuth(ctx context.Context, accHash string, authType AuthTypeCode, authExp int64) (int64, error)

	// BeginAuthInsert allocates the next auth_id for accHash and inserts
	// the row inside an open transaction, without committing. The caller
	// (the Token Issuer) signs a JWT claiming this exact auth_id and only
	// then calls Commit; a signing failure calls Rollback instead, so the
	// row never becomes durable. This is how sign-then-persist ordering is
	// enforced without re-signing for a second candidate id on conflict.
	BeginAuthInsert(ctx context.Context, accHash string, authType AuthTypeCode, authExp int64) (*PendingAuth, error)
}

// PendingAuth is an allocated-but-uncommitted auth row.
type PendingAuth struct {
	AuthID int64
	tx     *sql.Tx
}

// Commit makes the auth row durable.
func (p *PendingAuth) Commit() error { return p.tx.Commit() }

// Rollback discards the auth row. Safe to call after Commit (no-op).
func (p *PendingAuth) Rollback() error {
	err := p.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

const maxAuthIDRetries = 5

// PostgresStore is the only Store implementation: a thin wrapper over
// database/sql + lib/pq, with no ORM in between (matching the rest of this
// codebase's store_postgres.go files).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InsertAccountIfNew(ctx context.Context, accHash, accSeal string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account (acc_hash, acc_seal)
		VALUES ($1, $2)
		ON CONFLICT (acc_hash) DO NOTHING
	`, accHash, accSeal)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *PostgresStore) QueryLatestAuthID(ctx context.Context, accHash string) (int64, error) {
	var maxID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(auth_id) FROM auth WHERE acc_hash = $1
	`, accHash).Scan(&maxID)
	if err != nil {
		return 0, fmt.Errorf("query latest auth id: %w", err)
	}
	if !maxID.Valid {
		return 0, nil
	}
	return maxID.Int64, nil
}

// InsertAuth allocates auth_id = COALESCE(MAX(auth_id), 0) + 1 for accHash
// and inserts the row in one statement (closing the read-then-insert race
// named in §4.3/§9 for the common case), retrying on the rare remaining
// unique-constraint conflict rather than trusting the single statement
// alone under concurrent load.
func (s *PostgresStore) InsertAuth(ctx context.Context, accHash string, authType AuthTypeCode, authExp int64) (int64, error) {
	for attempt := 0; attempt < maxAuthIDRetries; attempt++ {
		var authID int64
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO auth (acc_hash, auth_id, auth_type, auth_datetime, auth_exp)
			SELECT $1, COALESCE(MAX(auth_id), 0) + 1, $2, $3, $4
			FROM auth WHERE acc_hash = $1
			RETURNING auth_id
		`, accHash, authType, time.Now().UTC(), authExp).Scan(&authID)
		if err == nil {
			return authID, nil
		}
		if isUniqueViolation(err) {
			continue // another request allocated the same auth_id first; retry with a fresh MAX
		}
		return 0, fmt.Errorf("insert auth: %w", err)
	}
	return 0, fmt.Errorf("insert auth: exhausted %d retries for %s", maxAuthIDRetries, accHash)
}

// BeginAuthInsert mirrors InsertAuth's allocation statement but runs it
// inside an explicit transaction so the caller can defer durability until
// after a successful TEE signature.
func (s *PostgresStore) BeginAuthInsert(ctx context.Context, accHash string, authType AuthTypeCode, authExp int64) (*PendingAuth, error) {
	for attempt := 0; attempt < maxAuthIDRetries; attempt++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("begin auth insert: %w", err)
		}

		var authID int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO auth (acc_hash, auth_id, auth_type, auth_datetime, auth_exp)
			SELECT $1, COALESCE(MAX(auth_id), 0) + 1, $2, $3, $4
			FROM auth WHERE acc_hash = $1
			RETURNING auth_id
		`, accHash, authType, time.Now().UTC(), authExp).Scan(&authID)
		if err == nil {
			return &PendingAuth{AuthID: authID, tx: tx}, nil
		}

		_ = tx.Rollback()
		if isUniqueViolation(err) {
			continue // another request allocated the same auth_id first; retry with a fresh MAX
		}
		return nil, fmt.Errorf("begin auth insert: %w", err)
	}
	return nil, fmt.Errorf("begin auth insert: exhausted %d retries for %s", maxAuthIDRetries, accHash)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
