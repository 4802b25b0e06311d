package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"soulbound/internal/registry/models"
	id "soulbound/pkg/domain"
	"soulbound/pkg/platform/sentinel"
)

// Postgres implements Store on PostgreSQL.
//
// Schema:
//
//	CREATE TABLE credentials (
//	    id              BIGSERIAL PRIMARY KEY,
//	    holder          TEXT NOT NULL,
//	    issuer          TEXT NOT NULL,
//	    credential_type TEXT NOT NULL,
//	    metadata        TEXT NOT NULL,
//	    issued_at       TIMESTAMPTZ NOT NULL,
//	    expires_at      TIMESTAMPTZ,
//	    status          TEXT NOT NULL DEFAULT 'active',
//	    position        BIGSERIAL
//	);
//	CREATE INDEX credentials_holder_idx ON credentials (holder, position);
//
// The sequence backs the monotonic id; inserts run in a transaction so a
// failed create rolls the sequence consumer back together with the row.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed credential store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Create(ctx context.Context, cred *models.Credential) (id.CredentialID, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin create: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var assigned uint64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO credentials (holder, issuer, credential_type, metadata, issued_at, expires_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, cred.Holder.String(), cred.Issuer.String(), cred.Type.String(), cred.Metadata,
		cred.IssuedAt, cred.ExpiresAt, string(cred.Status)).Scan(&assigned)
	if err != nil {
		return 0, fmt.Errorf("insert credential: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit create: %w", err)
	}
	return id.CredentialID(assigned), nil
}

func (s *Postgres) Get(ctx context.Context, credID id.CredentialID) (*models.Credential, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, holder, issuer, credential_type, metadata, issued_at, expires_at, status
		FROM credentials
		WHERE id = $1
	`, uint64(credID))
	return scanCredential(row)
}

func (s *Postgres) ListByHolder(ctx context.Context, holder id.Identity) ([]*models.Credential, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, holder, issuer, credential_type, metadata, issued_at, expires_at, status
		FROM credentials
		WHERE holder = $1
		ORDER BY position ASC
	`, holder.String())
	if err != nil {
		return nil, fmt.Errorf("list by holder: %w", err)
	}
	defer rows.Close()

	creds := make([]*models.Credential, 0)
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list by holder: %w", err)
	}
	return creds, nil
}

func (s *Postgres) Revoke(ctx context.Context, credID id.CredentialID) error {
	var status string
	err := s.db.QueryRowContext(ctx, `
		UPDATE credentials
		SET status = 'revoked'
		WHERE id = $1 AND status = 'active'
		RETURNING status
	`, uint64(credID)).Scan(&status)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("revoke credential: %w", err)
	}

	// Distinguish missing from already-revoked for a precise failure.
	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM credentials WHERE id = $1)`, uint64(credID),
	).Scan(&exists); err != nil {
		return fmt.Errorf("revoke credential: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrInvalidState
}

func (s *Postgres) NextID(ctx context.Context) (id.CredentialID, error) {
	// last_value of a fresh sequence is 1 before any assignment; is_called
	// disambiguates "next is 1" from "1 was assigned".
	var lastValue uint64
	var isCalled bool
	err := s.db.QueryRowContext(ctx,
		`SELECT last_value, is_called FROM credentials_id_seq`,
	).Scan(&lastValue, &isCalled)
	if err != nil {
		return 0, fmt.Errorf("read id sequence: %w", err)
	}
	if !isCalled {
		return id.CredentialID(lastValue), nil
	}
	return id.CredentialID(lastValue + 1), nil
}

func (s *Postgres) IssuedCount(ctx context.Context, credType id.CredentialType) (uint64, error) {
	var count uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM credentials WHERE credential_type = $1`, credType.String(),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count by type: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*models.Credential, error) {
	var (
		cred      models.Credential
		rawID     uint64
		holder    string
		issuer    string
		credType  string
		expiresAt sql.NullTime
		status    string
	)
	err := row.Scan(&rawID, &holder, &issuer, &credType, &cred.Metadata, &cred.IssuedAt, &expiresAt, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan credential: %w", err)
	}
	cred.ID = id.CredentialID(rawID)
	cred.Holder = id.Identity(holder)
	cred.Issuer = id.Identity(issuer)
	cred.Type = id.CredentialType(credType)
	cred.Status = models.CredentialStatus(status)
	if expiresAt.Valid {
		t := expiresAt.Time
		cred.ExpiresAt = &t
	}
	return &cred, nil
}
