package authgraph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	id "soulbound/pkg/domain"
	"soulbound/pkg/platform/sentinel"
)

// Postgres implements Graph on PostgreSQL.
//
// Schema:
//
//	CREATE TABLE issuer_grants (
//	    issuer          TEXT NOT NULL,
//	    credential_type TEXT NOT NULL,
//	    granted_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    PRIMARY KEY (issuer, credential_type)
//	);
//	CREATE INDEX issuer_grants_type_idx ON issuer_grants (credential_type);
//
// A single pair table makes both directions of the relation queries over the
// same rows, so they cannot disagree.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed authorization graph.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (g *Postgres) Grant(ctx context.Context, issuer id.Identity, credType id.CredentialType) error {
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO issuer_grants (issuer, credential_type)
		VALUES ($1, $2)
	`, issuer.String(), credType.String())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert grant: %w", err)
	}
	return nil
}

func (g *Postgres) Revoke(ctx context.Context, issuer id.Identity, credType id.CredentialType) error {
	result, err := g.db.ExecContext(ctx, `
		DELETE FROM issuer_grants
		WHERE issuer = $1 AND credential_type = $2
	`, issuer.String(), credType.String())
	if err != nil {
		return fmt.Errorf("delete grant: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete grant: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (g *Postgres) IsAuthorized(ctx context.Context, issuer id.Identity, credType id.CredentialType) (bool, error) {
	var exists bool
	err := g.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM issuer_grants
			WHERE issuer = $1 AND credential_type = $2
		)
	`, issuer.String(), credType.String()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check grant: %w", err)
	}
	return exists, nil
}

func (g *Postgres) IssuersFor(ctx context.Context, credType id.CredentialType) ([]id.Identity, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT issuer FROM issuer_grants
		WHERE credential_type = $1
		ORDER BY granted_at ASC
	`, credType.String())
	if err != nil {
		return nil, fmt.Errorf("list issuers: %w", err)
	}
	defer rows.Close()

	issuers := make([]id.Identity, 0)
	for rows.Next() {
		var issuer string
		if err := rows.Scan(&issuer); err != nil {
			return nil, fmt.Errorf("scan issuer: %w", err)
		}
		issuers = append(issuers, id.Identity(issuer))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list issuers: %w", err)
	}
	return issuers, nil
}

func (g *Postgres) TypesFor(ctx context.Context, issuer id.Identity) ([]id.CredentialType, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT credential_type FROM issuer_grants
		WHERE issuer = $1
		ORDER BY granted_at ASC
	`, issuer.String())
	if err != nil {
		return nil, fmt.Errorf("list types: %w", err)
	}
	defer rows.Close()

	types := make([]id.CredentialType, 0)
	for rows.Next() {
		var credType string
		if err := rows.Scan(&credType); err != nil {
			return nil, fmt.Errorf("scan type: %w", err)
		}
		types = append(types, id.CredentialType(credType))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list types: %w", err)
	}
	return types, nil
}
