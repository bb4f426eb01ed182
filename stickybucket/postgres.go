package stickybucket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresService stores assignment documents in a single key-value table:
//
//	CREATE TABLE IF NOT EXISTS sticky_bucket_assignments (
//	    doc_key  TEXT PRIMARY KEY,
//	    document JSONB NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
// Useful when the host application already runs on Postgres and wants
// assignments to survive restarts without adding a cache tier.
type PostgresService struct {
	pool *pgxpool.Pool
}

// NewPostgresService wraps an existing connection pool.
func NewPostgresService(pool *pgxpool.Pool) *PostgresService {
	return &PostgresService{pool: pool}
}

// EnsureSchema creates the assignments table if it does not exist.
func (p *PostgresService) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sticky_bucket_assignments (
			doc_key TEXT PRIMARY KEY,
			document JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("stickybucket: ensure schema: %w", err)
	}
	return nil
}

func (p *PostgresService) GetAssignments(ctx context.Context, attributeName, attributeValue string) (*AssignmentsDocument, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx,
		`SELECT document FROM sticky_bucket_assignments WHERE doc_key = $1`,
		Key(attributeName, attributeValue),
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stickybucket: postgres select: %w", err)
	}
	var doc AssignmentsDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("stickybucket: decode document: %w", err)
	}
	return &doc, nil
}

func (p *PostgresService) SaveAssignments(ctx context.Context, doc *AssignmentsDocument) error {
	if doc == nil {
		return nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("stickybucket: encode document: %w", err)
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO sticky_bucket_assignments (doc_key, document, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (doc_key) DO UPDATE SET document = EXCLUDED.document, updated_at = now()`,
		Key(doc.AttributeName, doc.AttributeValue), raw)
	if err != nil {
		return fmt.Errorf("stickybucket: postgres upsert: %w", err)
	}
	return nil
}
