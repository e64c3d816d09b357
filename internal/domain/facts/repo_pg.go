package facts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scc/shadow-coder/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const factCols = `id, case_id, fact_type, value, confidence, source_type, source_ref,
	verified, verified_by, verified_at, superseded_by, superseded_at, created_at`

func scanFact(row pgx.Row) (*Fact, error) {
	var f Fact
	var valueJSON []byte
	err := row.Scan(&f.ID, &f.CaseID, &f.FactType, &valueJSON, &f.Confidence, &f.SourceType, &f.SourceRef,
		&f.Verified, &f.VerifiedBy, &f.VerifiedAt, &f.SupersededBy, &f.SupersededAt, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(valueJSON) > 0 {
		if err := json.Unmarshal(valueJSON, &f.Value); err != nil {
			return nil, fmt.Errorf("decode fact value: %w", err)
		}
	}
	return &f, nil
}

func (r *repoPG) Insert(ctx context.Context, f *Fact) error {
	valueJSON, err := json.Marshal(f.Value)
	if err != nil {
		return fmt.Errorf("encode fact value: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO case_fact (id, case_id, fact_type, value, confidence, source_type, source_ref, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		f.ID, f.CaseID, f.FactType, valueJSON, f.Confidence, f.SourceType, f.SourceRef, f.CreatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Fact, error) {
	f, err := scanFact(r.conn(ctx).QueryRow(ctx, `SELECT `+factCols+` FROM case_fact WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return f, err
}

func (r *repoPG) Supersede(ctx context.Context, oldID, newID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE case_fact SET superseded_by = $2, superseded_at = $3
		WHERE id = $1 AND superseded_by IS NULL`,
		oldID, newID, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) Verify(ctx context.Context, id uuid.UUID, verifiedBy string, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE case_fact SET verified = TRUE, verified_by = $2, verified_at = $3
		WHERE id = $1`,
		id, verifiedBy, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) CurrentByCase(ctx context.Context, caseID uuid.UUID) ([]*Fact, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT DISTINCT ON (fact_type) `+factCols+`
		FROM case_fact
		WHERE case_id = $1 AND superseded_by IS NULL
		ORDER BY fact_type, created_at DESC, confidence DESC`,
		caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFacts(rows)
}

func (r *repoPG) HistoryByType(ctx context.Context, caseID uuid.UUID, factType string) ([]*Fact, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+factCols+`
		FROM case_fact
		WHERE case_id = $1 AND fact_type = $2
		ORDER BY created_at ASC`,
		caseID, factType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectFacts(rows)
}

func collectFacts(rows pgx.Rows) ([]*Fact, error) {
	var items []*Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}
