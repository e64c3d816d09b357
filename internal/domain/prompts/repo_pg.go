package prompts

import (
	"context"
	"errors"
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

const promptCols = `id, case_id, rule_id, severity, status, resolution_type, message, details,
	guideline_ref, snoozed_until, snooze_count, resolved_by, resolution_note, resolved_at,
	created_at, updated_at`

func scanPrompt(row pgx.Row) (*Prompt, error) {
	var p Prompt
	err := row.Scan(&p.ID, &p.CaseID, &p.RuleID, &p.Severity, &p.Status, &p.ResolutionType, &p.Message, &p.Details,
		&p.GuidelineRef, &p.SnoozedUntil, &p.SnoozeCount, &p.ResolvedBy, &p.ResolutionNote, &p.ResolvedAt,
		&p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *repoPG) Insert(ctx context.Context, p *Prompt) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO compliance_prompt (id, case_id, rule_id, severity, status, message, details,
			guideline_ref, snooze_count, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		p.ID, p.CaseID, p.RuleID, p.Severity, p.Status, p.Message, p.Details,
		p.GuidelineRef, p.SnoozeCount, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prompt, error) {
	p, err := scanPrompt(r.conn(ctx).QueryRow(ctx, `SELECT `+promptCols+` FROM compliance_prompt WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (r *repoPG) GetLive(ctx context.Context, caseID uuid.UUID, ruleID string) (*Prompt, error) {
	p, err := scanPrompt(r.conn(ctx).QueryRow(ctx, `
		SELECT `+promptCols+`
		FROM compliance_prompt
		WHERE case_id = $1 AND rule_id = $2 AND status IN ('active','snoozed')`,
		caseID, ruleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *repoPG) ListLive(ctx context.Context, caseID uuid.UUID) ([]*Prompt, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+promptCols+`
		FROM compliance_prompt
		WHERE case_id = $1 AND status IN ('active','snoozed')
		ORDER BY created_at ASC`,
		caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPrompts(rows)
}

func (r *repoPG) ListActive(ctx context.Context, caseID uuid.UUID) ([]*Prompt, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+promptCols+`
		FROM compliance_prompt
		WHERE case_id = $1 AND status = 'active'
		ORDER BY
			CASE severity WHEN 'block' THEN 1 WHEN 'warn' THEN 2 ELSE 3 END,
			created_at ASC`,
		caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPrompts(rows)
}

func (r *repoPG) Terminate(ctx context.Context, id uuid.UUID, status Status, rt ResolutionType, resolvedBy, note *string, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE compliance_prompt
		SET status = $2, resolution_type = $3, resolved_by = $4, resolution_note = $5,
			resolved_at = $6, updated_at = $6
		WHERE id = $1 AND status IN ('active','snoozed')`,
		id, status, rt, resolvedBy, note, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) Snooze(ctx context.Context, id uuid.UUID, until time.Time, at time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE compliance_prompt
		SET status = 'snoozed', snoozed_until = $2, snooze_count = snooze_count + 1, updated_at = $3
		WHERE id = $1 AND status IN ('active','snoozed')`,
		id, until, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) WakeExpired(ctx context.Context, caseID *uuid.UUID, now time.Time) ([]*Prompt, error) {
	query := `
		UPDATE compliance_prompt
		SET status = 'active', snoozed_until = NULL, updated_at = $1
		WHERE status = 'snoozed' AND snoozed_until <= $1`
	args := []interface{}{now}
	if caseID != nil {
		query += ` AND case_id = $2`
		args = append(args, *caseID)
	}
	query += ` RETURNING ` + promptCols

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPrompts(rows)
}

func collectPrompts(rows pgx.Rows) ([]*Prompt, error) {
	var items []*Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}
