package intake

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

const noteCols = `id, transcript, summary, content_hash, mrn, patient_name, captured_at,
	audio_ref, case_id, status, provenance, created_at, updated_at`

func scanNote(row pgx.Row) (*VoiceNote, error) {
	var n VoiceNote
	var provJSON []byte
	err := row.Scan(&n.ID, &n.Transcript, &n.Summary, &n.ContentHash, &n.MRN, &n.PatientName, &n.CapturedAt,
		&n.AudioRef, &n.CaseID, &n.Status, &provJSON, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(provJSON) > 0 {
		if err := json.Unmarshal(provJSON, &n.Provenance); err != nil {
			return nil, fmt.Errorf("decode provenance: %w", err)
		}
	}
	return &n, nil
}

func (r *repoPG) Insert(ctx context.Context, n *VoiceNote) error {
	provJSON, err := json.Marshal(n.Provenance)
	if err != nil {
		return fmt.Errorf("encode provenance: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO voice_note (id, transcript, summary, content_hash, mrn, patient_name, captured_at,
			audio_ref, case_id, status, provenance, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		n.ID, n.Transcript, n.Summary, n.ContentHash, n.MRN, n.PatientName, n.CapturedAt,
		n.AudioRef, n.CaseID, n.Status, provJSON, n.CreatedAt, n.UpdatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*VoiceNote, error) {
	n, err := scanNote(r.conn(ctx).QueryRow(ctx, `SELECT `+noteCols+` FROM voice_note WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return n, err
}

func (r *repoPG) GetByHash(ctx context.Context, hash string) (*VoiceNote, error) {
	n, err := scanNote(r.conn(ctx).QueryRow(ctx, `SELECT `+noteCols+` FROM voice_note WHERE content_hash = $1`, hash))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return n, err
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE voice_note SET status = $2, updated_at = $3 WHERE id = $1`,
		id, status, at)
	return err
}

func (r *repoPG) Recent(ctx context.Context, limit, offset int, status *Status, mrn *string) ([]*VoiceNote, error) {
	query := `SELECT ` + noteCols + ` FROM voice_note WHERE 1=1`
	args := []interface{}{}
	if status != nil {
		args = append(args, *status)
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if mrn != nil {
		args = append(args, *mrn)
		query += fmt.Sprintf(` AND mrn = $%d`, len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*VoiceNote
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}
