package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-matrix/internal/blueprint"
)

const dbTimeout = 5 * time.Second

const selectBlueprint = `SELECT id::text, exam_name, grade, ratio, final_exam, rows, report, version, created_at, updated_at
	 FROM blueprints`

// PostgresStore is a PostgreSQL-backed Store implementation. Rows and the
// report are stored as jsonb.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed blueprint store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Create(ctx context.Context, bp Blueprint) (Blueprint, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, report, err := encodeBody(bp)
	if err != nil {
		return Blueprint{}, err
	}

	bp = bp.Clone()
	bp.ID = uuid.NewString()
	err = s.pool.QueryRow(ctx,
		`INSERT INTO blueprints (id, exam_name, grade, ratio, final_exam, rows, report, version)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6::jsonb, $7::jsonb, 1)
		 RETURNING version, created_at, updated_at`,
		bp.ID,
		bp.ExamName,
		bp.Grade,
		string(bp.Ratio),
		bp.FinalExam,
		rows,
		report,
	).Scan(&bp.Version, &bp.CreatedAt, &bp.UpdatedAt)
	if err != nil {
		return Blueprint{}, fmt.Errorf("create blueprint: %w", err)
	}
	if bp.Rows == nil {
		bp.Rows = []blueprint.Row{}
	}
	return bp, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Blueprint, error) {
	key, err := normalizeID(id)
	if err != nil {
		return Blueprint{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return scanBlueprint(s.pool.QueryRow(ctx, selectBlueprint+` WHERE id = $1::uuid`, key))
}

func (s *PostgresStore) List(ctx context.Context) ([]Blueprint, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx, selectBlueprint+` ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query blueprints: %w", err)
	}
	defer rows.Close()

	out := []Blueprint{}
	for rows.Next() {
		bp, err := scanBlueprint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, bp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate blueprints: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Replace(ctx context.Context, bp Blueprint, expectedVersion int) (Blueprint, error) {
	key, err := normalizeID(bp.ID)
	if err != nil {
		return Blueprint{}, err
	}
	rows, report, err := encodeBody(bp)
	if err != nil {
		return Blueprint{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Blueprint{}, fmt.Errorf("begin replace: %w", err)
	}
	defer tx.Rollback(ctx)

	var version int
	err = tx.QueryRow(ctx,
		`SELECT version FROM blueprints WHERE id = $1::uuid FOR UPDATE`,
		key,
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Blueprint{}, ErrNotFound
	}
	if err != nil {
		return Blueprint{}, fmt.Errorf("lock blueprint: %w", err)
	}
	if version != expectedVersion {
		return Blueprint{}, ErrVersionConflict
	}

	bp = bp.Clone()
	bp.ID = key
	err = tx.QueryRow(ctx,
		`UPDATE blueprints
		 SET exam_name = $2, grade = $3, ratio = $4, final_exam = $5,
		     rows = $6::jsonb, report = $7::jsonb,
		     version = version + 1, updated_at = NOW()
		 WHERE id = $1::uuid
		 RETURNING version, created_at, updated_at`,
		key,
		bp.ExamName,
		bp.Grade,
		string(bp.Ratio),
		bp.FinalExam,
		rows,
		report,
	).Scan(&bp.Version, &bp.CreatedAt, &bp.UpdatedAt)
	if err != nil {
		return Blueprint{}, fmt.Errorf("update blueprint: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Blueprint{}, fmt.Errorf("commit replace: %w", err)
	}
	return bp, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	key, err := normalizeID(id)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx, `DELETE FROM blueprints WHERE id = $1::uuid`, key)
	if err != nil {
		return fmt.Errorf("delete blueprint: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// encodeBody marshals the jsonb columns. A missing report is stored as NULL.
func encodeBody(bp Blueprint) (string, any, error) {
	rows := bp.Rows
	if rows == nil {
		rows = []blueprint.Row{}
	}
	rowsJSON, err := json.Marshal(rows)
	if err != nil {
		return "", nil, fmt.Errorf("marshal rows: %w", err)
	}
	if bp.Report == nil {
		return string(rowsJSON), nil, nil
	}
	reportJSON, err := json.Marshal(bp.Report)
	if err != nil {
		return "", nil, fmt.Errorf("marshal report: %w", err)
	}
	return string(rowsJSON), string(reportJSON), nil
}

func scanBlueprint(row pgx.Row) (Blueprint, error) {
	var bp Blueprint
	var ratio string
	var rowsJSON, reportJSON []byte

	err := row.Scan(
		&bp.ID,
		&bp.ExamName,
		&bp.Grade,
		&ratio,
		&bp.FinalExam,
		&rowsJSON,
		&reportJSON,
		&bp.Version,
		&bp.CreatedAt,
		&bp.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Blueprint{}, ErrNotFound
	}
	if err != nil {
		return Blueprint{}, fmt.Errorf("scan blueprint: %w", err)
	}

	bp.Ratio = blueprint.RatioOption(ratio)
	if err := json.Unmarshal(rowsJSON, &bp.Rows); err != nil {
		return Blueprint{}, fmt.Errorf("decode rows: %w", err)
	}
	if bp.Rows == nil {
		bp.Rows = []blueprint.Row{}
	}
	if len(reportJSON) > 0 {
		var rep blueprint.Report
		if err := json.Unmarshal(reportJSON, &rep); err != nil {
			return Blueprint{}, fmt.Errorf("decode report: %w", err)
		}
		bp.Report = &rep
	}
	return bp, nil
}
