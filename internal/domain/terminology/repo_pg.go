package terminology

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ehr/billing/internal/platform/db"
)

type procedureCodeRepoPG struct{ q db.Querier }

func NewProcedureCodeRepoPG(q db.Querier) ProcedureCodeRepository {
	return &procedureCodeRepoPG{q: q}
}

func (r *procedureCodeRepoPG) Create(ctx context.Context, pc *ProcedureCode) error {
	err := r.q.QueryRow(ctx,
		`INSERT INTO procedure_code (code, description) VALUES ($1, $2) RETURNING created_at`,
		pc.Code, pc.Description).Scan(&pc.CreatedAt)
	if err != nil {
		if db.IsIntegrityViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicate, pc.Code)
		}
		return fmt.Errorf("create procedure code: %w", err)
	}
	return nil
}

func (r *procedureCodeRepoPG) GetByCode(ctx context.Context, code string) (*ProcedureCode, error) {
	var pc ProcedureCode
	err := r.q.QueryRow(ctx,
		`SELECT code, description, created_at FROM procedure_code WHERE code = $1`, code).
		Scan(&pc.Code, &pc.Description, &pc.CreatedAt)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get procedure code: %w", err)
	}
	return &pc, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (r *procedureCodeRepoPG) Search(ctx context.Context, query string, limit int) ([]*ProcedureCode, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	pattern := "%" + likeEscaper.Replace(query) + "%"
	rows, err := r.q.Query(ctx,
		`SELECT code, description, created_at
		 FROM procedure_code
		 WHERE code ILIKE $1 OR description ILIKE $1
		 ORDER BY code LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search procedure codes: %w", err)
	}
	defer rows.Close()

	results := []*ProcedureCode{}
	for rows.Next() {
		var pc ProcedureCode
		if err := rows.Scan(&pc.Code, &pc.Description, &pc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan procedure code: %w", err)
		}
		results = append(results, &pc)
	}
	return results, rows.Err()
}

func (r *procedureCodeRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.q.QueryRow(ctx, `SELECT count(*) FROM procedure_code`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count procedure codes: %w", err)
	}
	return n, nil
}

type procedureCodeImporterPG struct{ b db.Beginner }

// NewProcedureCodeImporterPG returns an Importer that runs each import in a
// single transaction holding a lock that blocks other writers but not readers.
func NewProcedureCodeImporterPG(b db.Beginner) Importer {
	return &procedureCodeImporterPG{b: b}
}

func (i *procedureCodeImporterPG) Atomically(ctx context.Context, fn func(ProcedureCodeRepository) error) error {
	return db.WithTx(ctx, i.b, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `LOCK TABLE procedure_code IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return fmt.Errorf("lock procedure_code: %w", err)
		}
		return fn(NewProcedureCodeRepoPG(tx))
	})
}
