package terminology

import (
	"context"
	"fmt"
	"io"
	"strings"
)

// Service provides CPT procedure code loading and lookup.
type Service struct {
	codes    ProcedureCodeRepository
	importer Importer
}

func NewService(codes ProcedureCodeRepository, importer Importer) *Service {
	return &Service{codes: codes, importer: importer}
}

// CreateProcedureCode inserts a single code. A code that already exists fails
// with ErrDuplicate and the stored row is left unchanged.
func (s *Service) CreateProcedureCode(ctx context.Context, code, description string) (*ProcedureCode, error) {
	return createCode(ctx, s.codes, code, description)
}

func createCode(ctx context.Context, repo ProcedureCodeRepository, code, description string) (*ProcedureCode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("code is required")
	}
	pc := &ProcedureCode{Code: code, Description: strings.TrimSpace(description)}
	if err := repo.Create(ctx, pc); err != nil {
		return nil, err
	}
	return pc, nil
}

// ImportProcedureCodes inserts codes in order and stops at the first failure.
// Rows inserted before the failure are kept. It returns the number inserted.
func (s *Service) ImportProcedureCodes(ctx context.Context, codes []ProcedureCode) (int, error) {
	return importCodes(ctx, s.codes, codes)
}

func importCodes(ctx context.Context, repo ProcedureCodeRepository, codes []ProcedureCode) (int, error) {
	for i, pc := range codes {
		if _, err := createCode(ctx, repo, pc.Code, pc.Description); err != nil {
			return i, fmt.Errorf("import row %d (%s): %w", i+1, pc.Code, err)
		}
	}
	return len(codes), nil
}

// PreloadResult reports what Preload did.
type PreloadResult struct {
	Loaded   int
	Existing int
}

// Preload imports reference data when the table is empty. A populated table is
// left alone and open is never called, so restarts against an existing
// database are no-ops. The check and the import run in one unit: a bad row
// such as a duplicate within the source fails the whole load and leaves the
// table empty, so the next start retries from scratch.
func (s *Service) Preload(ctx context.Context, open func(context.Context) (io.ReadCloser, error)) (PreloadResult, error) {
	var res PreloadResult
	err := s.importer.Atomically(ctx, func(codes ProcedureCodeRepository) error {
		existing, err := codes.Count(ctx)
		if err != nil {
			return err
		}
		if existing > 0 {
			res.Existing = existing
			return nil
		}

		rc, err := open(ctx)
		if err != nil {
			return err
		}
		defer rc.Close()

		parsed, err := ParseCSV(rc)
		if err != nil {
			return err
		}
		res.Loaded, err = importCodes(ctx, codes, parsed)
		return err
	})
	if err != nil {
		return PreloadResult{}, err
	}
	return res, nil
}

// Lookup returns a single code, or ErrNotFound.
func (s *Service) Lookup(ctx context.Context, code string) (*ProcedureCode, error) {
	if code == "" {
		return nil, ErrNotFound
	}
	return s.codes.GetByCode(ctx, code)
}

// Search matches codes and descriptions by substring.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]*ProcedureCode, error) {
	if query == "" {
		return nil, fmt.Errorf("query parameter is required")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	return s.codes.Search(ctx, query, limit)
}
