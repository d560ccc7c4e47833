package terminology

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemRepository is an in-process ProcedureCodeRepository. It enforces the same
// unique key as the procedure_code table and backs tests and local tooling.
type MemRepository struct {
	mu    sync.RWMutex
	codes map[string]ProcedureCode

	// importMu serializes Atomically callers.
	importMu sync.Mutex
}

func NewMemRepo() *MemRepository {
	return &MemRepository{codes: make(map[string]ProcedureCode)}
}

func (m *MemRepository) Create(_ context.Context, pc *ProcedureCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.codes[pc.Code]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, pc.Code)
	}
	pc.CreatedAt = time.Now().UTC()
	m.codes[pc.Code] = *pc
	return nil
}

func (m *MemRepository) GetByCode(_ context.Context, code string) (*ProcedureCode, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pc, ok := m.codes[code]
	if !ok {
		return nil, ErrNotFound
	}
	return &pc, nil
}

func (m *MemRepository) Search(_ context.Context, query string, limit int) ([]*ProcedureCode, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	q := strings.ToLower(query)

	m.mu.RLock()
	results := []*ProcedureCode{}
	for _, pc := range m.codes {
		if strings.Contains(strings.ToLower(pc.Code), q) || strings.Contains(strings.ToLower(pc.Description), q) {
			pc := pc
			results = append(results, &pc)
		}
	}
	m.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool { return results[i].Code < results[j].Code })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MemRepository) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.codes), nil
}

// Atomically stages fn's writes on a copy of the table and swaps the copy in
// only when fn succeeds.
func (m *MemRepository) Atomically(ctx context.Context, fn func(ProcedureCodeRepository) error) error {
	m.importMu.Lock()
	defer m.importMu.Unlock()

	m.mu.RLock()
	staged := &MemRepository{codes: maps.Clone(m.codes)}
	m.mu.RUnlock()

	if err := fn(staged); err != nil {
		return err
	}

	m.mu.Lock()
	m.codes = staged.codes
	m.mu.Unlock()
	return nil
}
