package terminology

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingTx captures the statements an import issues.
type recordingTx struct {
	pgx.Tx
	execs      []string
	committed  bool
	rolledBack bool
}

func (tx *recordingTx) Exec(_ context.Context, sql string, _ ...interface{}) (pgconn.CommandTag, error) {
	tx.execs = append(tx.execs, sql)
	return pgconn.NewCommandTag("LOCK TABLE"), nil
}

func (tx *recordingTx) Commit(context.Context) error {
	tx.committed = true
	return nil
}

func (tx *recordingTx) Rollback(context.Context) error {
	if !tx.committed {
		tx.rolledBack = true
	}
	return nil
}

type txBeginner struct{ tx *recordingTx }

func (b txBeginner) Begin(context.Context) (pgx.Tx, error) { return b.tx, nil }

func TestProcedureCodeImporterPG_LocksAndRollsBack(t *testing.T) {
	tx := &recordingTx{}
	importer := NewProcedureCodeImporterPG(txBeginner{tx})
	dup := errors.New("import row 2 (99213): duplicate")

	err := importer.Atomically(context.Background(), func(codes ProcedureCodeRepository) error {
		require.NotNil(t, codes)
		return dup
	})
	assert.ErrorIs(t, err, dup)
	require.Len(t, tx.execs, 1)
	assert.Equal(t, "LOCK TABLE procedure_code IN SHARE ROW EXCLUSIVE MODE", tx.execs[0])
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
}

func TestProcedureCodeImporterPG_Commits(t *testing.T) {
	tx := &recordingTx{}
	err := NewProcedureCodeImporterPG(txBeginner{tx}).Atomically(context.Background(), func(ProcedureCodeRepository) error {
		return nil
	})
	require.NoError(t, err)
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
}
