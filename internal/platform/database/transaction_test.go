package database

import (
	"context"
	"database/sql"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

// recordingTx stands in for an engine-owned transaction so the join path can
// be exercised without a database.
type recordingTx struct {
	commits   int
	rollbacks int
	closed    bool
}

func (t *recordingTx) IsOpen() bool { return !t.closed }

func (t *recordingTx) Commit(ctx context.Context) error {
	t.commits++
	t.closed = true
	return nil
}

func (t *recordingTx) Rollback(ctx context.Context) error {
	t.rollbacks++
	t.closed = true
	return nil
}

func (t *recordingTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}

func (t *recordingTx) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}

func (t *recordingTx) QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row {
	return nil
}

func (t *recordingTx) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return nil, nil
}

func (t *recordingTx) Rebind(query string) string { return query }

func (t *recordingTx) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}

func openTxContext(tx Tx) context.Context {
	ctx := context.WithValue(context.Background(), txStatusKey, "open")
	return context.WithValue(ctx, txKey, tx)
}

func TestGetTxJoinsOpenContextTransaction(t *testing.T) {
	owner := &recordingTx{}
	ctx := openTxContext(owner)

	gotCtx, joined, err := GetTx(ctx, testLogger(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, ctx, gotCtx)
	assert.True(t, joined.IsOpen())

	// a joiner must never close a transaction it did not open
	require.NoError(t, joined.Commit(ctx))
	require.NoError(t, joined.Rollback(ctx))
	assert.Zero(t, owner.commits)
	assert.Zero(t, owner.rollbacks)
	assert.True(t, owner.IsOpen())

	// the opener's handle still closes it
	require.NoError(t, owner.Commit(ctx))
	assert.Equal(t, 1, owner.commits)
	assert.False(t, owner.IsOpen())
}

func TestGetTxIgnoresClosedContextTransaction(t *testing.T) {
	owner := &recordingTx{closed: true}
	ctx := openTxContext(owner)

	// the carried transaction is closed, so GetTx must start a fresh one
	// instead of handing the dead handle back
	db := &beginCountingDB{}
	_, _, err := GetTx(ctx, testLogger(), db, nil)
	require.Error(t, err)
	assert.Equal(t, 1, db.begins)
}

// beginCountingDB fails BeginTxx after counting the attempt; enough to prove
// GetTx fell through to opening a new transaction.
type beginCountingDB struct {
	DB
	begins int
}

func (d *beginCountingDB) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	d.begins++
	return nil, sql.ErrConnDone
}
