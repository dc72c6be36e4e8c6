package persistence_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/felapi/fel-auth/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openSQLite(t *testing.T) *persistence.Migrator {
	t.Helper()
	ctx := context.Background()
	db, err := persistence.Open(ctx, persistence.Options{
		Driver: persistence.DriverSQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	assert.Equal(t, persistence.DriverSQLite, persistence.DialectDir(db))

	m, err := persistence.NewMigrator(db)
	require.NoError(t, err)
	return m
}

func TestMigrator_UpDown(t *testing.T) {
	ctx := context.Background()
	m := openSQLite(t)

	applied, err := m.Up(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"20250301000000"}, applied)

	applied, err = m.Up(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)

	rolled, err := m.Down(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"20250301000000"}, rolled)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := persistence.Open(context.Background(), persistence.Options{Driver: "oracle"})
	assert.ErrorContains(t, err, "unsupported driver")
}
