package db_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/cunhao-core/internal/db"
	"github.com/oggyb/cunhao-core/internal/db/dbtest"
	"github.com/oggyb/cunhao-core/internal/logger"
)

func TestSeedTestData(t *testing.T) {
	gdb := dbtest.New(t)

	// running twice must start from a clean slate
	require.NoError(t, db.SeedTestData(gdb, logger.Discard()))
	require.NoError(t, db.SeedTestData(gdb, logger.Discard()))

	count := func(m any) int64 {
		var n int64
		require.NoError(t, gdb.Model(m).Count(&n).Error)
		return n
	}
	assert.Equal(t, int64(6), count(&db.User{}))
	assert.Equal(t, int64(7), count(&db.Alias{}))
	assert.Equal(t, int64(12), count(&db.Phrase{}))
	assert.Equal(t, int64(100), count(&db.UsageRecord{}))

	var open []db.Proposal
	require.NoError(t, gdb.Where("status = ?", db.StatusOpen).Find(&open).Error)
	require.Len(t, open, 2)
	for _, p := range open {
		assert.NotEmpty(t, p.Normalized)
		assert.Len(t, p.LikedBy, 1)
	}
}
