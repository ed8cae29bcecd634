package cache_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arjuunns/Smart-hostel/core/risk"
	logsvc "github.com/arjuunns/Smart-hostel/services/logger"
	"github.com/arjuunns/Smart-hostel/storage/cache"
	inmemdb "github.com/arjuunns/Smart-hostel/storage/database/inmem"
)

// fakeRedis implements the GET and SET commands in memory.
type fakeRedis struct {
	goredis.Cmdable

	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	down bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

var errDown = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

func (r *fakeRedis) Get(_ context.Context, key string) *goredis.StringCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return goredis.NewStringResult("", errDown)
	}
	val, ok := r.data[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(val, nil)
}

func (r *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.down {
		return goredis.NewStatusResult("", errDown)
	}
	raw, _ := value.([]byte)
	r.data[key] = string(raw)
	r.ttls[key] = expiration
	return goredis.NewStatusResult("OK", nil)
}

func setup(t *testing.T) (*cache.StatsRepository, risk.StatsRepository, *fakeRedis) {
	t.Helper()
	inner := inmemdb.NewStatsRepository(inmemdb.Open())
	rdb := newFakeRedis()
	return cache.NewStatsRepository(inner, rdb, time.Hour, logsvc.NewNopLogger()), inner, rdb
}

func stats(studentID string, score int) risk.StudentStatistics {
	s := risk.NewStudentStatistics(studentID)
	s.OverallRiskScore = score
	return s
}

func TestStatsRepository_GetStats(t *testing.T) {
	repo, inner, rdb := setup(t)
	ctx := context.Background()

	_, err := repo.GetStats(ctx, "s1")
	assert.Equal(t, risk.ErrStatsNotFound, err)

	_, err = inner.UpsertStats(ctx, stats("s1", 10))
	require.NoError(t, err)

	got, err := repo.GetStats(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 10, got.OverallRiskScore)
	assert.Contains(t, rdb.data, "stats:s1", "a miss fills the cache")
	assert.Equal(t, time.Hour, rdb.ttls["stats:s1"])

	_, err = inner.UpsertStats(ctx, stats("s1", 55))
	require.NoError(t, err)
	cached, err := repo.GetStats(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 10, cached.OverallRiskScore, "a hit does not reach the database")
	assert.Equal(t, got, cached)
}

func TestStatsRepository_UpsertStats(t *testing.T) {
	repo, inner, _ := setup(t)
	ctx := context.Background()

	_, err := repo.UpsertStats(ctx, stats("s1", 10))
	require.NoError(t, err)
	_, err = repo.GetStats(ctx, "s1")
	require.NoError(t, err)

	saved, err := repo.UpsertStats(ctx, stats("s1", 70))
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	got, err := repo.GetStats(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 70, got.OverallRiskScore, "writes refresh the cache")

	stored, err := inner.GetStats(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 70, stored.OverallRiskScore)
}

func TestStatsRepository_fallback(t *testing.T) {
	repo, inner, rdb := setup(t)
	ctx := context.Background()

	_, err := inner.UpsertStats(ctx, stats("s1", 20))
	require.NoError(t, err)

	rdb.data["stats:s1"] = "{not json"
	got, err := repo.GetStats(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 20, got.OverallRiskScore, "corrupt entries are replaced")
	assert.NotEqual(t, "{not json", rdb.data["stats:s1"])

	rdb.down = true
	_, err = inner.UpsertStats(ctx, stats("s1", 35))
	require.NoError(t, err)
	got, err = repo.GetStats(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 35, got.OverallRiskScore, "an unreachable cache falls back on the database")

	saved, err := repo.UpsertStats(ctx, stats("s2", 40))
	require.NoError(t, err)
	assert.Equal(t, 40, saved.OverallRiskScore)

	listed, err := repo.QueryStats(ctx, &risk.StatsFilter{MinScore: 30})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "s2", listed[0].StudentID)
}
