// Package cache keeps hot read models in redis in front of the database repositories.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/arjuunns/Smart-hostel/core"
	"github.com/arjuunns/Smart-hostel/core/risk"
)

const statsKeyPrefix = "stats:"

// NewClient connects to redis and checks the connection.
func NewClient(conf core.RedisConfig) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        conf.Address,
		Password:    conf.Password,
		DB:          conf.DB,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "redis ping")
	}
	return rdb, nil
}

// StatsRepository caches student statistics by student ID.
// Cache failures are logged and the wrapped repository is used instead.
type StatsRepository struct {
	repo   risk.StatsRepository
	rdb    goredis.Cmdable
	ttl    time.Duration
	logger core.Logger
}

var _ risk.StatsRepository = (*StatsRepository)(nil) // interface compliance check

func NewStatsRepository(repo risk.StatsRepository, rdb goredis.Cmdable, ttl time.Duration, logger core.Logger) *StatsRepository {
	return &StatsRepository{repo: repo, rdb: rdb, ttl: ttl, logger: logger}
}

func statsKey(studentID string) string {
	return statsKeyPrefix + studentID
}

func (c *StatsRepository) GetStats(ctx context.Context, studentID string) (risk.StudentStatistics, error) {
	raw, err := c.rdb.Get(ctx, statsKey(studentID)).Bytes()
	switch {
	case err == nil:
		var stats risk.StudentStatistics
		if err := json.Unmarshal(raw, &stats); err == nil {
			return stats, nil
		}
		c.logger.Warn(fmt.Sprintf("decoding cached stats of %s: %v", studentID, err), err)
	case err != goredis.Nil:
		c.logger.Warn(fmt.Sprintf("reading cached stats of %s: %v", studentID, err), err)
	}

	stats, err := c.repo.GetStats(ctx, studentID)
	if err != nil {
		return risk.StudentStatistics{}, err
	}
	c.set(ctx, stats)
	return stats, nil
}

func (c *StatsRepository) UpsertStats(ctx context.Context, s risk.StudentStatistics) (risk.StudentStatistics, error) {
	stats, err := c.repo.UpsertStats(ctx, s)
	if err != nil {
		return risk.StudentStatistics{}, err
	}
	c.set(ctx, stats)
	return stats, nil
}

// QueryStats always reads through; listings are not cached.
func (c *StatsRepository) QueryStats(ctx context.Context, filter *risk.StatsFilter) ([]risk.StudentStatistics, error) {
	return c.repo.QueryStats(ctx, filter)
}

func (c *StatsRepository) set(ctx context.Context, stats risk.StudentStatistics) {
	raw, err := json.Marshal(stats)
	if err != nil {
		c.logger.Warn(fmt.Sprintf("encoding stats of %s: %v", stats.StudentID, err), err)
		return
	}
	if err := c.rdb.Set(ctx, statsKey(stats.StudentID), raw, c.ttl).Err(); err != nil {
		c.logger.Warn(fmt.Sprintf("caching stats of %s: %v", stats.StudentID, err), err)
	}
}
