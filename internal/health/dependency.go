package health

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// DBChecker pings the pool and confirms the schema has been migrated.
type DBChecker struct {
	db     *gorm.DB
	tables []string
}

func NewDBChecker(db *gorm.DB, requiredTables ...string) Checker {
	if db == nil {
		return nil
	}
	return &DBChecker{db: db, tables: requiredTables}
}

func (c *DBChecker) Check(ctx context.Context) CheckResult {
	res := CheckResult{Name: "db", Healthy: true}
	sqlDB, err := c.db.DB()
	if err != nil {
		return unhealthy(res, err.Error())
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return unhealthy(res, err.Error())
	}
	migrator := c.db.WithContext(ctx).Migrator()
	for _, table := range c.tables {
		if !migrator.HasTable(table) {
			return unhealthy(res, fmt.Sprintf("table %s missing, run migrations", table))
		}
	}
	return res
}

type RedisChecker struct {
	client redis.UniversalClient
}

func NewRedisChecker(client redis.UniversalClient) Checker {
	if client == nil {
		return nil
	}
	return &RedisChecker{client: client}
}

func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	res := CheckResult{Name: "redis", Healthy: true}
	if err := c.client.Ping(ctx).Err(); err != nil {
		return unhealthy(res, err.Error())
	}
	return res
}

func unhealthy(res CheckResult, msg string) CheckResult {
	res.Healthy = false
	res.Error = msg
	return res
}
