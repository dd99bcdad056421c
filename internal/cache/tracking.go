package cache

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"stika/storage/redis"
)

const (
	batchReceivedPrefix = "tracking:batch:received"
	lastSyncPrefix      = "tracking:sync:last"

	batchReceivedTTL = 24 * time.Hour
	lastSyncTTL      = 7 * 24 * time.Hour
)

// TryMarkBatchReceived 原子标记批次已接收（SETNX）
// 返回 false 表示同一 batch_id 已上报过，应按幂等重放处理
func TryMarkBatchReceived(ctx context.Context, batchID string) (bool, error) {
	key := redis.Key(batchReceivedPrefix, batchID)
	result, err := redis.Client().SetNX(ctx, key, "1", batchReceivedTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark batch received: %w", err)
	}
	return result, nil
}

// UnmarkBatchReceived 清除批次标记（批次落库失败时调用，允许客户端重试）
func UnmarkBatchReceived(ctx context.Context, batchID string) error {
	key := redis.Key(batchReceivedPrefix, batchID)
	return redis.Client().Del(ctx, key).Err()
}

// SetLastSyncAt 记录骑手最近一次成功同步的时间
func SetLastSyncAt(ctx context.Context, riderID int64, at time.Time) error {
	key := redis.Key(lastSyncPrefix, fmt.Sprintf("%d", riderID))
	return redis.Client().Set(ctx, key, at.UTC().Format(time.RFC3339), lastSyncTTL).Err()
}

// GetLastSyncAt 查询骑手最近一次成功同步的时间，未同步过返回 nil
func GetLastSyncAt(ctx context.Context, riderID int64) (*time.Time, error) {
	key := redis.Key(lastSyncPrefix, fmt.Sprintf("%d", riderID))
	val, err := redis.Client().Get(ctx, key).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last sync time: %w", err)
	}
	at, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil, fmt.Errorf("failed to parse last sync time: %w", err)
	}
	return &at, nil
}
