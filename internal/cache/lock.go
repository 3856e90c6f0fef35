package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld 锁已被其他执行者持有
var ErrLockHeld = errors.New("lock held by another worker")

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lock 分布式互斥锁句柄
type Lock struct {
	key   string
	token string
}

// TransferLockKey 单笔付款转账锁
func TransferLockKey(paymentID uint) string {
	return fmt.Sprintf("lock:payout:%d", paymentID)
}

// AcquireLock 获取互斥锁，Redis 未启用时直接放行
func AcquireLock(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	lock := &Lock{key: buildKey(key), token: uuid.NewString()}
	if !Enabled() {
		return lock, nil
	}
	ok, err := redisClient.SetNX(ctx, lock.key, lock.token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return lock, nil
}

// Release 释放锁，仅删除自己持有的锁
func (l *Lock) Release(ctx context.Context) error {
	if l == nil || !Enabled() {
		return nil
	}
	return releaseLockScript.Run(ctx, redisClient, []string{l.key}, l.token).Err()
}
