package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/manufacturing_backend/config"
	"github.com/sirupsen/logrus"
)

const resourceLockTTL = 30 * time.Second

func GetCacheLifespan() time.Duration {
	lifespan, err := strconv.Atoi(os.Getenv("CACHE_LIFESPAN"))
	if err != nil {
		lifespan = 1
	}
	return time.Duration(lifespan) * time.Hour
}

// StoreRedis caches obj under Type:id.
func StoreRedis[T any](obj *T, id int) error {
	key := GetTypeName[T]() + ":" + fmt.Sprint(id)
	return config.SetRedisObject(key, obj, GetCacheLifespan())
}

// RetrieveRedis returns nil when the key is absent or redis is not configured.
func RetrieveRedis[T any](id int) (*T, error) {
	var result T
	key := GetTypeName[T]() + ":" + fmt.Sprint(id)
	exists, err := config.GetRedisObject(key, &result)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return &result, nil
}

// ObtainResourceLock takes a distributed lock on lockType:id for the length of one action.
// Without redis the lock degrades to a no-op; the row lock taken inside the transaction still serializes writers.
// The returned release func is always safe to call.
func ObtainResourceLock(ctx context.Context, lockType string, id int, moduleName string, functionName string) (func(), error) {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	noop := func() {}
	if locker == nil {
		if config.MfgDebugLogEnabled() {
			logger.WithFields(logrus.Fields{
				"module":   moduleName,
				"funcName": functionName,
				"lock":     lockType,
				"id":       id,
			}).Warn("redis lock not ready; proceeding with row lock only")
		}
		return noop, nil
	}

	lockKey := fmt.Sprintf("lock:%s:%d", lockType, id)
	lock, err := locker.Obtain(ctx, lockKey, resourceLockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 50),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		config.LogError(logger, moduleName, functionName, "could not obtain lock", lockKey, err)
		return noop, ErrorLockNotObtained
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "error obtaining lock", lockKey, err)
		return noop, err
	}

	return func() {
		if releaseErr := lock.Release(context.Background()); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			config.LogError(logger, moduleName, functionName, "failed to release lock", lockKey, releaseErr)
		}
	}, nil
}
