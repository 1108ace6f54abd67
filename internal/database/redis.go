package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisDisabled REDIS_URL и Sentinel не заданы
var ErrRedisDisabled = errors.New("redis не настроен")

// ConnectRedis подключается к Redis для кэша поставщиков и прогнозов.
// Если указаны sentinelAddrs и masterName, используется Sentinel.
func ConnectRedis(redisURL string, sentinelAddrs []string, masterName string) (*redis.Client, error) {
	if len(sentinelAddrs) > 0 && masterName != "" {
		return connectRedisWithSentinel(sentinelAddrs, masterName)
	}
	if redisURL == "" {
		return nil, ErrRedisDisabled
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	// Кэш не критичен: короткие таймауты, чтобы при падении Redis сразу идти в бэкенд
	opt.PoolSize = 50
	opt.MinIdleConns = 5
	opt.MaxRetries = 1
	opt.DialTimeout = 2 * time.Second
	opt.ReadTimeout = 500 * time.Millisecond
	opt.WriteTimeout = 500 * time.Millisecond

	client := redis.NewClient(opt)
	if err := pingRedis(client, 5*time.Second); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Println("✅ Redis connected successfully (direct connection)")
	return client, nil
}

func connectRedisWithSentinel(sentinelAddrs []string, masterName string) (*redis.Client, error) {
	client := redis.NewFailoverClient(&redis.FailoverOptions{
		MasterName:    masterName,
		SentinelAddrs: sentinelAddrs,
		PoolSize:      50,
		MinIdleConns:  5,
		MaxRetries:    1,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   time.Second,
		WriteTimeout:  time.Second,
	})
	if err := pingRedis(client, 10*time.Second); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis Sentinel: %w", err)
	}

	log.Printf("✅ Redis Sentinel connected successfully (master: %s, sentinels: %v)", masterName, sentinelAddrs)
	return client, nil
}

func pingRedis(client *redis.Client, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return client.Ping(ctx).Err()
}

// CloseRedis закрывает подключение к Redis
func CloseRedis(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
