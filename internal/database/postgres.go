package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ErrPostgresDisabled DATABASE_URL не задан
var ErrPostgresDisabled = errors.New("DATABASE_URL is empty")

// PostgresOptions пул соединений журнала контактов
type PostgresOptions struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectAttempts int           // Попыток подключения при старте
	RetryDelay      time.Duration // Пауза между попытками, удваивается
}

func (o PostgresOptions) withDefaults() PostgresOptions {
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = 10
	}
	if o.MaxIdleConns <= 0 || o.MaxIdleConns > o.MaxOpenConns {
		o.MaxIdleConns = 2
	}
	if o.ConnMaxLifetime <= 0 {
		o.ConnMaxLifetime = 5 * time.Minute
	}
	if o.ConnectAttempts <= 0 {
		o.ConnectAttempts = 1
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	return o
}

// ConnectPostgres подключается к PostgreSQL, повторяя попытки: база в compose
// часто поднимается позже дашборда
func ConnectPostgres(opts PostgresOptions) (*gorm.DB, error) {
	if opts.URL == "" {
		return nil, ErrPostgresDisabled
	}
	opts = opts.withDefaults()

	var lastErr error
	delay := opts.RetryDelay
	for attempt := 1; attempt <= opts.ConnectAttempts; attempt++ {
		db, err := openPostgres(opts)
		if err == nil {
			log.Printf("✅ PostgreSQL подключен (попытка %d, пул %d/%d)", attempt, opts.MaxOpenConns, opts.MaxIdleConns)
			return db, nil
		}
		lastErr = err
		if attempt < opts.ConnectAttempts {
			log.Printf("⏳ PostgreSQL недоступен (попытка %d/%d): %v, повтор через %v", attempt, opts.ConnectAttempts, err, delay)
			time.Sleep(delay)
			delay *= 2
		}
	}
	return nil, lastErr
}

func openPostgres(opts PostgresOptions) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(opts.URL), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// ClosePostgres закрывает соединение с PostgreSQL
func ClosePostgres(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
