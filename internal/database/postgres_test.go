package database

import (
	"errors"
	"testing"
	"time"
)

func TestConnectPostgresDisabled(t *testing.T) {
	db, err := ConnectPostgres(PostgresOptions{})
	if !errors.Is(err, ErrPostgresDisabled) || db != nil {
		t.Fatalf("ConnectPostgres() = %v, %v; want ErrPostgresDisabled", db, err)
	}
}

func TestConnectPostgresRetriesThenFails(t *testing.T) {
	start := time.Now()
	_, err := ConnectPostgres(PostgresOptions{
		URL:             "postgres://dashboard@127.0.0.1:1/stockdash?sslmode=disable&connect_timeout=1",
		ConnectAttempts: 2,
		RetryDelay:      20 * time.Millisecond,
	})
	if err == nil {
		t.Fatal("expected connection error")
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("second attempt was not delayed: %v", elapsed)
	}
}

func TestPostgresOptionsDefaults(t *testing.T) {
	opts := PostgresOptions{URL: "postgres://x", MaxOpenConns: 4, MaxIdleConns: 9}.withDefaults()
	if opts.MaxOpenConns != 4 || opts.MaxIdleConns != 2 {
		t.Errorf("pool = %d/%d", opts.MaxOpenConns, opts.MaxIdleConns)
	}
	if opts.ConnectAttempts != 1 || opts.RetryDelay != time.Second || opts.ConnMaxLifetime != 5*time.Minute {
		t.Errorf("defaults = %+v", opts)
	}
}
