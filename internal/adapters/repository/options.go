package repository

import "time"

// Option configures a SQLiteStore.
type Option func(*sqliteConfig)

type sqliteConfig struct {
	busyTimeout  time.Duration
	maxOpenConns int
}

func defaultSQLiteConfig() sqliteConfig {
	return sqliteConfig{busyTimeout: 5 * time.Second, maxOpenConns: 1}
}

// WithBusyTimeout sets how long a writer waits on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(c *sqliteConfig) {
		if d > 0 {
			c.busyTimeout = d
		}
	}
}

// WithMaxOpenConns bounds the connection pool.
func WithMaxOpenConns(n int) Option {
	return func(c *sqliteConfig) {
		if n > 0 {
			c.maxOpenConns = n
		}
	}
}
