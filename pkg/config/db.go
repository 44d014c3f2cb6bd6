package config

import (
	"fmt"
	"net/url"
	"time"
)

// DatabaseConfig describes the SQLite file backing the store.
type DatabaseConfig struct {
	Path           string
	BusyTimeout    time.Duration
	MaxOpenConns   int
	ConnectRetries int
	RetryDelay     time.Duration
}

// DSN builds the sqlite3 connection string. Foreign keys are switched on per
// connection so cascades hold for every pooled connection.
func (d DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("_foreign_keys", "on")
	params.Set("_journal_mode", "WAL")
	params.Set("_busy_timeout", fmt.Sprintf("%d", d.BusyTimeout.Milliseconds()))
	return "file:" + d.Path + "?" + params.Encode()
}
