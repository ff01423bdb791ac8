package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// slowQueryThreshold marks registry queries worth a warning even when debug
// logging is off. The registry is small; anything this slow is misconfigured
// storage.
const slowQueryThreshold = 200 * time.Millisecond

// maxSQLLength caps SQL statements in log output.
const maxSQLLength = 200

// gormSlogAdapter bridges GORM's logger.Interface onto slog. Successful
// queries are emitted at Debug, slow ones at Warn. ErrRecordNotFound is the
// normal empty result of .First() and is not treated as an error.
type gormSlogAdapter struct{}

// LogMode is a no-op; filtering is delegated to the slog level.
func (a gormSlogAdapter) LogMode(logger.LogLevel) logger.Interface { return a }

func (a gormSlogAdapter) Info(_ context.Context, msg string, args ...any) {
	slog.Info(fmt.Sprintf(msg, args...))
}

func (a gormSlogAdapter) Warn(_ context.Context, msg string, args ...any) {
	slog.Warn(fmt.Sprintf(msg, args...))
}

func (a gormSlogAdapter) Error(_ context.Context, msg string, args ...any) {
	slog.Error(fmt.Sprintf(msg, args...))
}

// Trace runs after every SQL operation.
func (a gormSlogAdapter) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		slog.Error("registry query failed",
			"sql", elideSQL(sql), "rows", rows, "duration", elapsed, "error", err)
	case elapsed >= slowQueryThreshold:
		sql, rows := fc()
		slog.Warn("slow registry query",
			"sql", elideSQL(sql), "rows", rows, "duration", elapsed)
	case slog.Default().Enabled(ctx, slog.LevelDebug):
		sql, rows := fc()
		slog.Debug("registry query",
			"sql", elideSQL(sql), "rows", rows, "duration", elapsed)
	}
}

// elideSQL replaces the middle of oversized statements with an ellipsis.
func elideSQL(sql string) string {
	if len(sql) <= maxSQLLength {
		return sql
	}
	half := (maxSQLLength - 3) / 2
	return sql[:half] + "..." + sql[len(sql)-half:]
}
