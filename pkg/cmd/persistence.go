package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/flowlineio/flowline/pkg/persistence"
	"github.com/flowlineio/flowline/pkg/persistence/file"
	"github.com/flowlineio/flowline/pkg/persistence/postgresql"
	"github.com/flowlineio/flowline/pkg/persistence/redis"
)

// NewPersistence selects the store from the database URL scheme. Anything
// without a recognized scheme is treated as a file path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case "redis", "rediss":
		return redis.NewPersistence(ctx, logger, databaseURL)
	default:
		return file.NewPersistence(strings.TrimPrefix(databaseURL, "file://")), nil
	}
}

func parseProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return scheme
}
