// Package cmd holds the constructors shared by the trackcollab binaries.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dukex/trackcollab/pkg/persistence"
	"github.com/dukex/trackcollab/pkg/persistence/file"
	"github.com/dukex/trackcollab/pkg/persistence/postgresql"
	"github.com/dukex/trackcollab/pkg/persistence/redis"
	"github.com/dukex/trackcollab/pkg/persistence/sqlite"
)

// PersistenceProvider derives the backend from the database URL scheme. A URL without a
// scheme is a directory for the file store.
func PersistenceProvider(databaseURL string) string {
	scheme, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	switch scheme {
	case "postgres", "postgresql":
		return "postgresql"
	case "redis", "rediss":
		return "redis"
	default:
		return scheme
	}
}

func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider := PersistenceProvider(databaseURL)

	logger.InfoContext(ctx, "Opening persistence", "provider", provider)

	switch provider {
	case "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case "redis":
		return redis.NewPersistence(ctx, logger, databaseURL)
	case "sqlite":
		return sqlite.NewPersistence(ctx, logger, databaseURL)
	case "file":
		root := strings.TrimPrefix(databaseURL, "file://")

		if err := os.MkdirAll(root, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", root, err)
		}

		return file.NewPersistence(root), nil
	default:
		return nil, fmt.Errorf("unsupported persistence provider %q", provider)
	}
}
