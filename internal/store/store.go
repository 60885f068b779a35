package store

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Store is the PostgreSQL side of the daemon: it owns the pool behind the
// snapshot archive.
type Store struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// New opens a pool on dsn and checks it can reach the server.
func New(dsn string, logger *zap.Logger) (*Store, error) {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open snapshot archive: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("reach snapshot archive: %w", err)
	}
	logger.Info("snapshot archive connected", zap.String("database", pool.Config().ConnConfig.Database))
	return &Store{db: pool, logger: logger}, nil
}

// Migrate applies the .up.sql files of fsys in name order. Each file must be
// safe to run again.
func (s *Store) Migrate(ctx context.Context, fsys fs.FS) error {
	names, err := upMigrations(fsys)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("no .up.sql migrations found")
	}
	for _, name := range names {
		ddl, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(ctx, string(ddl)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
		s.logger.Debug("migration applied", zap.String("file", name))
	}
	s.logger.Info("snapshot archive schema ready", zap.Int("migrations", len(names)))
	return nil
}

// upMigrations lists the top-level .up.sql files of fsys, sorted.
func upMigrations(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), ".up.sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.db.Close()
}
