package application

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"
)

// MigrationManager applies the goose migrations each module registers.
// Version numbers must be unique across modules; schemas run in
// registration order.
type MigrationManager interface {
	RegisterSchema(fsys fs.FS)
	Run(ctx context.Context) error
}

func NewMigrationManager(pool *pgxpool.Pool, logger *logrus.Logger) MigrationManager {
	return &migrationManager{pool: pool, logger: logger}
}

type migrationManager struct {
	pool    *pgxpool.Pool
	logger  *logrus.Logger
	schemas []fs.FS
}

func (m *migrationManager) RegisterSchema(fsys fs.FS) {
	m.schemas = append(m.schemas, fsys)
}

func (m *migrationManager) Run(ctx context.Context) error {
	if len(m.schemas) == 0 {
		return nil
	}

	db := stdlib.OpenDBFromPool(m.pool)
	defer func() {
		if err := db.Close(); err != nil && m.logger != nil {
			m.logger.WithError(err).Warn("migrations: failed to close db handle")
		}
	}()

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "failed to set goose dialect")
	}
	goose.SetLogger(goose.NopLogger())

	for _, fsys := range m.schemas {
		dirs, err := migrationDirs(fsys)
		if err != nil {
			return err
		}
		goose.SetBaseFS(fsys)
		for _, dir := range dirs {
			if err := goose.UpContext(ctx, db, dir); err != nil {
				goose.SetBaseFS(nil)
				return errors.Wrap(err, "failed to apply migrations")
			}
		}
		goose.SetBaseFS(nil)
	}
	return nil
}

func migrationDirs(fsys fs.FS) ([]string, error) {
	seen := map[string]struct{}{}
	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".sql") {
			seen[filepath.ToSlash(filepath.Dir(path))] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan migration files")
	}

	dirs := make([]string, 0, len(seen))
	for dir := range seen {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)
	return dirs, nil
}
