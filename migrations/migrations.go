// File: migrations/migrations.go

// Package migrations embeds the schema and applies it with golang-migrate.
package migrations

import (
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres" // registers postgres://
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed *.sql
var files embed.FS

// Manager представляет менеджер миграций базы данных
type Manager struct {
	migrator *migrate.Migrate
	logger   *zap.Logger
}

// NewManager создает мигратор для dsn поверх встроенных SQL-файлов.
func NewManager(dsn string, logger *zap.Logger) (*Manager, error) {
	src, err := iofs.New(files, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return &Manager{migrator: m, logger: logger.Named("migrations")}, nil
}

// Up выполняет все миграции вверх.
func (m *Manager) Up() error {
	err := m.migrator.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("No migrations to apply")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	m.logger.Info("Migrations applied successfully")
	return nil
}

// Down откатывает все миграции.
func (m *Manager) Down() error {
	err := m.migrator.Down()
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("No migrations to rollback")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to rollback migrations: %w", err)
	}
	m.logger.Info("Migrations rolled back successfully")
	return nil
}

// Version возвращает текущую версию схемы. Пустая база дает (0, false, nil).
func (m *Manager) Version() (uint, bool, error) {
	version, dirty, err := m.migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, dirty, nil
}

// Close освобождает источник и соединение мигратора.
func (m *Manager) Close() error {
	srcErr, dbErr := m.migrator.Close()
	return errors.Join(srcErr, dbErr)
}
