package database

import (
	"fmt"
	"os"
	"path/filepath"

	"maat-go/internal/config"
)

// NewDatabaseFromConfig opens the rebuild history database selected by
// cfg.Type. It returns nil for type "none".
func NewDatabaseFromConfig(cfg config.DatabaseConfig, instanceName string) (*SQLiteDatabase, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		return NewSQLiteDatabase(filepath.Join(cfg.DataDir, instanceName+".db"))
	case "memory":
		return NewSQLiteDatabase(":memory:")
	case "none", "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
