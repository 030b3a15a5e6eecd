package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnect(t *testing.T) {
	t.Run("Sqlite", func(t *testing.T) {
		cfg := Config{
			Driver: "sqlite",
			Path:   filepath.Join(t.TempDir(), "catalog.db"),
		}
		db, err := Connect(cfg)
		require.NoError(t, err)
		require.NotNil(t, db)
	})

	t.Run("Unknown Driver", func(t *testing.T) {
		db, err := Connect(Config{Driver: "oracle"})
		assert.Error(t, err)
		assert.Nil(t, db)
	})

	t.Run("Invalid MySQL Connection", func(t *testing.T) {
		cfg := Config{
			Driver:         "mysql",
			Host:           "localhost",
			Port:           9999, // Unused port
			User:           "root",
			Password:       "wrongpassword",
			Name:           "catalog",
			TimeoutSeconds: 1,
		}
		db, err := Connect(cfg)
		assert.Error(t, err)
		assert.Nil(t, db)
	})
}
